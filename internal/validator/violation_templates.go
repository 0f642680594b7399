package validator

import (
	"fmt"

	language "github.com/hanpama/ccn/internal/language"
	schema "github.com/hanpama/ccn/internal/schema"
)

// Rule names reported with each violation.
// NOTE: Keep messages stable; clients match on them.
const (
	RuleSyntax              = "Syntax"
	RuleFieldsCanMerge      = "FieldsWithNullabilityDesignatorsCanMerge"
	RuleFieldsOnCorrectType = "FieldsOnCorrectType"
	RuleKnownRootType       = "KnownRootType"
	RuleKnownFragment       = "KnownFragmentNames"
	RuleNoFragmentCycles    = "NoFragmentCycles"
)

func violationConflictingTypes(key string, left, right *schema.TypeRef, pos *language.Position) *Violation {
	v := violationWithPosition(
		RuleFieldsCanMerge,
		fmt.Sprintf("Fields %q conflict because they return conflicting types %s and %s. Use different aliases on the fields to fetch both if this was intentional.", key, left, right),
		pos,
	)
	v.ResponseKey = key
	return v
}

func violationDifferentFields(key, left, right string, pos *language.Position) *Violation {
	v := violationWithPosition(
		RuleFieldsCanMerge,
		fmt.Sprintf("Fields %q conflict because %q and %q are different fields. Use different aliases on the fields to fetch both if this was intentional.", key, left, right),
		pos,
	)
	v.ResponseKey = key
	return v
}

func violationDifferingArguments(key string, pos *language.Position) *Violation {
	v := violationWithPosition(
		RuleFieldsCanMerge,
		fmt.Sprintf("Fields %q conflict because they have differing arguments. Use different aliases on the fields to fetch both if this was intentional.", key),
		pos,
	)
	v.ResponseKey = key
	return v
}

func violationUnknownField(fieldName, typeName string, pos *language.Position) *Violation {
	return violationWithPosition(
		RuleFieldsOnCorrectType,
		fmt.Sprintf("Cannot query field %q on type %q.", fieldName, typeName),
		pos,
	)
}

func violationMissingRootType(op language.Operation, pos *language.Position) *Violation {
	return violationWithPosition(
		RuleKnownRootType,
		fmt.Sprintf("Schema does not support operation type %q", op),
		pos,
	)
}

func violationUnknownFragment(name string, pos *language.Position) *Violation {
	return violationWithPosition(
		RuleKnownFragment,
		fmt.Sprintf("Unknown fragment %q.", name),
		pos,
	)
}

func violationFragmentCycle(name string, pos *language.Position) *Violation {
	return violationWithPosition(
		RuleNoFragmentCycles,
		fmt.Sprintf("Cannot spread fragment %q within itself.", name),
		pos,
	)
}
