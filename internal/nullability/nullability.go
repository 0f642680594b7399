// Package nullability computes the effective type of a field selection once
// a client-supplied designator has been applied to its declared type.
//
// A required designator (`!`) makes the selection non-null, an optional
// designator (`?`) makes it nullable, and no designator leaves the declared
// type as it is. Only the outermost wrapper is affected: the element
// nullability of a list type is always the declared one.
package nullability

import (
	"github.com/vektah/gqlparser/v2/ast"

	language "github.com/hanpama/ccn/internal/language"
	schema "github.com/hanpama/ccn/internal/schema"
)

// Effective returns the type a selection resolves to under designator d.
// The declared type is never modified; a new reference is returned when the
// wrapping changes.
func Effective(declared *schema.TypeRef, d language.Designator) *schema.TypeRef {
	if declared == nil {
		return nil
	}
	switch d {
	case language.DesignatorRequired:
		if declared.IsNonNull() {
			return declared
		}
		return schema.NonNullType(declared)
	case language.DesignatorOptional:
		if declared.IsNonNull() {
			return declared.OfType
		}
		return declared
	default:
		return declared
	}
}

// EffectiveAST is Effective for gqlparser type references.
func EffectiveAST(declared *ast.Type, d language.Designator) *ast.Type {
	if declared == nil {
		return nil
	}
	switch d {
	case language.DesignatorRequired, language.DesignatorOptional:
		want := d == language.DesignatorRequired
		if declared.NonNull == want {
			return declared
		}
		cp := *declared
		cp.NonNull = want
		return &cp
	default:
		return declared
	}
}

// Overrides reports whether d changes the nullability of declared.
func Overrides(declared *schema.TypeRef, d language.Designator) bool {
	switch d {
	case language.DesignatorRequired:
		return !declared.IsNonNull()
	case language.DesignatorOptional:
		return declared.IsNonNull()
	}
	return false
}
