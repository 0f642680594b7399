package validator

import (
	language "github.com/hanpama/ccn/internal/language"
	nullability "github.com/hanpama/ccn/internal/nullability"
	schema "github.com/hanpama/ccn/internal/schema"
)

// CheckGroup applies the merge rule to the selections sharing one response
// key. Members must select the same field with the same arguments and have
// the same effective type, compared by named type, list wrapping and
// nullability at every level. All members are assumed to contribute to the
// same response object. It returns nil when the group can be merged.
func CheckGroup(key string, members []*Selection) *Violation {
	return checkGroup(key, members, nil, false)
}

// checkGroup is CheckGroup with knowledge of the schema: exclusive reports
// whether members i and j are selected on different concrete object types
// somewhere along their paths, in which case they may name different fields.
// When relaxed is set such pairs may also differ in type.
func checkGroup(key string, members []*Selection, exclusive func(i, j int) bool, relaxed bool) *Violation {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			a, b := members[i], members[j]
			apart := exclusive != nil && exclusive(i, j)
			if !apart {
				if a.Name != b.Name {
					return violationDifferentFields(key, a.Name, b.Name, b.Field.Position)
				}
				if !sameArguments(a.Field.Arguments, b.Field.Arguments) {
					return violationDifferingArguments(key, b.Field.Position)
				}
			}
			if a.Effective.Equal(b.Effective) || (relaxed && apart) {
				continue
			}
			return violationConflictingTypes(key, a.Effective, b.Effective, b.Field.Position)
		}
	}
	return nil
}

// sameArguments compares argument lists regardless of order.
func sameArguments(left, right language.ArgumentList) bool {
	if len(left) != len(right) {
		return false
	}
	for _, arg := range left {
		other := right.ForName(arg.Name)
		if other == nil || other.Value.String() != arg.Value.String() {
			return false
		}
	}
	return true
}

type walker struct {
	schema     *schema.Schema
	doc        *language.OperationDocument
	opt        Options
	result     *Result
	violations ValidationError
	reported   map[Violation]bool
}

func newWalker(s *schema.Schema, doc *language.OperationDocument, opt Options) *walker {
	return &walker{
		schema:   s,
		doc:      doc,
		opt:      opt,
		result:   newResult(doc),
		reported: make(map[Violation]bool),
	}
}

func (w *walker) report(v *Violation) {
	if w.reported[*v] {
		return
	}
	w.reported[*v] = true
	w.violations = append(w.violations, v)
}

func (w *walker) walkOperation(op *language.OperationDefinition) {
	var root *schema.Type
	switch op.Operation {
	case language.Mutation:
		root = w.schema.GetMutationType()
	case language.Subscription:
		root = w.schema.GetSubscriptionType()
	default:
		root = w.schema.GetQueryType()
	}
	if root == nil {
		w.report(violationMissingRootType(op.Operation, op.Position))
		return
	}
	w.checkSelectionSets([]scopedSet{{parent: root.Name, set: op.SelectionSet}})
}

// checkSelectionSets checks every response key of the merged sets, then
// merges the sub-selections of same-key fields and checks those in turn.
func (w *walker) checkSelectionSets(sets []scopedSet) {
	for _, group := range w.collectFields(sets).orderedFields() {
		members := make([]*Selection, 0, len(group.Members))
		lineages := make([][]string, 0, len(group.Members))
		var collected []collectedMember
		for _, m := range group.Members {
			if s := w.selection(m); s != nil {
				members = append(members, s)
				lineages = append(lineages, m.Lineage)
				collected = append(collected, m)
			}
		}
		exclusive := func(i, j int) bool { return w.disjoint(lineages[i], lineages[j]) }
		if v := checkGroup(group.ResponseKey, members, exclusive, w.opt.RelaxDisjointParents); v != nil {
			w.report(v)
			continue
		}

		var subs []scopedSet
		for i, s := range members {
			if len(s.Field.SelectionSet) == 0 {
				continue
			}
			subs = append(subs, scopedSet{
				parent:    s.Effective.GetNamedType(),
				path:      s.Path,
				set:       s.Field.SelectionSet,
				lineage:   collected[i].Lineage,
				fragments: collected[i].Fragments,
			})
		}
		if len(subs) > 0 {
			w.checkSelectionSets(subs)
		}
	}
}

// disjoint reports whether two lineages part on distinct object types, so
// the fields at their ends never contribute to the same response object.
func (w *walker) disjoint(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] && w.isObject(a[i]) && w.isObject(b[i]) {
			return true
		}
	}
	return false
}

func (w *walker) isObject(name string) bool {
	t := w.schema.Types[name]
	return t != nil && t.Kind == schema.TypeKindObject
}

// selection returns the annotation for a collected field at its response
// path, creating it on first sight. A fragment spread at several paths yields
// one Selection per path.
func (w *walker) selection(m collectedMember) *Selection {
	key := language.ResponseKey(m.Field)
	path := make([]string, 0, len(m.Path)+1)
	path = append(append(path, m.Path...), key)
	if s := w.result.at(m.Field, path); s != nil {
		return s
	}
	declared, ok := w.schema.FieldType(m.Parent, m.Field.Name)
	if !ok && m.Field.Definition != nil {
		// introspection fields such as __schema are only known to gqlparser
		declared, ok = schema.TypeRefFromAST(m.Field.Definition.Type), true
	}
	if !ok {
		w.report(violationUnknownField(m.Field.Name, m.Parent, m.Field.Position))
		return nil
	}

	d := w.doc.DesignatorOf(m.Field)
	s := &Selection{
		Field:       m.Field,
		Name:        m.Field.Name,
		ResponseKey: key,
		ParentType:  m.Parent,
		Path:        path,
		Declared:    declared,
		Designator:  d,
		Effective:   nullability.Effective(declared, d),
	}
	w.result.add(s)
	return s
}

// annotate replaces the definition of every designated field with a copy
// carrying its effective type, so later consumers of the AST see the
// overridden nullability. Applying it to a field seen at several paths is
// idempotent.
func (w *walker) annotate() {
	for _, s := range w.result.Selections {
		if s.Designator == language.DesignatorNone {
			continue
		}
		if s.Field.Definition == nil {
			s.Field.Definition = &language.FieldDefinition{
				Name: s.Field.Name,
				Type: s.Effective.ToAST(),
			}
			continue
		}
		def := *s.Field.Definition
		def.Type = nullability.EffectiveAST(def.Type, s.Designator)
		s.Field.Definition = &def
	}
}
