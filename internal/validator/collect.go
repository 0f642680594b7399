package validator

import (
	"slices"

	language "github.com/hanpama/ccn/internal/language"
)

// scopedSet is a selection set together with the type its fields are
// selected on.
type scopedSet struct {
	parent string
	path   []string
	set    language.SelectionSet

	// lineage holds the parent type of every enclosing field, outermost
	// first.
	lineage []string
	// fragments names the fragments spread on the way to set.
	fragments []string
}

// collectedFieldMap preserves field order from the original query
type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseKey string
	Members     []collectedMember
}

type collectedMember struct {
	Parent    string
	Path      []string
	Lineage   []string // parent types from the operation root down to Parent
	Fragments []string
	Field     *language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{
		fields: make([]collectedField, 0),
		index:  make(map[string]int),
	}
}

func (cfm *collectedFieldMap) add(key string, m collectedMember) {
	if idx, exists := cfm.index[key]; exists {
		cfm.fields[idx].Members = append(cfm.fields[idx].Members, m)
		return
	}
	cfm.index[key] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseKey: key,
		Members:     []collectedMember{m},
	})
}

func (cfm *collectedFieldMap) orderedFields() []collectedField {
	return cfm.fields
}

// collectFields groups the fields of every scoped set by response key,
// descending into inline fragments and fragment spreads. Directives are not
// evaluated: any selection may contribute to the response.
func (w *walker) collectFields(sets []scopedSet) *collectedFieldMap {
	grouped := newCollectedFieldMap()
	for _, s := range sets {
		visited := make(map[string]bool)
		w.collectFieldsImpl(s, s.parent, s.set, s.fragments, grouped, visited)
	}
	return grouped
}

func (w *walker) collectFieldsImpl(scope scopedSet, parent string, set language.SelectionSet, fragments []string, grouped *collectedFieldMap, visited map[string]bool) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			grouped.add(language.ResponseKey(sel), collectedMember{
				Parent:    parent,
				Path:      scope.path,
				Lineage:   extend(scope.lineage, parent),
				Fragments: fragments,
				Field:     sel,
			})

		case *language.InlineFragment:
			typ := parent
			if sel.TypeCondition != "" {
				typ = sel.TypeCondition
			}
			w.collectFieldsImpl(scope, typ, sel.SelectionSet, fragments, grouped, visited)

		case *language.FragmentSpread:
			if slices.Contains(fragments, sel.Name) {
				w.report(violationFragmentCycle(sel.Name, sel.Position))
				continue
			}
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true

			def := w.doc.Fragments.ForName(sel.Name)
			if def == nil {
				w.report(violationUnknownFragment(sel.Name, sel.Position))
				continue
			}
			w.collectFieldsImpl(scope, def.TypeCondition, def.SelectionSet, extend(fragments, sel.Name), grouped, visited)
		}
	}
}

// extend returns a copy of list with item appended.
func extend(list []string, item string) []string {
	out := make([]string, 0, len(list)+1)
	return append(append(out, list...), item)
}
