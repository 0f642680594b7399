package language

import (
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// OperationDocument is a query document whose field selections may carry
// nullability designators.
type OperationDocument struct {
	*QueryDocument

	// Source is the original text, designators included.
	Source *Source

	// Designators holds the designator of every field that has one.
	Designators map[*Field]Designator
}

// DesignatorOf returns the designator written on f, or DesignatorNone.
func (d *OperationDocument) DesignatorOf(f *Field) Designator {
	if d == nil || d.Designators == nil {
		return DesignatorNone
	}
	return d.Designators[f]
}

// ParseOperation parses an executable document that may use `!` and `?`
// designators on field selections.
func ParseOperation(name, source string) (*OperationDocument, error) {
	src := &ast.Source{Name: name, Input: source}
	stripped, marks, err := stripDesignators(src)
	if err != nil {
		return nil, err
	}
	doc, err := parser.ParseQuery(&ast.Source{Name: name, Input: stripped})
	if err != nil {
		return nil, err
	}
	out := &OperationDocument{
		QueryDocument: doc,
		Source:        src,
		Designators:   make(map[*Field]Designator, len(marks)),
	}
	if len(marks) == 0 {
		return out, nil
	}

	fields := AllFields(doc)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Position.Start < fields[j].Position.Start })
	for _, m := range marks {
		// owner is the last field starting before the mark; arguments never contain fields
		i := sort.Search(len(fields), func(i int) bool { return fields[i].Position.Start > m.offset })
		if i == 0 {
			return nil, errorAt(src, m.line, m.column, "Unexpected nullability designator %q", m.designator.String())
		}
		out.Designators[fields[i-1]] = m.designator
	}
	return out, nil
}

// AllFields returns every field node of the document, operations first,
// then fragments, each in source order.
func AllFields(doc *QueryDocument) []*Field {
	var out []*Field
	var walk func(SelectionSet)
	walk = func(set SelectionSet) {
		for _, sel := range set {
			switch s := sel.(type) {
			case *Field:
				out = append(out, s)
				walk(s.SelectionSet)
			case *InlineFragment:
				walk(s.SelectionSet)
			}
		}
	}
	for _, op := range doc.Operations {
		walk(op.SelectionSet)
	}
	for _, frag := range doc.Fragments {
		walk(frag.SelectionSet)
	}
	return out
}

// ResponseKey returns the alias of f, or its name when it has none.
func ResponseKey(f *Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
