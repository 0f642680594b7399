// Package render prints validated operation documents with the effective
// type of every field selection written next to it.
package render

import (
	"strings"

	language "github.com/hanpama/ccn/internal/language"
	validator "github.com/hanpama/ccn/internal/validator"
)

const indent = "  "

// Operation renders every operation and fragment of res, one selection per
// line. Fields reached from an operation carry a trailing comment with their
// effective type, followed by the declared type when a designator changed it.
func Operation(res *validator.Result) string {
	var b strings.Builder
	doc := res.Document

	first := true
	sep := func() {
		if !first {
			b.WriteString("\n")
		}
		first = false
	}
	for _, op := range doc.Operations {
		sep()
		renderOperation(&b, res, op)
	}
	for _, frag := range doc.Fragments {
		sep()
		b.WriteString("fragment ")
		b.WriteString(frag.Name)
		b.WriteString(" on ")
		b.WriteString(frag.TypeCondition)
		renderDirectives(&b, frag.Directives)
		b.WriteString(" {\n")
		renderSelectionSet(&b, res, frag.SelectionSet, 1)
		b.WriteString("}\n")
	}
	return b.String()
}

func renderOperation(b *strings.Builder, res *validator.Result, op *language.OperationDefinition) {
	b.WriteString(string(op.Operation))
	if op.Name != "" {
		b.WriteString(" ")
		b.WriteString(op.Name)
	}
	if len(op.VariableDefinitions) > 0 {
		b.WriteString("(")
		for i, v := range op.VariableDefinitions {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(v.Variable)
			b.WriteString(": ")
			b.WriteString(v.Type.String())
			if v.DefaultValue != nil {
				b.WriteString(" = ")
				b.WriteString(v.DefaultValue.String())
			}
		}
		b.WriteString(")")
	}
	renderDirectives(b, op.Directives)
	b.WriteString(" {\n")
	renderSelectionSet(b, res, op.SelectionSet, 1)
	b.WriteString("}\n")
}

func renderSelectionSet(b *strings.Builder, res *validator.Result, set language.SelectionSet, depth int) {
	pad := strings.Repeat(indent, depth)
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			b.WriteString(pad)
			renderField(b, res, sel)
			if len(sel.SelectionSet) > 0 {
				renderSelectionSet(b, res, sel.SelectionSet, depth+1)
				b.WriteString(pad)
				b.WriteString("}\n")
			}
		case *language.InlineFragment:
			b.WriteString(pad)
			b.WriteString("...")
			if sel.TypeCondition != "" {
				b.WriteString(" on ")
				b.WriteString(sel.TypeCondition)
			}
			renderDirectives(b, sel.Directives)
			b.WriteString(" {\n")
			renderSelectionSet(b, res, sel.SelectionSet, depth+1)
			b.WriteString(pad)
			b.WriteString("}\n")
		case *language.FragmentSpread:
			b.WriteString(pad)
			b.WriteString("...")
			b.WriteString(sel.Name)
			renderDirectives(b, sel.Directives)
			b.WriteString("\n")
		}
	}
}

func renderField(b *strings.Builder, res *validator.Result, f *language.Field) {
	if f.Alias != "" && f.Alias != f.Name {
		b.WriteString(f.Alias)
		b.WriteString(": ")
	}
	b.WriteString(f.Name)
	if len(f.Arguments) > 0 {
		b.WriteString("(")
		for i, arg := range f.Arguments {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(arg.Name)
			b.WriteString(": ")
			b.WriteString(arg.Value.String())
		}
		b.WriteString(")")
	}
	b.WriteString(res.Document.DesignatorOf(f).String())
	renderDirectives(b, f.Directives)
	if len(f.SelectionSet) > 0 {
		b.WriteString(" {")
	}
	if s := res.Selection(f); s != nil {
		b.WriteString(" # ")
		b.WriteString(s.Effective.String())
		if s.Overridden() {
			b.WriteString(" (declared ")
			b.WriteString(s.Declared.String())
			b.WriteString(")")
		}
	}
	b.WriteString("\n")
}

func renderDirectives(b *strings.Builder, dirs language.DirectiveList) {
	for _, d := range dirs {
		b.WriteString(" @")
		b.WriteString(d.Name)
		if len(d.Arguments) > 0 {
			b.WriteString("(")
			for i, arg := range d.Arguments {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(arg.Name)
				b.WriteString(": ")
				b.WriteString(arg.Value.String())
			}
			b.WriteString(")")
		}
	}
}
