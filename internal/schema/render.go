package schema

import (
	"bytes"
	"sort"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

var renderPos = &ast.Position{Src: &ast.Source{Name: "render"}}

// Render produces SDL from the Schema. Types and directives are sorted by
// name; built-in scalars, directives and introspection types are left out.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatSchemaDocument(Document(s))
	return buf.String()
}

// Document converts s back into a gqlparser schema document.
func Document(s *Schema) *ast.SchemaDocument {
	doc := &ast.SchemaDocument{}
	if def := schemaDefinition(s); def != nil {
		doc.Schema = append(doc.Schema, def)
	}

	for _, name := range sortedKeys(s.Directives) {
		if builtinDirectives[name] {
			continue
		}
		doc.Directives = append(doc.Directives, directiveDefinition(s.Directives[name]))
	}
	for _, name := range sortedKeys(s.Types) {
		if isBuiltin(name) {
			continue
		}
		doc.Definitions = append(doc.Definitions, definition(s.Types[name]))
	}
	return doc
}

// schemaDefinition returns nil when every root type has its default name.
func schemaDefinition(s *Schema) *ast.SchemaDefinition {
	if s.QueryType == "Query" &&
		(s.MutationType == "" || s.MutationType == "Mutation") &&
		(s.SubscriptionType == "" || s.SubscriptionType == "Subscription") {
		return nil
	}
	def := &ast.SchemaDefinition{Description: s.Description, Position: renderPos}
	for _, root := range []struct {
		op   ast.Operation
		name string
	}{
		{ast.Query, s.QueryType},
		{ast.Mutation, s.MutationType},
		{ast.Subscription, s.SubscriptionType},
	} {
		if root.name != "" {
			def.OperationTypes = append(def.OperationTypes, &ast.OperationTypeDefinition{
				Operation: root.op,
				Type:      root.name,
				Position:  renderPos,
			})
		}
	}
	return def
}

func definition(t *Type) *ast.Definition {
	def := &ast.Definition{
		Name:        t.Name,
		Description: t.Description,
		Position:    renderPos,
	}
	switch t.Kind {
	case TypeKindScalar:
		def.Kind = ast.Scalar
		if t.SpecifiedByURL != nil {
			def.Directives = append(def.Directives, directive("specifiedBy", "url", *t.SpecifiedByURL))
		}
	case TypeKindEnum:
		def.Kind = ast.Enum
		for _, v := range t.EnumValues {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{
				Name:        v.Name,
				Description: v.Description,
				Directives:  deprecatedDirectives(v.IsDeprecated, v.DeprecationReason),
				Position:    renderPos,
			})
		}
	case TypeKindInputObject:
		def.Kind = ast.InputObject
		if t.OneOf {
			def.Directives = append(def.Directives, &ast.Directive{Name: "oneOf", Position: renderPos})
		}
		for _, v := range t.InputFields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:         v.Name,
				Description:  v.Description,
				Type:         v.Type.ToAST(),
				DefaultValue: literal(v.DefaultValue),
				Directives:   deprecatedDirectives(v.IsDeprecated, v.DeprecationReason),
				Position:     renderPos,
			})
		}
	case TypeKindObject, TypeKindInterface:
		def.Kind = ast.Object
		if t.Kind == TypeKindInterface {
			def.Kind = ast.Interface
		}
		def.Interfaces = append(def.Interfaces, t.Interfaces...)
		for _, f := range t.Fields {
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:        f.Name,
				Description: f.Description,
				Arguments:   argumentDefinitions(f.Arguments),
				Type:        f.Type.ToAST(),
				Directives:  deprecatedDirectives(f.IsDeprecated, f.DeprecationReason),
				Position:    renderPos,
			})
		}
	case TypeKindUnion:
		def.Kind = ast.Union
		def.Types = append(def.Types, t.PossibleTypes...)
	}
	return def
}

func directiveDefinition(d *Directive) *ast.DirectiveDefinition {
	def := &ast.DirectiveDefinition{
		Name:         d.Name,
		Description:  d.Description,
		Arguments:    argumentDefinitions(d.Arguments),
		IsRepeatable: d.IsRepeatable,
		Position:     renderPos,
	}
	for _, loc := range d.Locations {
		def.Locations = append(def.Locations, ast.DirectiveLocation(loc))
	}
	return def
}

func argumentDefinitions(args []*InputValue) ast.ArgumentDefinitionList {
	var out ast.ArgumentDefinitionList
	for _, a := range args {
		out = append(out, &ast.ArgumentDefinition{
			Name:         a.Name,
			Description:  a.Description,
			Type:         a.Type.ToAST(),
			DefaultValue: literal(a.DefaultValue),
			Directives:   deprecatedDirectives(a.IsDeprecated, a.DeprecationReason),
			Position:     renderPos,
		})
	}
	return out
}

func deprecatedDirectives(deprecated bool, reason string) ast.DirectiveList {
	if !deprecated {
		return nil
	}
	if reason == "" {
		return ast.DirectiveList{{Name: "deprecated", Position: renderPos}}
	}
	return ast.DirectiveList{directive("deprecated", "reason", reason)}
}

func directive(name, arg, value string) *ast.Directive {
	return &ast.Directive{
		Name: name,
		Arguments: ast.ArgumentList{{
			Name:     arg,
			Value:    &ast.Value{Kind: ast.StringValue, Raw: value, Position: renderPos},
			Position: renderPos,
		}},
		Position: renderPos,
	}
}

// literal turns a default value back into an AST value. Raw literals are
// stored as enum values, which the formatter prints verbatim.
func literal(v any) *ast.Value {
	switch v := v.(type) {
	case nil:
		return nil
	case RawValue:
		return &ast.Value{Kind: ast.EnumValue, Raw: string(v), Position: renderPos}
	case *ast.Value:
		return v
	default:
		return nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
