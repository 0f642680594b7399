package schema

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

// BuildFromSDL loads and validates SDL sources with gqlparser and returns the
// corresponding Schema. Extensions are merged into their base definitions.
func BuildFromSDL(sources ...*ast.Source) (*Schema, error) {
	if len(sources) == 0 {
		return nil, errors.New("no schema sources")
	}
	src, err := gqlparser.LoadSchema(sources...)
	if err != nil {
		return nil, err
	}
	return BuildFromAST(src)
}

// Load is BuildFromSDL for a single named document.
func Load(name, sdl string) (*Schema, error) {
	return BuildFromSDL(&ast.Source{Name: name, Input: sdl})
}

// BuildFromAST converts a validated gqlparser schema into a Schema.
func BuildFromAST(src *ast.Schema) (*Schema, error) {
	if src == nil {
		return nil, errors.New("nil schema")
	}
	if src.Query == nil {
		return nil, errors.New("schema has no query type")
	}
	s := NewSchema(src.Description)
	s.source = src
	s.SetQueryType(src.Query.Name)
	if src.Mutation != nil {
		s.SetMutationType(src.Mutation.Name)
	}
	if src.Subscription != nil {
		s.SetSubscriptionType(src.Subscription.Name)
	}

	names := make([]string, 0, len(src.Types))
	for name := range src.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		def := src.Types[name]
		switch def.Kind {
		case ast.Object:
			s.AddType(buildComposite(def, TypeKindObject))
		case ast.Interface:
			s.AddType(buildComposite(def, TypeKindInterface))
		case ast.Union:
			s.AddType(buildUnion(def))
		case ast.Enum:
			s.AddType(buildEnum(def))
		case ast.InputObject:
			s.AddType(buildInput(def))
		case ast.Scalar:
			s.AddType(buildScalar(def))
		default:
			return nil, errors.Errorf("type %q has unsupported kind %q", name, def.Kind)
		}
	}

	dirNames := make([]string, 0, len(src.Directives))
	for name := range src.Directives {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)
	for _, name := range dirNames {
		s.AddDirective(buildDirective(src.Directives[name]))
	}
	return s, nil
}

func buildComposite(def *ast.Definition, kind TypeKind) *Type {
	t := NewType(def.Name, kind, def.Description)

	interfaceNames := append([]string(nil), def.Interfaces...)
	sort.Strings(interfaceNames)
	for _, name := range interfaceNames {
		t.AddInterface(name)
	}

	for _, fieldDef := range def.Fields {
		if len(fieldDef.Name) > 1 && fieldDef.Name[:2] == "__" {
			continue
		}
		t.AddField(buildField(fieldDef))
	}
	return t
}

func buildField(def *ast.FieldDefinition) *Field {
	f := NewField(def.Name, def.Description, TypeRefFromAST(def.Type))
	if reason, ok := deprecation(def.Directives); ok {
		f.Deprecate(reason)
	}
	for _, arg := range def.Arguments {
		f.AddArgument(buildArgument(arg))
	}
	return f
}

func buildEnum(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindEnum, def.Description)
	for _, v := range def.EnumValues {
		e := NewEnumValue(v.Name, v.Description)
		if reason, ok := deprecation(v.Directives); ok {
			e.Deprecate(reason)
		}
		t.AddEnumValue(e)
	}
	return t
}

// TypeRefFromAST converts a gqlparser type reference.
func TypeRefFromAST(t *ast.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var inner *TypeRef
	if t.Elem != nil {
		inner = ListType(TypeRefFromAST(t.Elem))
	} else {
		inner = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(inner)
	}
	return inner
}

// ToAST converts t into a gqlparser type reference.
func (t *TypeRef) ToAST() *ast.Type {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case TypeRefKindNonNull:
		inner := t.OfType.ToAST()
		inner.NonNull = true
		return inner
	case TypeRefKindList:
		return ast.ListType(t.OfType.ToAST(), nil)
	default:
		return ast.NamedType(t.Named, nil)
	}
}

func buildArgument(a *ast.ArgumentDefinition) *InputValue {
	in := NewInputValue(a.Name, a.Description, TypeRefFromAST(a.Type)).SetDefault(defaultValue(a.DefaultValue))
	if reason, ok := deprecation(a.Directives); ok {
		in.Deprecate(reason)
	}
	return in
}

func buildInput(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindInputObject, def.Description).SetOneOf(def.Directives.ForName("oneOf") != nil)
	for _, v := range def.Fields {
		in := NewInputValue(v.Name, v.Description, TypeRefFromAST(v.Type)).SetDefault(defaultValue(v.DefaultValue))
		if reason, ok := deprecation(v.Directives); ok {
			in.Deprecate(reason)
		}
		t.AddInputField(in)
	}
	return t
}

func buildUnion(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindUnion, def.Description)

	// Sort union type names for deterministic output
	typeNames := append([]string(nil), def.Types...)
	sort.Strings(typeNames)

	for _, name := range typeNames {
		t.AddPossibleType(name)
	}
	return t
}

func buildScalar(def *ast.Definition) *Type {
	t := NewType(def.Name, TypeKindScalar, def.Description)
	if d := def.Directives.ForName("specifiedBy"); d != nil {
		if arg := d.Arguments.ForName("url"); arg != nil && arg.Value != nil {
			url := arg.Value.Raw
			t.SpecifiedByURL = &url
		}
	}
	return t
}

func buildDirective(dir *ast.DirectiveDefinition) *Directive {
	d := NewDirective(dir.Name, dir.Description).SetRepeatable(dir.IsRepeatable)
	for _, loc := range dir.Locations {
		d.Locations = append(d.Locations, string(loc))
	}
	for _, arg := range dir.Arguments {
		d.AddArgument(buildArgument(arg))
	}
	return d
}

func deprecation(dirs ast.DirectiveList) (string, bool) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return "", false
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw, true
	}
	return "", true
}

// RawValue is a GraphQL literal kept in source form.
type RawValue string

func defaultValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	return RawValue(v.String())
}
