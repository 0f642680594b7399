package schema

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Schema holds the declared types an operation is validated against.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type // All named types keyed by name
	Directives       map[string]*Directive
	Description      string

	source *ast.Schema
}

// AST returns the gqlparser schema the model was built from, or nil for
// hand-assembled schemas.
func (s *Schema) AST() *ast.Schema { return s.source }

// GetQueryType returns the root query type (may be nil if absent)
func (s *Schema) GetQueryType() *Type { return s.Types[s.QueryType] }

// GetMutationType returns the root mutation type (may be nil if absent)
func (s *Schema) GetMutationType() *Type { return s.Types[s.MutationType] }

// GetSubscriptionType returns the root subscription type (may be nil if absent)
func (s *Schema) GetSubscriptionType() *Type { return s.Types[s.SubscriptionType] }

// FieldType returns the declared type of field name on the named parent type.
// The introspection field __typename is available on every composite type.
func (s *Schema) FieldType(parent, name string) (*TypeRef, bool) {
	if name == TypenameField {
		return typenameType, true
	}
	t := s.Types[parent]
	if t == nil {
		return nil, false
	}
	f := t.FieldByName(name)
	if f == nil {
		return nil, false
	}
	return f.Type, true
}

// Type is a named GraphQL type (object, interface, union, scalar, enum, input)
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field      // For OBJECT and INTERFACE
	Interfaces     []string      // For OBJECT and INTERFACE (implemented/extended)
	PossibleTypes  []string      // For INTERFACE and UNION
	EnumValues     []*EnumValue  // For ENUM
	InputFields    []*InputValue // For INPUT_OBJECT
	SpecifiedByURL *string
	OneOf          bool
}

// FieldByName returns the field called name, or nil.
func (t *Type) FieldByName(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsComposite reports whether values of t have sub-selections.
func (t *Type) IsComposite() bool {
	switch t.Kind {
	case TypeKindObject, TypeKindInterface, TypeKindUnion:
		return true
	}
	return false
}

// Field represents a field on an object or interface
type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	IsDeprecated      bool
	DeprecationReason string
}

// TypeKind represents the kind of GraphQL type
type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// TypeRef represents a reference to a type (can be wrapped)
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef // For List and NonNull
	Named  string   // For named types
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// Helper functions for TypeRef
func (t *TypeRef) IsNonNull() bool {
	return t != nil && t.Kind == TypeRefKindNonNull
}

func (t *TypeRef) GetNamedType() string {
	current := t
	for current != nil {
		if current.Named != "" {
			return current.Named
		}
		current = current.OfType
	}
	return ""
}

// Equal reports whether t and o have the same named type and the same list
// and non-null wrapping at every level.
func (t *TypeRef) Equal(o *TypeRef) bool {
	for {
		if t == nil || o == nil {
			return t == o
		}
		if t.Kind != o.Kind {
			return false
		}
		if t.Kind == TypeRefKindNamed {
			return t.Named == o.Named
		}
		t, o = t.OfType, o.OfType
	}
}

// String renders t in GraphQL type syntax, e.g. [String!]!.
func (t *TypeRef) String() string {
	var b strings.Builder
	writeTypeRef(&b, t)
	return b.String()
}

func writeTypeRef(b *strings.Builder, t *TypeRef) {
	if t == nil {
		return
	}
	switch t.Kind {
	case TypeRefKindNamed:
		b.WriteString(t.Named)
	case TypeRefKindList:
		b.WriteByte('[')
		writeTypeRef(b, t.OfType)
		b.WriteByte(']')
	case TypeRefKindNonNull:
		writeTypeRef(b, t.OfType)
		b.WriteByte('!')
	}
}

// MarshalText renders t in GraphQL type syntax.
func (t *TypeRef) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
