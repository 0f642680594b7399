package schema

// TypenameField is the introspection field every composite type exposes.
const TypenameField = "__typename"

var typenameType = NonNullType(NamedType("String"))

var builtinScalars = map[string]bool{
	"String":  true,
	"Int":     true,
	"Float":   true,
	"Boolean": true,
	"ID":      true,
}

var builtinDirectives = map[string]bool{
	"include":     true,
	"skip":        true,
	"deprecated":  true,
	"specifiedBy": true,
	"oneOf":       true,
	"defer":       true,
}

// isBuiltin reports whether the named type is predeclared by GraphQL itself
// (scalars and introspection types).
func isBuiltin(name string) bool {
	return builtinScalars[name] || len(name) > 1 && name[:2] == "__"
}
