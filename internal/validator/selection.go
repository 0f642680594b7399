package validator

import (
	"strings"

	language "github.com/hanpama/ccn/internal/language"
	nullability "github.com/hanpama/ccn/internal/nullability"
	schema "github.com/hanpama/ccn/internal/schema"
)

// Selection is one field selection with its declared and effective types.
type Selection struct {
	Field       *language.Field     `json:"-"`
	Name        string              `json:"name"`
	ResponseKey string              `json:"responseKey"`
	ParentType  string              `json:"parentType"`
	Path        []string            `json:"path"`
	Declared    *schema.TypeRef     `json:"declared"`
	Designator  language.Designator `json:"designator,omitempty"`
	Effective   *schema.TypeRef     `json:"effective"`
}

// PathString joins the response path of the selection with dots.
func (s *Selection) PathString() string { return strings.Join(s.Path, ".") }

// Overridden reports whether the designator changed the declared type.
func (s *Selection) Overridden() bool { return nullability.Overrides(s.Declared, s.Designator) }

// Result is a validated operation document annotated with effective types.
type Result struct {
	Document   *language.OperationDocument
	Selections []*Selection // first-seen order, one per field and path

	byField map[*language.Field]*Selection
	byPath  map[selectionKey]*Selection
}

type selectionKey struct {
	field *language.Field
	path  string
}

func newResult(doc *language.OperationDocument) *Result {
	return &Result{
		Document: doc,
		byField:  make(map[*language.Field]*Selection),
		byPath:   make(map[selectionKey]*Selection),
	}
}

// Selection returns the annotation for f, or nil when f was never reached
// from an operation. A field reached at several paths, through a fragment
// spread more than once, returns the first path seen.
func (r *Result) Selection(f *language.Field) *Selection {
	if r == nil {
		return nil
	}
	return r.byField[f]
}

// EffectiveType returns the effective type of f, or nil.
func (r *Result) EffectiveType(f *language.Field) *schema.TypeRef {
	if s := r.Selection(f); s != nil {
		return s.Effective
	}
	return nil
}

func (r *Result) at(f *language.Field, path []string) *Selection {
	return r.byPath[selectionKey{f, strings.Join(path, ".")}]
}

func (r *Result) add(s *Selection) {
	if _, ok := r.byField[s.Field]; !ok {
		r.byField[s.Field] = s
	}
	r.byPath[selectionKey{s.Field, s.PathString()}] = s
	r.Selections = append(r.Selections, s)
}
