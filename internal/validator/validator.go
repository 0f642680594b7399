// Package validator checks client-controlled nullability designators in an
// operation document against a schema.
//
// Two field selections that share a response key are merged into one
// response entry, so they must agree on the type they produce. With
// designators in play the type that matters is the effective one: the
// declared type with `!` forcing non-null and `?` forcing nullable. A document
// in which `someValue: nickname` and `someValue: nickname!` meet is invalid,
// while two `nickname!` selections merge as usual.
//
// Validation runs in two stages. gqlparser's standard rules first check the
// document with the designators removed, minus OverlappingFieldsCanBeMerged:
// that rule compares declared types, so the walker owns field merging.
// Then every operation is walked, fields are collected by response key across
// inline fragments and fragment spreads, CheckGroup is applied to each key,
// and the sub-selections of same-key fields are merged and checked
// recursively. A successful run
// returns a Result mapping every reached field to its Selection.
package validator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"
	gqlvalidator "github.com/vektah/gqlparser/v2/validator"
	gqlrules "github.com/vektah/gqlparser/v2/validator/rules"

	eventbus "github.com/hanpama/ccn/internal/eventbus"
	events "github.com/hanpama/ccn/internal/events"
	language "github.com/hanpama/ccn/internal/language"
	schema "github.com/hanpama/ccn/internal/schema"
)

type Options struct {
	// RelaxDisjointParents ignores conflicts between selections made on two
	// different concrete object types; only one of them can ever contribute
	// to a given response object.
	RelaxDisjointParents bool

	// SkipStandardRules disables gqlparser's standard validation. Use it when
	// the document has already been validated.
	SkipStandardRules bool

	// SkipAnnotation leaves field definitions in the AST untouched.
	SkipAnnotation bool
}

type Option func(*Options)

func WithRelaxedDisjointParents() Option { return func(o *Options) { o.RelaxDisjointParents = true } }
func WithoutStandardRules() Option       { return func(o *Options) { o.SkipStandardRules = true } }
func WithoutAnnotation() Option          { return func(o *Options) { o.SkipAnnotation = true } }

// Validator validates operation documents against one schema. It is safe for
// concurrent use as long as each document is validated by one caller at a
// time.
type Validator struct {
	schema *schema.Schema
	opt    Options
}

func New(s *schema.Schema, opts ...Option) *Validator {
	var op Options
	for _, f := range opts {
		f(&op)
	}
	return &Validator{schema: s, opt: op}
}

// Schema returns the schema documents are validated against.
func (v *Validator) Schema() *schema.Schema { return v.schema }

// ValidateSource parses source and validates it. Syntax errors are reported
// as a ValidationError like any other violation.
func (v *Validator) ValidateSource(ctx context.Context, name, source string) (*Result, error) {
	doc, err := language.ParseOperation(name, source)
	if err != nil {
		var gqlErr *gqlerror.Error
		if errors.As(err, &gqlErr) {
			return nil, ValidationError{fromGQLError(gqlErr, name)}
		}
		return nil, errors.Wrapf(err, "parse %s", name)
	}
	return v.Validate(ctx, doc)
}

// Validate checks doc and returns it annotated with effective types. On
// failure the error is a ValidationError.
func (v *Validator) Validate(ctx context.Context, doc *language.OperationDocument) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := documentName(doc)
	ops := operationNames(doc)

	start := time.Now()
	eventbus.Publish(ctx, events.ValidationStart{Document: name, Operations: ops})
	res, violations := v.validate(doc, name)
	finish := events.ValidationFinish{
		Document:   name,
		Operations: ops,
		Violations: len(violations),
		Duration:   time.Since(start),
	}
	if res != nil {
		for _, s := range res.Selections {
			if s.Overridden() {
				finish.Overrides++
			}
		}
	}
	eventbus.Publish(ctx, finish)

	if len(violations) > 0 {
		return nil, violations
	}
	return res, nil
}

func (v *Validator) validate(doc *language.OperationDocument, name string) (*Result, ValidationError) {
	if !v.opt.SkipStandardRules && v.schema.AST() != nil {
		if list := gqlvalidator.ValidateWithRules(v.schema.AST(), doc.QueryDocument, standardRules()); len(list) > 0 {
			return nil, fromGQLErrors(list, name)
		}
	}

	w := newWalker(v.schema, doc, v.opt)
	for _, op := range doc.Operations {
		w.walkOperation(op)
	}
	if len(w.violations) > 0 {
		return nil, w.violations
	}
	if !v.opt.SkipAnnotation {
		w.annotate()
	}
	return w.result, nil
}

// standardRules is gqlparser's default rule set without field merging.
func standardRules() *gqlrules.Rules {
	r := gqlrules.NewDefaultRules()
	r.RemoveRule(gqlrules.OverlappingFieldsCanBeMergedRule.Name)
	return r
}

func documentName(doc *language.OperationDocument) string {
	if doc.Source != nil {
		return doc.Source.Name
	}
	return ""
}

func operationNames(doc *language.OperationDocument) []string {
	names := make([]string, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		names = append(names, op.Name)
	}
	return names
}
