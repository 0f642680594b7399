package validator

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	eventbus "github.com/hanpama/ccn/internal/eventbus"
	events "github.com/hanpama/ccn/internal/events"
	language "github.com/hanpama/ccn/internal/language"
	schema "github.com/hanpama/ccn/internal/schema"
)

func loadTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sdl, err := os.ReadFile("testdata/schema.graphql")
	require.NoError(t, err)
	s, err := schema.Load("schema.graphql", string(sdl))
	require.NoError(t, err)
	return s
}

func validationError(t *testing.T, err error) ValidationError {
	t.Helper()
	require.Error(t, err)
	var verr ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %T: %v", err, err)
	return verr
}

func TestValidateMergeConflicts(t *testing.T) {
	s := loadTestSchema(t)
	for _, tc := range []struct {
		name  string
		query string
		keys  []string // response keys of the expected violations; nil when valid
	}{
		{
			name:  "designator against none",
			query: `{ me { someValue: nickname someValue: nickname! } }`,
			keys:  []string{"someValue"},
		},
		{
			name:  "identical required designators",
			query: `{ me { someValue: nickname! someValue: nickname! } }`,
		},
		{
			name:  "optional against required",
			query: `{ me { nickname? nickname! } }`,
			keys:  []string{"nickname"},
		},
		{
			name:  "required on non-null field is a no-op",
			query: `{ me { name name! } }`,
		},
		{
			name:  "optional on nullable field is a no-op",
			query: `{ me { nickname nickname? } }`,
		},
		{
			name:  "optional on non-null field",
			query: `{ me { name name? } }`,
			keys:  []string{"name"},
		},
		{
			name:  "only the outer list wrapper changes",
			query: `{ me { friends! { id } friends! { name } } }`,
		},
		{
			name:  "list field against designator",
			query: `{ me { tags tags? } }`,
			keys:  []string{"tags"},
		},
		{
			name:  "composite field with arguments",
			query: `{ a: user(id: "1")! { id } a: user(id: "1") { id } }`,
			keys:  []string{"a"},
		},
		{
			name:  "different keys never conflict",
			query: `{ me { a: nickname! b: nickname? } }`,
		},
		{
			name: "fragment spread",
			query: `
				{ me { nickname! ...Names } }
				fragment Names on User { nickname }`,
			keys: []string{"nickname"},
		},
		{
			name:  "inline fragment",
			query: `{ me { nickname ... on User { nickname! } } }`,
			keys:  []string{"nickname"},
		},
		{
			name:  "nested sub-selections are merged",
			query: `{ me { bestFriend { nickname! } } me { bestFriend { nickname } } }`,
			keys:  []string{"nickname"},
		},
		{
			name:  "interface and object",
			query: `{ node(id: "1") { id ... on User { id? } } }`,
			keys:  []string{"id"},
		},
		{
			name:  "distinct object parents",
			query: `{ search(term: "x") { ... on User { value: nickname! } ... on Photo { value: title } } }`,
			keys:  []string{"value"},
		},
		{
			name:  "required designator aligns distinct object parents",
			query: `{ search(term: "x") { ... on User { value: nickname! } ... on Photo { value: caption } } }`,
		},
		{
			name:  "optional designator aligns distinct object parents",
			query: `{ search(term: "x") { ... on User { value: nickname } ... on Photo { value: caption? } } }`,
		},
		{
			name: "distinct object parents carry into sub-selections",
			query: `{ search(term: "x") {
				... on User { person: bestFriend { label: name } }
				... on Photo { person: owner { label: nickname! } }
			} }`,
		},
		{
			name:  "different fields under one parent",
			query: `{ me { label: name label: nickname! } }`,
			keys:  []string{"label"},
		},
		{
			name:  "different fields under nested parents",
			query: `{ me { bestFriend { label: name } } me { bestFriend { label: nickname! } } }`,
			keys:  []string{"label"},
		},
		{
			name:  "differing arguments",
			query: `{ a: user(id: "1") { id } a: user(id: "2") { id } }`,
			keys:  []string{"a"},
		},
		{
			name:  "arguments in any order",
			query: `mutation { r: rename(id: "1", name: "x") { id } r: rename(name: "x", id: "1") { id } }`,
		},
		{
			name:  "mutation",
			query: `mutation { rename(id: "1", name: "x")? { id } rename(id: "1", name: "x") { id } }`,
			keys:  []string{"rename"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := New(s)
			res, err := v.ValidateSource(context.Background(), "op.graphql", tc.query)
			if tc.keys == nil {
				require.NoError(t, err)
				require.NotNil(t, res)
				return
			}
			verr := validationError(t, err)
			var keys []string
			for _, violation := range verr {
				require.Equal(t, RuleFieldsCanMerge, violation.Rule)
				require.Contains(t, violation.Message, `"`+violation.ResponseKey+`"`)
				keys = append(keys, violation.ResponseKey)
			}
			if diff := cmp.Diff(tc.keys, keys); diff != "" {
				t.Fatalf("violations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidateConflictMessage(t *testing.T) {
	v := New(loadTestSchema(t))
	_, err := v.ValidateSource(context.Background(), "op.graphql", "{\n  me {\n    someValue: nickname\n    someValue: nickname!\n  }\n}")
	verr := validationError(t, err)
	require.Len(t, verr, 1)

	want := &Violation{
		Message:     `Fields "someValue" conflict because they return conflicting types String and String!. Use different aliases on the fields to fetch both if this was intentional.`,
		Rule:        RuleFieldsCanMerge,
		ResponseKey: "someValue",
		File:        "op.graphql",
		Line:        4,
		Column:      5,
	}
	if diff := cmp.Diff(want, verr[0]); diff != "" {
		t.Fatalf("violation mismatch (-want +got):\n%s", diff)
	}
	require.Contains(t, err.Error(), "op.graphql:4:5")

	gqlErrs := verr.GQLErrors()
	require.Len(t, gqlErrs, 1)
	require.Equal(t, RuleFieldsCanMerge, gqlErrs[0].Extensions["rule"])
	require.Equal(t, "someValue", gqlErrs[0].Extensions["responseKey"])
}

func TestValidateMergeConflictMessages(t *testing.T) {
	v := New(loadTestSchema(t))

	_, err := v.ValidateSource(context.Background(), "op.graphql", `{ me { label: name label: nickname! } }`)
	verr := validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, `Fields "label" conflict because "name" and "nickname" are different fields. Use different aliases on the fields to fetch both if this was intentional.`, verr[0].Message)

	_, err = v.ValidateSource(context.Background(), "op.graphql", `{ a: user(id: "1") { id } a: user(id: "2") { id } }`)
	verr = validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, `Fields "a" conflict because they have differing arguments. Use different aliases on the fields to fetch both if this was intentional.`, verr[0].Message)
	require.Equal(t, 1, verr[0].Line)
	require.Equal(t, 27, verr[0].Column)
}

func TestValidateRelaxedDisjointParents(t *testing.T) {
	s := loadTestSchema(t)
	query := `{ search(term: "x") { ... on User { value: nickname! } ... on Photo { value: title } } }`

	_, err := New(s, WithRelaxedDisjointParents()).ValidateSource(context.Background(), "op.graphql", query)
	require.NoError(t, err)

	// same parent still conflicts
	_, err = New(s, WithRelaxedDisjointParents()).ValidateSource(context.Background(), "op.graphql",
		`{ search(term: "x") { ... on User { value: nickname } ... on User { value: nickname! } } }`)
	require.Len(t, validationError(t, err), 1)

	// an interface parent may overlap with any implementation
	_, err = New(s, WithRelaxedDisjointParents()).ValidateSource(context.Background(), "op.graphql",
		`{ node(id: "1") { id ... on User { id? } } }`)
	require.Len(t, validationError(t, err), 1)
}

func TestValidateAnnotatesEffectiveTypes(t *testing.T) {
	v := New(loadTestSchema(t))
	res, err := v.ValidateSource(context.Background(), "op.graphql", `{ me! { nickname! name? id } }`)
	require.NoError(t, err)

	got := map[string]string{}
	for _, sel := range res.Selections {
		got[sel.PathString()] = sel.Declared.String() + " -> " + sel.Effective.String()
	}
	want := map[string]string{
		"me":          "User -> User!",
		"me.nickname": "String -> String!",
		"me.name":     "String! -> String",
		"me.id":       "ID! -> ID!",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("selections mismatch (-want +got):\n%s", diff)
	}

	for _, f := range language.AllFields(res.Document.QueryDocument) {
		require.Equal(t, res.EffectiveType(f).String(), f.Definition.Type.String(), "field %s", f.Name)
	}

	me := res.Document.Operations[0].SelectionSet[0].(*language.Field)
	require.True(t, res.Selection(me).Overridden())
	require.Equal(t, language.DesignatorRequired, res.Selection(me).Designator)
}

func TestValidateFragmentAtSeveralPaths(t *testing.T) {
	v := New(loadTestSchema(t))
	res, err := v.ValidateSource(context.Background(), "op.graphql", `
		{ me { ...Names bestFriend { ...Names } } }
		fragment Names on User { nickname! }`)
	require.NoError(t, err)

	var paths []string
	for _, sel := range res.Selections {
		if sel.Name == "nickname" {
			paths = append(paths, sel.PathString())
		}
	}
	require.Equal(t, []string{"me.nickname", "me.bestFriend.nickname"}, paths)

	nickname := res.Document.Fragments.ForName("Names").SelectionSet[0].(*language.Field)
	require.Equal(t, "me.nickname", res.Selection(nickname).PathString())
	require.Equal(t, "String!", nickname.Definition.Type.String())
}

func TestValidateWithoutAnnotation(t *testing.T) {
	v := New(loadTestSchema(t), WithoutAnnotation())
	res, err := v.ValidateSource(context.Background(), "op.graphql", `{ me { nickname! } }`)
	require.NoError(t, err)

	nickname := res.Document.Operations[0].SelectionSet[0].(*language.Field).SelectionSet[0].(*language.Field)
	require.Equal(t, "String", nickname.Definition.Type.String())
	require.Equal(t, "String!", res.EffectiveType(nickname).String())
}

func TestValidateStandardRules(t *testing.T) {
	v := New(loadTestSchema(t))

	_, err := v.ValidateSource(context.Background(), "op.graphql", `{ me { unknown! } }`)
	verr := validationError(t, err)
	require.NotEmpty(t, verr)
	require.Equal(t, "FieldsOnCorrectType", verr[0].Rule)

	_, err = v.ValidateSource(context.Background(), "op.graphql", `{ me { ...Missing } }`)
	require.NotEmpty(t, validationError(t, err))
}

func TestValidateWithoutStandardRules(t *testing.T) {
	v := New(loadTestSchema(t), WithoutStandardRules())

	_, err := v.ValidateSource(context.Background(), "op.graphql", `{ me { unknown } }`)
	verr := validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, RuleFieldsOnCorrectType, verr[0].Rule)

	_, err = v.ValidateSource(context.Background(), "op.graphql", `{ me { ...Missing } }`)
	verr = validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, RuleKnownFragment, verr[0].Rule)

	_, err = v.ValidateSource(context.Background(), "op.graphql", `subscription { me }`)
	verr = validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, RuleKnownRootType, verr[0].Rule)
}

func TestValidateFragmentCycles(t *testing.T) {
	defer goleak.VerifyNone(t)

	v := New(loadTestSchema(t), WithoutStandardRules())
	for _, query := range []string{
		`{ me { ...A } } fragment A on User { a: bestFriend { ...A } b: bestFriend { ...A } }`,
		`{ me { ...A } } fragment A on User { bestFriend { ...B } } fragment B on User { friends { ...A } }`,
	} {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		done := make(chan error, 1)
		go func() {
			_, err := v.ValidateSource(ctx, "op.graphql", query)
			done <- err
		}()

		var err error
		select {
		case err = <-done:
		case <-ctx.Done():
			cancel()
			t.Fatalf("validation of %q did not finish", query)
		}
		cancel()

		verr := validationError(t, err)
		require.NotEmpty(t, verr)
		for _, violation := range verr {
			require.Equal(t, RuleNoFragmentCycles, violation.Rule)
			require.Contains(t, violation.Message, "within itself")
		}
	}

	// spreading a fragment at two depths is not a cycle
	_, err := v.ValidateSource(context.Background(), "op.graphql", `
		{ me { ...Names bestFriend { ...Names } } }
		fragment Names on User { id }`)
	require.NoError(t, err)
}

func TestValidateSyntaxErrors(t *testing.T) {
	v := New(loadTestSchema(t))

	_, err := v.ValidateSource(context.Background(), "op.graphql", `{ me @include(if: true)! }`)
	verr := validationError(t, err)
	require.Len(t, verr, 1)
	require.Equal(t, RuleSyntax, verr[0].Rule)
	require.Equal(t, "op.graphql", verr[0].File)
	require.Equal(t, 1, verr[0].Line)

	_, err = v.ValidateSource(context.Background(), "op.graphql", `{ me { `)
	verr = validationError(t, err)
	require.Equal(t, RuleSyntax, verr[0].Rule)
}

func TestValidateCanceledContext(t *testing.T) {
	v := New(loadTestSchema(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.ValidateSource(ctx, "op.graphql", `{ me { id } }`)
	require.ErrorIs(t, err, context.Canceled)
}

func TestValidatePublishesEvents(t *testing.T) {
	var starts []events.ValidationStart
	var finishes []events.ValidationFinish
	defer eventbus.Subscribe(func(_ context.Context, e events.ValidationStart) { starts = append(starts, e) })()
	defer eventbus.Subscribe(func(_ context.Context, e events.ValidationFinish) { finishes = append(finishes, e) })()

	v := New(loadTestSchema(t))
	_, err := v.ValidateSource(context.Background(), "op.graphql", `query Q { me { nickname! name } }`)
	require.NoError(t, err)
	_, err = v.ValidateSource(context.Background(), "bad.graphql", `query R { me { nickname nickname? nickname! } }`)
	require.Error(t, err)

	require.Len(t, starts, 2)
	require.Equal(t, []string{"Q"}, starts[0].Operations)
	require.Len(t, finishes, 2)
	require.Equal(t, "op.graphql", finishes[0].Document)
	require.Equal(t, 0, finishes[0].Violations)
	require.Equal(t, 1, finishes[0].Overrides)
	require.Equal(t, "bad.graphql", finishes[1].Document)
	require.Equal(t, 1, finishes[1].Violations)
}

func TestCheckGroup(t *testing.T) {
	nickname := func(d language.Designator, col int) *Selection {
		declared := schema.NamedType("String")
		eff := declared
		if d == language.DesignatorRequired {
			eff = schema.NonNullType(declared)
		}
		return &Selection{
			Field:       &language.Field{Alias: "someValue", Name: "nickname", Position: &language.Position{Line: 1, Column: col}},
			Name:        "nickname",
			ResponseKey: "someValue",
			ParentType:  "User",
			Declared:    declared,
			Designator:  d,
			Effective:   eff,
		}
	}

	require.Nil(t, CheckGroup("someValue", nil))
	other := nickname(language.DesignatorNone, 12)
	other.Name, other.Field.Name = "name", "name"
	other.Effective = schema.NamedType("String")
	v := CheckGroup("someValue", []*Selection{nickname(language.DesignatorNone, 1), other})
	require.NotNil(t, v)
	require.Contains(t, v.Message, "different fields")

	require.Nil(t, CheckGroup("someValue", []*Selection{nickname(language.DesignatorRequired, 1)}))
	require.Nil(t, CheckGroup("someValue", []*Selection{
		nickname(language.DesignatorRequired, 1),
		nickname(language.DesignatorRequired, 10),
	}))

	v = CheckGroup("someValue", []*Selection{
		nickname(language.DesignatorNone, 1),
		nickname(language.DesignatorNone, 5),
		nickname(language.DesignatorRequired, 10),
	})
	require.NotNil(t, v)
	require.Equal(t, "someValue", v.ResponseKey)
	require.Equal(t, 10, v.Column)
	require.Contains(t, v.Message, "String and String!")
}
