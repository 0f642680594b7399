package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/jensneuse/abstractlogger"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	server "github.com/hanpama/ccn/internal/server"
)

const testSchema = `type Query { me: User }
type User { id: ID! name: String! nickname: String }
`

func testEnv(t *testing.T, files map[string]string) (env, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, name, []byte(content), 0o644))
	}
	var stdout, stderr bytes.Buffer
	return env{fs: fsys, stdout: &stdout, stderr: &stderr}, &stdout, &stderr
}

func TestHelp(t *testing.T) {
	e, out, _ := testEnv(t, nil)
	require.NoError(t, run(e, []string{"help", "check"}))
	require.Contains(t, out.String(), "check FLAGS")

	out.Reset()
	require.NoError(t, run(e, []string{"help"}))
	require.Contains(t, out.String(), "COMMANDS")

	require.Error(t, run(e, []string{"help", "nope"}))
}

func TestUnknownCommand(t *testing.T) {
	e, _, errOut := testEnv(t, nil)
	require.ErrorContains(t, run(e, []string{"frobnicate"}), "unknown command")
	require.Contains(t, errOut.String(), "USAGE")

	require.ErrorContains(t, run(e, nil), "missing command")
}

func TestCheck(t *testing.T) {
	e, out, _ := testEnv(t, map[string]string{
		"schema.graphql":       testSchema,
		"ops/profile.graphql":  `{ me! { nickname! name } }`,
		"ops/conflict.graphql": "{\n  me {\n    someValue: nickname\n    someValue: nickname!\n  }\n}",
		"ops/other/ok.graphql": `{ me { id } }`,
		"ops/other/readme.txt": `ignored`,
	})

	err := run(e, []string{"check", "-ops", "ops/**/*.graphql", "-concurrency", "2"})
	require.ErrorContains(t, err, "1 of 3 document(s) invalid")

	got := out.String()
	require.Contains(t, got, "ok   ops/profile.graphql (3 fields, 2 overridden)")
	require.Contains(t, got, "ok   ops/other/ok.graphql (2 fields, 0 overridden)")
	require.Contains(t, got, `FAIL ops/conflict.graphql:4:5: Fields "someValue" conflict`)
	require.Contains(t, got, "[FieldsWithNullabilityDesignatorsCanMerge]")
}

func TestCheckDefaultsSkipSchema(t *testing.T) {
	e, out, _ := testEnv(t, map[string]string{
		"schema.graphql": testSchema,
		"a.graphql":      `{ me { nickname? } }`,
	})
	require.NoError(t, run(e, []string{"check"}))
	require.NotContains(t, out.String(), "schema.graphql")
	require.Contains(t, out.String(), "ok   a.graphql")
}

func TestCheckErrors(t *testing.T) {
	e, _, _ := testEnv(t, map[string]string{"schema.graphql": testSchema})
	require.ErrorContains(t, run(e, []string{"check"}), "no operation documents")
	require.Error(t, run(e, []string{"check", "-schema", "missing.graphql"}))
	require.Error(t, run(e, []string{"check", "-log.level", "loud"}))
	require.Error(t, run(e, []string{"check", "-bogus"}))
}

func TestAnnotate(t *testing.T) {
	e, out, _ := testEnv(t, map[string]string{
		"schema.graphql": testSchema,
		"op.graphql":     `query Me { me! { nickname! name? } }`,
		"bad.graphql":    `{ me { nickname nickname! } }`,
	})
	require.NoError(t, run(e, []string{"annotate", "op.graphql"}))
	want := `# op.graphql
query Me {
  me! { # User! (declared User)
    nickname! # String! (declared String)
    name? # String (declared String!)
  }
}
`
	require.Equal(t, want, out.String())

	require.ErrorContains(t, run(e, []string{"annotate", "bad.graphql"}), "bad.graphql")
	require.Error(t, run(e, []string{"annotate"}))
}

func TestPrintSchema(t *testing.T) {
	e, out, _ := testEnv(t, map[string]string{
		"schema/a.graphql": testSchema,
		"schema/b.graphql": `extend type User { bio: String }`,
	})
	require.NoError(t, run(e, []string{"print-schema", "-schema", "schema/*.graphql"}))
	require.Contains(t, out.String(), "type User")
	require.Contains(t, out.String(), "bio: String")

	require.NoError(t, run(e, []string{"print-schema", "-schema", "schema/*.graphql", "-out", "merged.graphql"}))
	written, err := afero.ReadFile(e.fs, "merged.graphql")
	require.NoError(t, err)
	require.Equal(t, out.String(), string(written))
}

func TestServeOptions(t *testing.T) {
	for _, tc := range []struct {
		name    string
		timeout time.Duration
	}{
		{name: "custom timeout", timeout: 3 * time.Second},
		{name: "zero disables the timeout", timeout: 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			o := server.Options{Timeout: 10 * time.Second}
			for _, f := range serveOptions(abstractlogger.NoopLogger, tc.timeout, 1<<10, true, []string{"https://example.com"}) {
				f(&o)
			}
			require.Equal(t, tc.timeout, o.Timeout)
			require.Equal(t, int64(1<<10), o.MaxBodyBytes)
			require.True(t, o.Pretty)
			require.Equal(t, []string{"https://example.com"}, o.CORS.AllowedOrigins)
		})
	}
}
