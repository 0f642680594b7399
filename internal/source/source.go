// Package source finds and reads schema and operation documents through an
// afero filesystem. Patterns use doublestar syntax, so `ops/**/*.graphql`
// matches at any depth.
package source

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/vektah/gqlparser/v2/ast"

	schema "github.com/hanpama/ccn/internal/schema"
)

// DefaultOperationPattern matches every GraphQL document below the working
// directory.
const DefaultOperationPattern = "**/*.graphql"

// Glob expands patterns against fsys and returns the matching file paths,
// sorted and without duplicates. A pattern without meta characters names a
// single file and must exist.
func Glob(fsys afero.Fs, patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		p = strings.TrimPrefix(filepath.ToSlash(p), "./")
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Errorf("invalid pattern %q", p)
		}
		base, pattern := doublestar.SplitPattern(p)
		matches, err := doublestar.Glob(afero.NewIOFS(scoped(fsys, base)), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrapf(err, "glob %q", p)
		}
		if len(matches) == 0 && !strings.ContainsAny(p, "*?[{") {
			return nil, errors.Errorf("%s: no such file", p)
		}
		for _, m := range matches {
			if base != "." {
				m = path.Join(base, m)
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func scoped(fsys afero.Fs, base string) afero.Fs {
	if base == "." || base == "" {
		return fsys
	}
	return afero.NewBasePathFs(fsys, base)
}

// LoadSchema reads every SDL document matched by patterns and builds one
// schema from them. Type extensions may live in separate files.
func LoadSchema(fsys afero.Fs, patterns ...string) (*schema.Schema, error) {
	paths, err := Glob(fsys, patterns...)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.Errorf("no schema files match %s", strings.Join(patterns, ", "))
	}
	sources := make([]*ast.Source, 0, len(paths))
	for _, p := range paths {
		content, err := afero.ReadFile(fsys, p)
		if err != nil {
			return nil, errors.Wrapf(err, "read schema %s", p)
		}
		sources = append(sources, &ast.Source{Name: p, Input: string(content)})
	}
	s, err := schema.BuildFromSDL(sources...)
	if err != nil {
		return nil, errors.Wrap(err, "load schema")
	}
	return s, nil
}

// FindOperations returns the operation documents matched by patterns,
// skipping any path listed in exclude.
func FindOperations(fsys afero.Fs, patterns []string, exclude ...string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultOperationPattern}
	}
	paths, err := Glob(fsys, patterns...)
	if err != nil {
		return nil, err
	}
	if len(exclude) == 0 {
		return paths, nil
	}
	skip := make(map[string]bool, len(exclude))
	for _, e := range exclude {
		skip[strings.TrimPrefix(filepath.ToSlash(e), "./")] = true
	}
	out := paths[:0]
	for _, p := range paths {
		if !skip[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

// ReadOperation returns the text of the operation document at p.
func ReadOperation(fsys afero.Fs, p string) (string, error) {
	content, err := afero.ReadFile(fsys, p)
	if err != nil {
		return "", errors.Wrapf(err, "read operation %s", p)
	}
	return string(content), nil
}
