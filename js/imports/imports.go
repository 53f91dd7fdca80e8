// Package imports concatenates JS controller sources along their
// `// @import path` lines.
package imports

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/zond/mudcore"
)

// importPattern only matches directives alone on their line.
var importPattern = regexp.MustCompile(`(?m)^// @import\s+(\S+)\s*$`)

var (
	ErrCircular = fmt.Errorf("circular import")
)

type Result struct {
	Source string
	// Deps are the files the source was built from, the root first.
	Deps []string
}

type resolver struct {
	fsys       fs.FS
	inProgress map[string]bool
	included   map[string]bool
	deps       []string
}

// Resolve returns the source of p preceded by everything it imports, each
// file once and every file after its own imports. Imports starting with /
// are relative to the root of fsys, others to the importing file.
func Resolve(fsys fs.FS, p string) (*Result, error) {
	r := &resolver{
		fsys:       fsys,
		inProgress: map[string]bool{},
		included:   map[string]bool{},
	}
	source := &strings.Builder{}
	if err := r.resolve(source, Clean(p)); err != nil {
		return nil, err
	}
	return &Result{
		Source: source.String(),
		Deps:   r.deps,
	}, nil
}

func (r *resolver) resolve(out *strings.Builder, p string) error {
	if r.inProgress[p] {
		return mudcore.WithStack(fmt.Errorf("%w: %s", ErrCircular, p))
	}
	if r.included[p] {
		return nil
	}
	data, err := fs.ReadFile(r.fsys, p)
	if err != nil {
		return mudcore.WithStack(err)
	}
	r.inProgress[p] = true
	defer delete(r.inProgress, p)
	r.deps = append(r.deps, p)

	source := string(data)
	for _, imp := range Parse(source) {
		if err := r.resolve(out, Join(p, imp)); err != nil {
			return fmt.Errorf("in %s: %w", p, err)
		}
	}
	out.WriteString(Strip(source))
	r.included[p] = true
	return nil
}

// Parse returns the import paths of source in order.
func Parse(source string) []string {
	matches := importPattern.FindAllStringSubmatch(source, -1)
	result := make([]string, 0, len(matches))
	for _, match := range matches {
		result = append(result, match[1])
	}
	return result
}

// Strip blanks the import lines of source.
func Strip(source string) string {
	return importPattern.ReplaceAllString(source, "")
}

// Clean makes p a path valid for fs.FS.
func Clean(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

// Join resolves imp as imported by the file from.
func Join(from string, imp string) string {
	if strings.HasPrefix(imp, "/") {
		return Clean(imp)
	}
	return Clean(path.Join(path.Dir(from), imp))
}
