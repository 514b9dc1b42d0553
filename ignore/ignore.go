// Package ignore implements .ditsignore file parsing and gitignore-style
// path matching used to exclude files from version control.
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/crackcomm/go-gitignore"
)

// alwaysIgnored are patterns applied regardless of .ditsignore content.
var alwaysIgnored = []string{".dits/", ".dits/**"}

// Matcher filters repository paths against .ditsignore rules.
type Matcher struct {
	gi   *gitignore.GitIgnore
	root string
}

// New builds a Matcher for the given repository root, loading root/.ditsignore
// if present. A missing .ditsignore is not an error.
func New(root string) (*Matcher, error) {
	lines := append([]string{}, alwaysIgnored...)

	data, err := os.ReadFile(filepath.Join(root, ".ditsignore"))
	switch {
	case err == nil:
		lines = append(lines, strings.Split(string(data), "\n")...)
	case os.IsNotExist(err):
		// no .ditsignore, always-ignored patterns still apply
	default:
		return nil, fmt.Errorf("ignore: read .ditsignore: %w", err)
	}

	gi, err := gitignore.CompileIgnoreLines(lines...)
	if err != nil {
		return nil, fmt.Errorf("ignore: compile patterns: %w", err)
	}

	return &Matcher{gi: gi, root: root}, nil
}

// IsIgnored reports whether path (absolute or root-relative) should be
// excluded from version control.
func (m *Matcher) IsIgnored(path string) bool {
	rel := path
	if filepath.IsAbs(path) {
		if r, err := filepath.Rel(m.root, path); err == nil {
			rel = r
		}
	}
	return m.gi.MatchesPath(filepath.ToSlash(rel))
}

// FilterPaths returns the subset of paths that are not ignored, preserving
// order.
func (m *Matcher) FilterPaths(paths []string) []string {
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if !m.IsIgnored(p) {
			kept = append(kept, p)
		}
	}
	return kept
}
