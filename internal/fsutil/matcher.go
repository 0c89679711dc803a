// Package fsutil holds the file-tree helpers used while swapping slots:
// name-based ignore matching and recursive copy and removal.
package fsutil

import (
	"fmt"

	"github.com/gobwas/glob"
)

// Matcher decides whether a file name is excluded from copies.
// Patterns are shell globs matched against the base name, so the
// configured forms "*suffix", "prefix*" and exact names all work.
type Matcher struct {
	globs []glob.Glob
}

// NewMatcher compiles patterns. Empty patterns are skipped.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match reports whether name is ignored. A nil Matcher ignores nothing.
func (m *Matcher) Match(name string) bool {
	if m == nil {
		return false
	}
	for _, g := range m.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
