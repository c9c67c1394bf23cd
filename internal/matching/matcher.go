// Package matching wraps gitignore-style wildmatch pattern compilation and
// the two overlap checks the Reservation Engine needs: does a compiled
// pattern match a concrete path, and do two patterns potentially match the
// same path without either side being a concrete path.
package matching

import (
	"path"
	"strings"
	"sync"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher compiles and caches gitignore-style patterns by their raw string
// so repeated reservation checks against the same pattern don't re-parse
// it.
type Matcher struct {
	caseInsensitive bool

	mu    sync.RWMutex
	cache map[string]gitignore.Pattern
}

// NewMatcher creates a Matcher. caseInsensitive mirrors a project's
// `git config core.ignorecase` setting.
func NewMatcher(caseInsensitive bool) *Matcher {
	return &Matcher{caseInsensitive: caseInsensitive, cache: make(map[string]gitignore.Pattern)}
}

func (m *Matcher) compile(pattern string) gitignore.Pattern {
	key := pattern
	if m.caseInsensitive {
		key = strings.ToLower(pattern)
	}

	m.mu.RLock()
	compiled, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return compiled
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if compiled, ok := m.cache[key]; ok {
		return compiled
	}
	raw := pattern
	if m.caseInsensitive {
		raw = strings.ToLower(pattern)
	}
	compiled = gitignore.ParsePattern(raw, nil)
	m.cache[key] = compiled
	return compiled
}

// MatchPath reports whether pattern matches a concrete, project-root-
// relative path. isDir should be true when the path denotes a directory.
func (m *Matcher) MatchPath(pattern, concretePath string, isDir bool) bool {
	compiled := m.compile(pattern)
	candidate := concretePath
	if m.caseInsensitive {
		candidate = strings.ToLower(candidate)
	}
	segments := strings.Split(strings.Trim(candidate, "/"), "/")
	return compiled.Match(segments, isDir) == gitignore.Exclude
}

// PatternsOverlap reports whether two reservation patterns could ever
// match the same concrete path, without a concrete path list to test
// against. Gitignore's wildmatch has no general pattern-vs-pattern
// intersection test, so — following the Python original's own fallback —
// this uses a symmetric fnmatch-style comparison via the standard
// library's path.Match: two patterns overlap if either one, read as a
// glob, matches the other's literal text, or they are textually equal.
func (m *Matcher) PatternsOverlap(a, b string) bool {
	aCmp, bCmp := a, b
	if m.caseInsensitive {
		aCmp = strings.ToLower(a)
		bCmp = strings.ToLower(b)
	}
	if aCmp == bCmp {
		return true
	}
	if matched, err := path.Match(aCmp, bCmp); err == nil && matched {
		return true
	}
	if matched, err := path.Match(bCmp, aCmp); err == nil && matched {
		return true
	}
	return false
}

// MatchAnyPath reports whether pattern matches at least one of paths.
func (m *Matcher) MatchAnyPath(pattern string, paths []string) bool {
	for _, p := range paths {
		if m.MatchPath(pattern, p, false) {
			return true
		}
	}
	return false
}
