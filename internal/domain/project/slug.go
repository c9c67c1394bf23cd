package project

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// CanonicalizeKey resolves humanKey to a stable (canonical, slug) pair.
//
// When humanKey is an absolute filesystem path that exists, symlinks are
// resolved first so two working copies reached via different symlinks
// collapse onto the same project. Anything
// else — a relative path, a logical name, a path that doesn't exist yet —
// is slugified as-is.
func CanonicalizeKey(humanKey string) (canonical, slug string) {
	canonical = humanKey
	if filepath.IsAbs(humanKey) {
		if resolved, err := filepath.EvalSymlinks(humanKey); err == nil {
			canonical = resolved
		} else if _, statErr := os.Stat(humanKey); statErr != nil {
			// Path doesn't exist yet; keep the requested key as-is so a
			// project can be ensured before its directory is created.
			canonical = filepath.Clean(humanKey)
		}
	}
	return canonical, Slugify(canonical)
}

// Slugify lowercases and collapses any run of non-alphanumeric characters
// into a single hyphen, trimming leading/trailing hyphens.
func Slugify(value string) string {
	lowered := strings.ToLower(value)
	slug := slugUnsafe.ReplaceAllString(lowered, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "project"
	}
	return slug
}
