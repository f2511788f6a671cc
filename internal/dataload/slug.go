package dataload

import (
	"regexp"
	"strings"
)

var (
	slugPattern      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	slugWhitespace   = regexp.MustCompile(`\s+`)
	slugDisallowed   = regexp.MustCompile(`[^a-z0-9-]`)
	slugRepeatedDash = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases s, turns whitespace into hyphens and drops everything but [a-z0-9-].
func Slugify(s string) string {
	slug := strings.ToLower(strings.TrimSpace(s))
	slug = slugWhitespace.ReplaceAllString(slug, "-")
	slug = slugDisallowed.ReplaceAllString(slug, "")
	slug = slugRepeatedDash.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// IsSlug reports whether s is already a valid slug.
func IsSlug(s string) bool {
	return slugPattern.MatchString(s)
}
