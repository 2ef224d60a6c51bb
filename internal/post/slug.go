package post

import (
	"regexp"
	"strings"
)

var (
	slugInvalid  = regexp.MustCompile(`[^a-z0-9-]+`)
	slugCollapse = regexp.MustCompile(`-+`)
)

// Slugify derives a URL-safe slug from a title: lowercase, hyphens for
// spaces, everything outside [a-z0-9-] dropped, runs of hyphens collapsed.
//
// Slugs must be unique within a blog. Slugify does not enforce that; the
// store treats a collision as a validation error rather than renumbering.
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
