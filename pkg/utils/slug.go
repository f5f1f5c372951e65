package utils

import (
	"regexp"
	"strings"
)

// maxSlugLen bounds generated slugs so they stay usable as URL path segments.
const maxSlugLen = 64

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a URL-safe identifier: lowercased, runs
// of non-alphanumerics collapsed to single hyphens, bounded in length.
func Slugify(s string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = strings.Trim(slug[:maxSlugLen], "-")
	}
	return slug
}
