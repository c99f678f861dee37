package util

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeSlug canonicalizes a channel slug for lookup and storage.
// Slugs arrive from CLI args, remote payloads and the legacy export with
// inconsistent casing and Unicode forms; all three must hash to the same
// cache row.
func NormalizeSlug(slug string) string {
	s := strings.TrimSpace(slug)
	s = strings.ToLower(s)
	return norm.NFC.String(s)
}
