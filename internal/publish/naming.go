package publish

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// DefaultBranchPrefix is used when no prefix is configured.
const DefaultBranchPrefix = "botdas"

// maxSlugLength bounds the package part of a branch name.
const maxSlugLength = 30

// BranchName returns the upgrade branch for pkg created at now.
// Example: "botdas/upgrade-types-react-1718000000000"
func BranchName(prefix, pkg string, now time.Time) string {
	if prefix == "" {
		prefix = DefaultBranchPrefix
	}
	slug := Slugify(pkg)
	if slug == "" {
		slug = "package"
	}
	return fmt.Sprintf("%s/upgrade-%s-%d", prefix, slug, now.UnixMilli())
}

// Slugify converts a package name to a slug suitable for branch names.
// It lowercases the text, turns separators such as "/", "." and "_" into
// dashes, drops every other non-alphanumeric character, collapses repeated
// dashes and limits the length to maxSlugLength runes.
func Slugify(text string) string {
	var result strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			result.WriteRune(r)
			lastDash = false
		case r == '-' || r == '/' || r == '.' || r == '_' || r == ' ':
			if !lastDash {
				result.WriteRune('-')
				lastDash = true
			}
		}
	}

	s := result.String()
	if runes := []rune(s); len(runes) > maxSlugLength {
		s = string(runes[:maxSlugLength])
	}
	return strings.Trim(s, "-")
}
