package config

import (
	"regexp"
	"strings"
)

// DefaultLabel is used when a connection label normalizes to nothing.
const DefaultLabel = "channel"

var (
	validLabelRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash  = regexp.MustCompile(`^-+`)
	trailingDash = regexp.MustCompile(`-+$`)
)

// NormalizeLabel converts a user-supplied connection display name into a
// slug safe for file names and log fields:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing dashes stripped
//   - Empty result defaults to "channel"
//
// The display name itself is stored verbatim; only derived identifiers use
// the normalized form.
func NormalizeLabel(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultLabel
	}

	lower := strings.ToLower(trimmed)
	if validLabelRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}

	if result == "" {
		return DefaultLabel
	}
	return result
}
