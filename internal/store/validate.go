package store

import (
	"fmt"
	"strings"
)

// MaxUserIDLength is the maximum allowed length for user identifier strings.
// Matches the VARCHAR(255) constraint in the database schema.
const MaxUserIDLength = 255

// MaxDisplayNameLength bounds the user-supplied connection label.
const MaxDisplayNameLength = 120

// ValidateUserID checks that a user identifier does not exceed MaxUserIDLength.
func ValidateUserID(id string) error {
	if len(id) > MaxUserIDLength {
		return fmt.Errorf("user identifier too long: %d chars (max %d)", len(id), MaxUserIDLength)
	}
	return nil
}

// ValidateDisplayName checks that a connection label is non-empty after
// trimming and within the length bound.
func ValidateDisplayName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("display name is required")
	}
	if len(trimmed) > MaxDisplayNameLength {
		return fmt.Errorf("display name too long: %d chars (max %d)", len(trimmed), MaxDisplayNameLength)
	}
	return nil
}
