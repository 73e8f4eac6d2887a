package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/nextlevelbuilder/chanlink/internal/store"
)

// userIDHeader carries the authenticated caller identity set by the
// platform's session layer (an external collaborator).
const userIDHeader = "X-Chanlink-User-Id"

// extractBearerToken extracts a bearer token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(auth, "Bearer ")
}

// tokenMatch performs a constant-time comparison of a provided token against
// the expected token. Returns true if expected is empty (no auth configured).
func tokenMatch(provided, expected string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// extractUserID returns the caller's user ID, or "" when the header is
// missing or over-long. Every operation is scoped to this identity.
func extractUserID(r *http.Request) string {
	id := r.Header.Get(userIDHeader)
	if id == "" {
		return ""
	}
	if err := store.ValidateUserID(id); err != nil {
		return ""
	}
	return id
}
