package store

import (
	"context"

	"github.com/google/uuid"
)

// Connection is a persisted link between a user and a messaging channel at
// the gateway. One row per linked channel.
//
// The pairing token is the gateway-side identity of the channel and is
// immutable after creation (the store exposes no update path for it).
type Connection struct {
	BaseModel
	UserID            string  `json:"user_id"`
	Token             string  `json:"token"`
	PhoneID           *string `json:"phone_id"`
	DisplayName       *string `json:"display_name"`
	IsActive          bool    `json:"is_active"`
	WebhookConfigured bool    `json:"webhook_configured"`
}

// ConnectionStore persists channel connections. All reads and writes are
// scoped to the owning user except the token lookups, which serve the
// pairing flow before a caller identity is attached to the row.
type ConnectionStore interface {
	// Create inserts a new connection. Fails if the token is already taken.
	Create(ctx context.Context, conn *Connection) error

	// GetByID returns a user's connection, or ErrNotFound.
	GetByID(ctx context.Context, userID string, id uuid.UUID) (*Connection, error)

	// GetByToken returns the connection holding the given pairing token, or ErrNotFound.
	GetByToken(ctx context.Context, token string) (*Connection, error)

	// TokenExists reports whether any connection already holds the token.
	TokenExists(ctx context.Context, token string) (bool, error)

	// List returns all connections owned by the user, newest first.
	List(ctx context.Context, userID string) ([]Connection, error)

	// SetActive flips the active flag and returns the updated row.
	SetActive(ctx context.Context, userID string, id uuid.UUID, active bool) (*Connection, error)

	// SetWebhookConfigured records the outcome of a webhook registration call.
	SetWebhookConfigured(ctx context.Context, userID string, id uuid.UUID, configured bool) error

	// SetPhoneID records the phone identifier the gateway reported for a token.
	SetPhoneID(ctx context.Context, token, phoneID string) error

	// Delete removes a user's connection. Returns ErrNotFound if absent.
	Delete(ctx context.Context, userID string, id uuid.UUID) error

	// Close releases the underlying database handle.
	Close() error
}
