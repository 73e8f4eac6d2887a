// Package session owns the client-visible pairing state machine.
//
// One controller drives one pairing attempt end to end: token issuance,
// artifact display with a countdown, timer- or user-triggered verification,
// bounded regeneration, and (on confirmation) persistence plus webhook
// configuration. Presentation adapters (CLI, HTTP) consume the controller's
// event stream and stay free of retry logic.
package session

import (
	"errors"
	"time"
)

// State is a pairing session state.
type State string

const (
	StateIdle               State = "idle"
	StateCodeRequested      State = "code_requested"
	StateCodeDisplayed      State = "code_displayed"
	StateAutoVerifyPending  State = "auto_verify_pending"
	StateVerifying          State = "verifying"
	StateConfirmed          State = "confirmed"
	StateWebhookConfiguring State = "webhook_configuring"
	StateCompleted          State = "completed"
	StateInvalid            State = "invalid"
	StateRegenerating       State = "regenerating"
	StateFailed             State = "failed"
)

// Terminal reports whether the state ends the session.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

const (
	// DisplayTimerDuration is how long an artifact is shown before
	// verification fires automatically.
	DisplayTimerDuration = 25 * time.Second
	// AutoVerifyGraceDelay separates timer expiry from the first automatic
	// verification attempt.
	AutoVerifyGraceDelay = 3 * time.Second
	// MaxRegenerations bounds fresh token/artifact pairs per session.
	// Beyond it the session fails and the user must restart.
	MaxRegenerations = 2
)

// ErrSessionExhausted means both the verification and regeneration budgets
// are spent. Terminal; the user must restart pairing from scratch.
var ErrSessionExhausted = errors.New("pairing session exhausted, restart pairing")

// Session is the ephemeral state of one pairing attempt. Never persisted;
// a Connection row is created only on confirmation.
type Session struct {
	Token                 string
	DisplayName           string
	ArtifactPNG           []byte
	PhoneID               string
	VerificationAttempts  int
	RegenerationAttempts  int
	DisplayTimerRemaining int // seconds
	Status                State
}

// Event is a state-machine transition notification.
type Event struct {
	State   State
	Session Session
	Err     error
}
