// Package verify polls the gateway for pairing confirmation.
//
// The gateway exposes no push notification for "link completed", so the
// client polls under a fixed attempt budget per artifact. Delays are fixed
// rather than exponential: the handshake either settles within the first few
// polls or the artifact is stale and must be regenerated.
package verify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/chanlink/internal/gateway"
)

const (
	// MaxAttempts is the verification budget per pairing artifact.
	MaxAttempts = 3
	// FirstAttemptDelay precedes the first poll of an artifact, giving the
	// gateway time to settle the handshake.
	FirstAttemptDelay = 10 * time.Second
	// RetryAttemptDelay precedes every subsequent poll.
	RetryAttemptDelay = 5 * time.Second
	// AutoInterAttemptDelay is scheduled between completed attempts when the
	// session is in automatic (timer-driven) mode. Owned by the session
	// controller; declared here with the rest of the polling policy.
	AutoInterAttemptDelay = 15 * time.Second
)

var (
	// ErrExhausted means the attempt budget for the current artifact is spent.
	ErrExhausted = errors.New("verification attempts exhausted")
	// ErrInFlight means a verification is already running for this session.
	// The caller treats it as a no-op; counters are untouched.
	ErrInFlight = errors.New("verification already in flight")
)

// Result is a confirmed pairing.
type Result struct {
	Confirmed bool
	PhoneID   string
}

// StatusClient is the gateway surface the verifier needs.
type StatusClient interface {
	Status(ctx context.Context, token string) (gateway.StatusResult, error)
}

// Sleeper waits for d or until ctx is done. Injected for tests.
type Sleeper func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Verifier tracks the attempt budget for one pairing session's current
// artifact and guards against concurrent polls.
type Verifier struct {
	gw    StatusClient
	sleep Sleeper

	mu       sync.Mutex
	attempts int
	inFlight bool
}

func New(gw StatusClient) *Verifier {
	return &Verifier{gw: gw, sleep: defaultSleep}
}

// SetSleeper overrides the delay function (tests).
func (v *Verifier) SetSleeper(s Sleeper) { v.sleep = s }

// Attempts returns the number of attempts consumed for the current artifact.
func (v *Verifier) Attempts() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attempts
}

// Exhausted reports whether the attempt budget is spent.
func (v *Verifier) Exhausted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.attempts >= MaxAttempts
}

// Reset clears the attempt counter. Called on regeneration: a fresh artifact
// gets a fresh budget.
func (v *Verifier) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.attempts = 0
}

// Verify runs one verification attempt: fixed pre-delay, then a bounded
// status poll.
//
// Returns:
//   - (Result, nil) on confirmation
//   - gateway.ErrNotConfirmed after a parsed-but-unverified response
//     (consumes one attempt)
//   - gateway.ErrServerEmpty when the gateway lost the session (does NOT
//     consume an attempt; the caller regenerates)
//   - ErrExhausted when called with no budget left
//   - ErrInFlight when a verification is already running (no-op)
func (v *Verifier) Verify(ctx context.Context, token string) (Result, error) {
	v.mu.Lock()
	if v.inFlight {
		v.mu.Unlock()
		return Result{}, ErrInFlight
	}
	if v.attempts >= MaxAttempts {
		v.mu.Unlock()
		return Result{}, ErrExhausted
	}
	v.inFlight = true
	delay := RetryAttemptDelay
	if v.attempts == 0 {
		delay = FirstAttemptDelay
	}
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		v.inFlight = false
		v.mu.Unlock()
	}()

	if err := v.sleep(ctx, delay); err != nil {
		return Result{}, err
	}

	status, err := v.gw.Status(ctx, token)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfirmed) {
			v.mu.Lock()
			v.attempts++
			v.mu.Unlock()
		}
		// Server-empty and transport errors pass through without touching
		// the budget; both route to regeneration upstream.
		return Result{}, err
	}

	return Result{Confirmed: true, PhoneID: ExtractPhoneID(status.Wid)}, nil
}

// ExtractPhoneID pulls the phone identifier out of a gateway wid such as
// "5511999999999:1@s.whatsapp.net": the prefix before the first colon, with
// any "@server" suffix stripped as a fallback.
func ExtractPhoneID(wid string) string {
	if wid == "" {
		return ""
	}
	if head, _, ok := strings.Cut(wid, ":"); ok {
		return head
	}
	head, _, _ := strings.Cut(wid, "@")
	return head
}
