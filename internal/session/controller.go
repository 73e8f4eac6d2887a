package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/chanlink/internal/artifact"
	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/verify"
)

// ArtifactRequester fetches and normalizes a pairing artifact for a token.
type ArtifactRequester interface {
	Request(ctx context.Context, token, displayName string) (artifact.Artifact, error)
}

// Verifier is the per-artifact verification budget (see internal/verify).
type Verifier interface {
	Verify(ctx context.Context, token string) (verify.Result, error)
	Reset()
	Attempts() int
	Exhausted() bool
}

// Completer handles the server-side effects of a confirmed pairing:
// persisting the connection and configuring the gateway webhook.
type Completer interface {
	PairingConfirmed(ctx context.Context, token, displayName, phoneID string) error
	ConfigureWebhook(ctx context.Context, token string) error
}

// Config configures one pairing session.
type Config struct {
	DisplayName string

	// AutoWebhook advances Confirmed straight into webhook configuration.
	// When false the session terminates at Confirmed and webhook setup is a
	// separate explicit call.
	AutoWebhook bool
}

// Controller runs the pairing state machine. Single-owner: all transitions
// happen on the Run goroutine; the display countdown and scheduled
// verifications are driven by one clock, so a manually triggered
// verification cannot race an automatic one.
type Controller struct {
	cfg       Config
	issue     func() string
	artifacts ArtifactRequester
	verifier  Verifier
	completer Completer

	sleep verify.Sleeper
	tick  time.Duration

	events    chan Event
	verifyReq chan struct{}
}

// NewController assembles a controller for one pairing attempt.
func NewController(cfg Config, issue func() string, artifacts ArtifactRequester, verifier Verifier, completer Completer) *Controller {
	return &Controller{
		cfg:       cfg,
		issue:     issue,
		artifacts: artifacts,
		verifier:  verifier,
		completer: completer,
		sleep:     defaultSleep,
		tick:      time.Second,
		events:    make(chan Event, 32),
		verifyReq: make(chan struct{}, 1),
	}
}

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

// SetClock overrides the tick interval and sleep function (tests).
func (c *Controller) SetClock(tick time.Duration, sleep verify.Sleeper) {
	c.tick = tick
	c.sleep = sleep
}

// Events streams transition notifications. Slow consumers drop events; the
// Run return value always carries the final state.
func (c *Controller) Events() <-chan Event { return c.events }

// RequestVerify asks for a manual verification while the artifact is
// displayed. A no-op when a verification is already pending or in flight.
func (c *Controller) RequestVerify() {
	select {
	case c.verifyReq <- struct{}{}:
	default:
	}
}

// Run drives the session to a terminal state or until ctx is cancelled.
// Cancelling stops the countdown and suppresses every scheduled callback;
// nothing server-side needs cleanup unless a connection was already created.
func (c *Controller) Run(ctx context.Context) (Session, error) {
	s := Session{
		Status:      StateIdle,
		DisplayName: c.cfg.DisplayName,
	}

	var auto bool // whether the current verification round is timer-driven
	var failure error

	c.transition(&s, StateCodeRequested, nil)

	for !s.Status.Terminal() {
		if err := ctx.Err(); err != nil {
			return s, err
		}

		switch s.Status {
		case StateCodeRequested:
			if err := c.requestArtifact(ctx, &s); err != nil {
				if errors.Is(err, artifact.ErrInvalidArtifact) {
					c.transition(&s, StateInvalid, err)
					c.regenerate(&s, &failure)
					continue
				}
				// Validation errors, duplicate token, transport failure:
				// surfaced for an explicit user retry.
				failure = err
				c.transition(&s, StateFailed, err)
				continue
			}
			auto = false
			c.transition(&s, StateCodeDisplayed, nil)

		case StateCodeDisplayed:
			manual, err := c.displayCountdown(ctx, &s)
			if err != nil {
				return s, err
			}
			if manual {
				auto = false
				c.transition(&s, StateVerifying, nil)
			} else {
				c.transition(&s, StateAutoVerifyPending, nil)
			}

		case StateAutoVerifyPending:
			if err := c.sleep(ctx, AutoVerifyGraceDelay); err != nil {
				return s, err
			}
			auto = true
			c.transition(&s, StateVerifying, nil)

		case StateVerifying:
			if err := c.runVerification(ctx, &s, auto, &failure); err != nil {
				return s, err
			}

		case StateConfirmed:
			if err := c.completer.PairingConfirmed(ctx, s.Token, s.DisplayName, s.PhoneID); err != nil {
				failure = fmt.Errorf("persist connection: %w", err)
				c.transition(&s, StateFailed, failure)
				continue
			}
			if c.cfg.AutoWebhook {
				c.transition(&s, StateWebhookConfiguring, nil)
			} else {
				// Deferred policy: webhook registration is a later,
				// independent linking action.
				c.transition(&s, StateCompleted, nil)
			}

		case StateWebhookConfiguring:
			if err := c.completer.ConfigureWebhook(ctx, s.Token); err != nil {
				// The connection exists; a failed registration is retried
				// through the activate toggle. Not a session failure.
				slog.Warn("webhook configuration failed", "error", err)
			}
			c.transition(&s, StateCompleted, nil)
		}
	}

	return s, failure
}

// requestArtifact issues a fresh token and fetches its artifact.
// A session holds one live token/artifact pair at a time; the previous pair
// was already invalidated by the regeneration path.
func (c *Controller) requestArtifact(ctx context.Context, s *Session) error {
	s.Token = c.issue()
	art, err := c.artifacts.Request(ctx, s.Token, s.DisplayName)
	if err != nil {
		return err
	}
	s.ArtifactPNG = art.PNG
	s.DisplayTimerRemaining = int(DisplayTimerDuration / time.Second)
	c.verifier.Reset()
	s.VerificationAttempts = 0
	return nil
}

// displayCountdown ticks the display timer down. Returns manual=true when
// the user requested verification before expiry.
func (c *Controller) displayCountdown(ctx context.Context, s *Session) (manual bool, err error) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for s.DisplayTimerRemaining > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-c.verifyReq:
			return true, nil
		case <-ticker.C:
			s.DisplayTimerRemaining--
			c.emit(Event{State: s.Status, Session: *s})
		}
	}
	return false, nil
}

// runVerification performs verification rounds until confirmation, a
// regeneration trigger, or (in manual mode) a still-pending result.
func (c *Controller) runVerification(ctx context.Context, s *Session, auto bool, failure *error) error {
	for {
		res, err := c.verifier.Verify(ctx, s.Token)
		s.VerificationAttempts = c.verifier.Attempts()

		switch {
		case err == nil:
			s.PhoneID = res.PhoneID
			c.transition(s, StateConfirmed, nil)
			return nil

		case errors.Is(err, verify.ErrInFlight):
			// Re-entrant trigger; the running attempt will settle the state.
			return nil

		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, gateway.ErrNotConfirmed):
			if c.verifier.Exhausted() {
				c.regenerate(s, failure)
				return nil
			}
			if !auto {
				// Manual round: hand control back to the countdown.
				c.transition(s, StateCodeDisplayed, nil)
				return nil
			}
			if serr := c.sleep(ctx, verify.AutoInterAttemptDelay); serr != nil {
				return serr
			}

		default:
			// Server-empty, transport failure, or a spent budget: the
			// artifact is unusable, regenerate.
			c.regenerate(s, failure)
			return nil
		}
	}
}

// regenerate invalidates the current token/artifact pair and requests a new
// one, bounded by MaxRegenerations.
func (c *Controller) regenerate(s *Session, failure *error) {
	if s.RegenerationAttempts >= MaxRegenerations {
		*failure = ErrSessionExhausted
		c.transition(s, StateFailed, ErrSessionExhausted)
		return
	}

	// Invalidate the prior pair before requesting a new one.
	s.ArtifactPNG = nil
	s.Token = ""
	s.RegenerationAttempts++
	c.verifier.Reset()
	s.VerificationAttempts = 0
	s.DisplayTimerRemaining = int(DisplayTimerDuration / time.Second)

	slog.Info("regenerating pairing artifact",
		"regeneration", s.RegenerationAttempts, "max", MaxRegenerations)

	c.transition(s, StateRegenerating, nil)
	c.transition(s, StateCodeRequested, nil)
}

func (c *Controller) transition(s *Session, next State, err error) {
	slog.Debug("pairing session transition", "from", s.Status, "to", next)
	s.Status = next
	c.emit(Event{State: next, Session: *s, Err: err})
}

func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}
