// Package pairing is the server-side pairing service.
//
// It exposes the operations the rest of the application consumes:
// generate a pairing (token + artifact), verify a pairing by token, configure
// the webhook for a confirmed pairing, and list/toggle/delete persisted
// connections. All operations are scoped to the calling user.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chanlink/internal/artifact"
	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/store"
	"github.com/nextlevelbuilder/chanlink/internal/token"
	"github.com/nextlevelbuilder/chanlink/internal/verify"
	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

// Service wires the pairing flow's collaborators together.
type Service struct {
	conns     store.ConnectionStore
	gw        *gateway.Client
	provider  *artifact.Provider
	registrar *webhook.Registrar
}

func NewService(conns store.ConnectionStore, gw *gateway.Client, provider *artifact.Provider, registrar *webhook.Registrar) *Service {
	return &Service{conns: conns, gw: gw, provider: provider, registrar: registrar}
}

// GenerateResult is a fresh pairing attempt.
type GenerateResult struct {
	Token    string
	Artifact artifact.Artifact
}

// GeneratePairing issues a token and fetches its artifact. No row is
// persisted; a connection exists only once the pairing is confirmed.
func (s *Service) GeneratePairing(ctx context.Context, displayName string) (GenerateResult, error) {
	if err := store.ValidateDisplayName(displayName); err != nil {
		return GenerateResult{}, err
	}

	tok := token.Issue()
	art, err := s.provider.Request(ctx, tok, displayName)
	if err != nil {
		return GenerateResult{}, err
	}

	slog.Info("pairing generated", "token_prefix", tok[:len(token.Prefix)+4])
	return GenerateResult{Token: tok, Artifact: art}, nil
}

// VerifyResult is the outcome of one verification poll.
type VerifyResult struct {
	Confirmed bool
	PhoneID   string
}

// VerifyPairing asks the gateway whether the token's pairing was confirmed.
// On confirmation it persists the connection for the user (creating it if
// this is the first confirmed poll, updating the phone identifier otherwise).
//
// A parsed-but-pending response returns Confirmed=false with no error;
// gateway.ErrServerEmpty propagates so the caller can regenerate.
func (s *Service) VerifyPairing(ctx context.Context, userID, tok, displayName string) (VerifyResult, error) {
	if !token.Valid(tok) {
		return VerifyResult{}, fmt.Errorf("malformed pairing token")
	}

	status, err := s.gw.Status(ctx, tok)
	if err != nil {
		if errors.Is(err, gateway.ErrNotConfirmed) {
			return VerifyResult{Confirmed: false}, nil
		}
		return VerifyResult{}, err
	}

	phoneID := verify.ExtractPhoneID(status.Wid)
	if err := s.recordConfirmed(ctx, userID, tok, displayName, phoneID); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{Confirmed: true, PhoneID: phoneID}, nil
}

// recordConfirmed creates the connection row on first confirmation and
// refreshes the phone identifier on subsequent ones.
func (s *Service) recordConfirmed(ctx context.Context, userID, tok, displayName, phoneID string) error {
	existing, err := s.conns.GetByToken(ctx, tok)
	switch {
	case err == nil:
		if existing.UserID != userID {
			return store.ErrNotFound
		}
		if phoneID != "" {
			return s.conns.SetPhoneID(ctx, tok, phoneID)
		}
		return nil
	case errors.Is(err, store.ErrNotFound):
		conn := &store.Connection{
			UserID:   userID,
			Token:    tok,
			IsActive: true,
		}
		if displayName != "" {
			conn.DisplayName = &displayName
		}
		if phoneID != "" {
			conn.PhoneID = &phoneID
		}
		if err := s.conns.Create(ctx, conn); err != nil {
			return fmt.Errorf("persist confirmed pairing: %w", err)
		}
		slog.Info("connection created", "connection", conn.ID, "user", userID)
		return nil
	default:
		return err
	}
}

// ConfigureWebhook registers the gateway callback for the user's connection
// holding tok.
func (s *Service) ConfigureWebhook(ctx context.Context, userID, tok string, meta webhook.Metadata) error {
	return s.registrar.ConfigureByToken(ctx, userID, tok, meta)
}

// ListConnections returns the user's connections, newest first.
func (s *Service) ListConnections(ctx context.Context, userID string) ([]store.Connection, error) {
	return s.conns.List(ctx, userID)
}

// ToggleConnection flips a connection's active flag, registering or
// unregistering the webhook as needed.
func (s *Service) ToggleConnection(ctx context.Context, userID string, id uuid.UUID, active bool, meta webhook.Metadata) (*store.Connection, error) {
	return s.registrar.Toggle(ctx, userID, id, active, meta)
}

// DeleteConnection removes a connection with best-effort gateway cleanup.
func (s *Service) DeleteConnection(ctx context.Context, userID string, id uuid.UUID) error {
	return s.registrar.Delete(ctx, userID, id)
}

// Completer adapts the service to the session controller's confirmation
// hooks for a given user.
type Completer struct {
	svc    *Service
	userID string
	meta   webhook.Metadata
}

// CompleterFor returns the session-controller completion hooks bound to a user.
func (s *Service) CompleterFor(userID string, meta webhook.Metadata) *Completer {
	return &Completer{svc: s, userID: userID, meta: meta}
}

func (c *Completer) PairingConfirmed(ctx context.Context, tok, displayName, phoneID string) error {
	return c.svc.recordConfirmed(ctx, c.userID, tok, displayName, phoneID)
}

func (c *Completer) ConfigureWebhook(ctx context.Context, tok string) error {
	return c.svc.ConfigureWebhook(ctx, c.userID, tok, c.meta)
}
