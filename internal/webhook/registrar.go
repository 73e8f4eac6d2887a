// Package webhook manages gateway callback registration for connections.
//
// Local state is authoritative for user-facing behavior: gateway cleanup
// calls (unregister, channel delete) are best-effort and never block a local
// deactivation or deletion. The webhook_configured flag, by contrast, is only
// ever set true after a successful register call.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/store"
)

// GatewayAPI is the gateway surface the registrar needs.
type GatewayAPI interface {
	RegisterWebhook(ctx context.Context, token string, reg gateway.WebhookRegistration) error
	UnregisterWebhook(ctx context.Context, token string) error
	DeleteChannel(ctx context.Context, token string) error
}

// Metadata is the per-connection routing info sent along with the callback URL.
type Metadata struct {
	// UserID is the owning user.
	UserID string
	// AttendantID routes inbound events to an AI attendant. Optional.
	AttendantID string
	// IsIntegrationUser marks externally provisioned accounts.
	IsIntegrationUser bool
}

// Registrar registers and removes gateway callbacks and applies the
// toggle/delete semantics for connections.
type Registrar struct {
	gw           GatewayAPI
	conns        store.ConnectionStore
	callbackBase string

	// Per-connection locks serialize toggle/delete so a double-click cannot
	// race a register against an unregister.
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewRegistrar creates a registrar. callbackBase is the public base URL the
// gateway will deliver events to, e.g. "https://api.example.com".
func NewRegistrar(gw GatewayAPI, conns store.ConnectionStore, callbackBase string) *Registrar {
	return &Registrar{
		gw:           gw,
		conns:        conns,
		callbackBase: callbackBase,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

func (r *Registrar) lockFor(id uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l
}

// CallbackURL returns the callback endpoint for a connection.
func (r *Registrar) CallbackURL(id uuid.UUID) string {
	return r.callbackBase + "/hooks/" + id.String()
}

// Register configures the gateway callback for a connection. The
// webhook_configured flag is set only after the gateway call succeeds.
func (r *Registrar) Register(ctx context.Context, conn *store.Connection, meta Metadata) error {
	reg := gateway.WebhookRegistration{
		URL: r.CallbackURL(conn.ID),
		Extra: gateway.WebhookExtra{
			ID:                meta.UserID,
			IaID:              meta.AttendantID,
			IsIntegrationUser: meta.IsIntegrationUser,
		},
	}
	if err := r.gw.RegisterWebhook(ctx, conn.Token, reg); err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	if err := r.conns.SetWebhookConfigured(ctx, conn.UserID, conn.ID, true); err != nil {
		return fmt.Errorf("record webhook configured: %w", err)
	}
	slog.Info("webhook registered", "connection", conn.ID, "url", reg.URL)
	return nil
}

// Unregister removes the gateway callback. Best-effort: a gateway failure is
// logged and the local flag still clears.
func (r *Registrar) Unregister(ctx context.Context, conn *store.Connection) {
	if err := r.gw.UnregisterWebhook(ctx, conn.Token); err != nil {
		slog.Warn("webhook unregister failed, clearing local flag anyway",
			"connection", conn.ID, "error", err)
	} else {
		slog.Info("webhook unregistered", "connection", conn.ID)
	}
	if err := r.conns.SetWebhookConfigured(ctx, conn.UserID, conn.ID, false); err != nil {
		slog.Error("clear webhook flag", "connection", conn.ID, "error", err)
	}
}

// ConfigureByToken registers the webhook for the user's connection holding
// the given pairing token (the deferred-linking step).
func (r *Registrar) ConfigureByToken(ctx context.Context, userID, tok string, meta Metadata) error {
	conn, err := r.conns.GetByToken(ctx, tok)
	if err != nil {
		return err
	}
	if conn.UserID != userID {
		return store.ErrNotFound
	}

	l := r.lockFor(conn.ID)
	l.Lock()
	defer l.Unlock()
	return r.Register(ctx, conn, meta)
}

// Toggle flips a connection's active flag.
//
// Activating with webhook_configured=false attempts a register; deactivating
// with webhook_configured=true attempts an unregister. Either gateway call
// may fail without blocking the flip, but a failed register leaves
// webhook_configured=false.
func (r *Registrar) Toggle(ctx context.Context, userID string, id uuid.UUID, active bool, meta Metadata) (*store.Connection, error) {
	l := r.lockFor(id)
	l.Lock()
	defer l.Unlock()

	conn, err := r.conns.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if active && !conn.WebhookConfigured {
		if err := r.Register(ctx, conn, meta); err != nil {
			slog.Warn("webhook register failed during activation",
				"connection", id, "error", err)
		}
	} else if !active && conn.WebhookConfigured {
		r.Unregister(ctx, conn)
	}

	updated, err := r.conns.SetActive(ctx, userID, id, active)
	if err != nil {
		return nil, err
	}
	slog.Info("connection toggled", "connection", id, "active", active)
	return updated, nil
}

// Delete removes a connection: best-effort webhook unregister and gateway
// channel delete, then the local row. The row is removed even when the
// gateway calls fail.
func (r *Registrar) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	l := r.lockFor(id)
	l.Lock()
	err := r.deleteLocked(ctx, userID, id)
	l.Unlock()

	if err == nil {
		// Invariant: the lock entry is dropped only after the mutex is
		// released, so lockFor never mints a second mutex for the id while
		// the first is still held. Late arrivals then look up a row that no
		// longer exists.
		r.mu.Lock()
		delete(r.locks, id)
		r.mu.Unlock()
	}
	return err
}

func (r *Registrar) deleteLocked(ctx context.Context, userID string, id uuid.UUID) error {
	conn, err := r.conns.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if conn.WebhookConfigured {
		if err := r.gw.UnregisterWebhook(ctx, conn.Token); err != nil {
			slog.Warn("webhook unregister failed during delete", "connection", id, "error", err)
		}
	}
	if err := r.gw.DeleteChannel(ctx, conn.Token); err != nil {
		slog.Warn("gateway channel delete failed, removing local row anyway",
			"connection", id, "error", err)
	}

	if err := r.conns.Delete(ctx, userID, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete connection: %w", err)
	}

	slog.Info("connection deleted", "connection", id)
	return nil
}
