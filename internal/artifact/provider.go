package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/store"
)

// ErrDuplicateToken means the token already belongs to a persisted
// connection. This is a hard error: the caller must not retry with the same
// token.
var ErrDuplicateToken = errors.New("pairing token already in use")

// Provider requests pairing artifacts from the gateway.
type Provider struct {
	gw    *gateway.Client
	conns store.ConnectionStore
}

func NewProvider(gw *gateway.Client, conns store.ConnectionStore) *Provider {
	return &Provider{gw: gw, conns: conns}
}

// Request asks the gateway for a scannable artifact tied to the token.
//
// Preconditions: displayName non-empty, token not already owned by a
// connection. An invalid payload comes back as ErrInvalidArtifact so the
// session can regenerate; transport errors pass through unchanged.
func (p *Provider) Request(ctx context.Context, token, displayName string) (Artifact, error) {
	if err := store.ValidateDisplayName(displayName); err != nil {
		return Artifact{}, err
	}
	exists, err := p.conns.TokenExists(ctx, token)
	if err != nil {
		return Artifact{}, fmt.Errorf("token uniqueness check: %w", err)
	}
	if exists {
		return Artifact{}, ErrDuplicateToken
	}

	body, contentType, err := p.gw.Scan(ctx, token, displayName)
	if err != nil {
		return Artifact{}, err
	}

	art, err := Normalize(body, contentType)
	if err != nil {
		slog.Warn("pairing artifact rejected",
			"reason", err, "content_type", contentType, "body_len", len(body))
		return Artifact{}, err
	}

	slog.Debug("pairing artifact normalized", "png_len", len(art.PNG))
	return art, nil
}
