package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chanlink/internal/store"
)

// ConnectionStore implements store.ConnectionStore backed by Postgres
// (managed mode).
type ConnectionStore struct {
	db *sql.DB
}

func NewConnectionStore(db *sql.DB) (*ConnectionStore, error) {
	s := &ConnectionStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate connections: %w", err)
	}
	return s, nil
}

func (s *ConnectionStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS channel_connections (
		id UUID PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		token TEXT NOT NULL UNIQUE,
		phone_id TEXT,
		display_name TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		webhook_configured BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_channel_connections_user ON channel_connections(user_id)`)
	return err
}

func (s *ConnectionStore) Create(ctx context.Context, conn *store.Connection) error {
	if err := store.ValidateUserID(conn.UserID); err != nil {
		return err
	}
	now := time.Now()
	if conn.ID == uuid.Nil {
		conn.ID = store.GenNewID()
	}
	conn.CreatedAt = now
	conn.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channel_connections (id, user_id, token, phone_id, display_name, is_active, webhook_configured, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		conn.ID, conn.UserID, conn.Token, conn.PhoneID, conn.DisplayName, conn.IsActive, conn.WebhookConfigured, now, now,
	)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

const connectionColumns = `id, user_id, token, phone_id, display_name, is_active, webhook_configured, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*store.Connection, error) {
	var c store.Connection
	err := row.Scan(&c.ID, &c.UserID, &c.Token, &c.PhoneID, &c.DisplayName,
		&c.IsActive, &c.WebhookConfigured, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *ConnectionStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*store.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE id = $1 AND user_id = $2`, id, userID)
	return scanConnection(row)
}

func (s *ConnectionStore) GetByToken(ctx context.Context, token string) (*store.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE token = $1`, token)
	return scanConnection(row)
}

func (s *ConnectionStore) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_connections WHERE token = $1`, token).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("token lookup: %w", err)
	}
	return count > 0, nil
}

func (s *ConnectionStore) List(ctx context.Context, userID string) ([]store.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	result := []store.Connection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	return result, rows.Err()
}

func (s *ConnectionStore) SetActive(ctx context.Context, userID string, id uuid.UUID, active bool) (*store.Connection, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channel_connections SET is_active = $1, updated_at = $2 WHERE id = $3 AND user_id = $4`,
		active, time.Now(), id, userID)
	if err != nil {
		return nil, fmt.Errorf("set active: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetByID(ctx, userID, id)
}

func (s *ConnectionStore) SetWebhookConfigured(ctx context.Context, userID string, id uuid.UUID, configured bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channel_connections SET webhook_configured = $1, updated_at = $2 WHERE id = $3 AND user_id = $4`,
		configured, time.Now(), id, userID)
	if err != nil {
		return fmt.Errorf("set webhook configured: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ConnectionStore) SetPhoneID(ctx context.Context, token, phoneID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channel_connections SET phone_id = $1, updated_at = $2 WHERE token = $3`,
		phoneID, time.Now(), token)
	if err != nil {
		return fmt.Errorf("set phone id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ConnectionStore) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM channel_connections WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ConnectionStore) Close() error {
	return s.db.Close()
}
