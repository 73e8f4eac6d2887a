// Package sqlite provides the standalone-mode connection store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/chanlink/internal/store"
)

// ConnectionStore implements store.ConnectionStore on a local SQLite file.
type ConnectionStore struct {
	db *sql.DB
}

// NewConnectionStore opens (or creates) the SQLite database at the given path
// and initializes the schema.
func NewConnectionStore(dbPath string) (*ConnectionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &ConnectionStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("connection store opened", "path", dbPath)
	return s, nil
}

func (s *ConnectionStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS channel_connections (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			token TEXT NOT NULL UNIQUE,
			phone_id TEXT,
			display_name TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			webhook_configured INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_connections_user ON channel_connections(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		conn.ID.String(), conn.UserID, conn.Token, conn.PhoneID, conn.DisplayName,
		boolInt(conn.IsActive), boolInt(conn.WebhookConfigured), now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

const connectionColumns = `id, user_id, token, phone_id, display_name, is_active, webhook_configured, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*store.Connection, error) {
	var (
		c                  store.Connection
		id                 string
		active, configured int
		created, updated   int64
	)
	err := row.Scan(&id, &c.UserID, &c.Token, &c.PhoneID, &c.DisplayName,
		&active, &configured, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse connection id: %w", err)
	}
	c.IsActive = active != 0
	c.WebhookConfigured = configured != 0
	c.CreatedAt = time.UnixMilli(created)
	c.UpdatedAt = time.UnixMilli(updated)
	return &c, nil
}

func (s *ConnectionStore) GetByID(ctx context.Context, userID string, id uuid.UUID) (*store.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE id = ? AND user_id = ?`, id.String(), userID)
	return scanConnection(row)
}

func (s *ConnectionStore) GetByToken(ctx context.Context, token string) (*store.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE token = ?`, token)
	return scanConnection(row)
}

func (s *ConnectionStore) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM channel_connections WHERE token = ?`, token).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("token lookup: %w", err)
	}
	return count > 0, nil
}

func (s *ConnectionStore) List(ctx context.Context, userID string) ([]store.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM channel_connections WHERE user_id = ? ORDER BY created_at DESC`, userID)
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
		`UPDATE channel_connections SET is_active = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		boolInt(active), time.Now().UnixMilli(), id.String(), userID)
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
		`UPDATE channel_connections SET webhook_configured = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		boolInt(configured), time.Now().UnixMilli(), id.String(), userID)
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
		`UPDATE channel_connections SET phone_id = ?, updated_at = ? WHERE token = ?`,
		phoneID, time.Now().UnixMilli(), token)
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
		`DELETE FROM channel_connections WHERE id = ? AND user_id = ?`, id.String(), userID)
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
