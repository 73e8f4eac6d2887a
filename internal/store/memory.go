package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTokenTaken means a connection already holds the pairing token.
var ErrTokenTaken = errors.New("pairing token already taken")

// memoryConnectionStore keeps connections in process memory. Used by tests
// and by ephemeral CLI runs that have no database configured.
type memoryConnectionStore struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Connection
}

// NewMemoryConnectionStore returns an empty in-memory ConnectionStore.
func NewMemoryConnectionStore() ConnectionStore {
	return &memoryConnectionStore{conns: make(map[uuid.UUID]Connection)}
}

func (m *memoryConnectionStore) Create(_ context.Context, conn *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.conns {
		if c.Token == conn.Token {
			return ErrTokenTaken
		}
	}
	if conn.ID == uuid.Nil {
		conn.ID = GenNewID()
	}
	now := time.Now()
	conn.CreatedAt = now
	conn.UpdatedAt = now
	m.conns[conn.ID] = *conn
	return nil
}

func (m *memoryConnectionStore) GetByID(_ context.Context, userID string, id uuid.UUID) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	out := c
	return &out, nil
}

func (m *memoryConnectionStore) GetByToken(_ context.Context, token string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		if c.Token == token {
			out := c
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memoryConnectionStore) TokenExists(_ context.Context, token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		if c.Token == token {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryConnectionStore) List(_ context.Context, userID string) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Connection, 0)
	for _, c := range m.conns {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memoryConnectionStore) SetActive(_ context.Context, userID string, id uuid.UUID, active bool) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok || c.UserID != userID {
		return nil, ErrNotFound
	}
	c.IsActive = active
	c.UpdatedAt = time.Now()
	m.conns[id] = c
	out := c
	return &out, nil
}

func (m *memoryConnectionStore) SetWebhookConfigured(_ context.Context, userID string, id uuid.UUID, configured bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	c.WebhookConfigured = configured
	c.UpdatedAt = time.Now()
	m.conns[id] = c
	return nil
}

func (m *memoryConnectionStore) SetPhoneID(_ context.Context, token, phoneID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, c := range m.conns {
		if c.Token == token {
			c.PhoneID = &phoneID
			c.UpdatedAt = time.Now()
			m.conns[id] = c
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryConnectionStore) Delete(_ context.Context, userID string, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok || c.UserID != userID {
		return ErrNotFound
	}
	delete(m.conns, id)
	return nil
}

func (m *memoryConnectionStore) Close() error { return nil }
