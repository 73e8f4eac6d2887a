package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chanlink/internal/store"
)

func newTestStore(t *testing.T) *ConnectionStore {
	t.Helper()
	s, err := NewConnectionStore(filepath.Join(t.TempDir(), "chanlink.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newConn(userID, token string) *store.Connection {
	name := "My Phone"
	return &store.Connection{
		UserID:      userID,
		Token:       token,
		DisplayName: &name,
		IsActive:    true,
	}
}

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := newConn("user-1", "chnAAAAAAAAAAAAAAA001")
	if err := s.Create(ctx, conn); err != nil {
		t.Fatalf("create: %v", err)
	}
	if conn.ID == uuid.Nil {
		t.Fatal("create must assign an id")
	}

	got, err := s.GetByID(ctx, "user-1", conn.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Token != conn.Token || got.UserID != "user-1" || !got.IsActive {
		t.Errorf("got %+v", got)
	}
	if got.DisplayName == nil || *got.DisplayName != "My Phone" {
		t.Errorf("display name %v", got.DisplayName)
	}
	if got.PhoneID != nil {
		t.Errorf("phone id should start unset, got %v", got.PhoneID)
	}
	if got.WebhookConfigured {
		t.Error("webhook flag should start false")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not recorded")
	}

	byToken, err := s.GetByToken(ctx, conn.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if byToken.ID != conn.ID {
		t.Errorf("token lookup returned %v", byToken.ID)
	}
}

func TestTokenUniqueness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, newConn("user-1", "chnAAAAAAAAAAAAAAA001")); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, newConn("user-2", "chnAAAAAAAAAAAAAAA001")); err == nil {
		t.Fatal("duplicate token must be rejected")
	}

	exists, err := s.TokenExists(ctx, "chnAAAAAAAAAAAAAAA001")
	if err != nil || !exists {
		t.Errorf("TokenExists = %v, %v", exists, err)
	}
	exists, err = s.TokenExists(ctx, "chnAAAAAAAAAAAAAAA002")
	if err != nil || exists {
		t.Errorf("TokenExists for unused token = %v, %v", exists, err)
	}
}

func TestUserScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := newConn("user-1", "chnAAAAAAAAAAAAAAA001")
	if err := s.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetByID(ctx, "user-2", conn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign get: %v", err)
	}
	if _, err := s.SetActive(ctx, "user-2", conn.ID, false); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign toggle: %v", err)
	}
	if err := s.Delete(ctx, "user-2", conn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("foreign delete: %v", err)
	}

	// The row is untouched.
	if _, err := s.GetByID(ctx, "user-1", conn.ID); err != nil {
		t.Errorf("owner get after foreign attempts: %v", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, tok := range []string{"chnAAAAAAAAAAAAAAA001", "chnAAAAAAAAAAAAAAA002"} {
		if err := s.Create(ctx, newConn("user-1", tok)); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Create(ctx, newConn("user-2", "chnAAAAAAAAAAAAAAA003")); err != nil {
		t.Fatal(err)
	}

	conns, err := s.List(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conns) != 2 {
		t.Errorf("list returned %d connections, want 2", len(conns))
	}
	for _, c := range conns {
		if c.UserID != "user-1" {
			t.Errorf("foreign row in list: %+v", c)
		}
	}

	empty, err := s.List(ctx, "user-3")
	if err != nil {
		t.Fatalf("empty list: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty list, got %d", len(empty))
	}
}

func TestSetActiveAndWebhookFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := newConn("user-1", "chnAAAAAAAAAAAAAAA001")
	if err := s.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	updated, err := s.SetActive(ctx, "user-1", conn.ID, false)
	if err != nil {
		t.Fatalf("set active: %v", err)
	}
	if updated.IsActive {
		t.Error("expected inactive")
	}

	if err := s.SetWebhookConfigured(ctx, "user-1", conn.ID, true); err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	got, _ := s.GetByID(ctx, "user-1", conn.ID)
	if !got.WebhookConfigured {
		t.Error("webhook flag not persisted")
	}
}

func TestSetPhoneID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := newConn("user-1", "chnAAAAAAAAAAAAAAA001")
	if err := s.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}

	if err := s.SetPhoneID(ctx, conn.Token, "5511999999999"); err != nil {
		t.Fatalf("set phone id: %v", err)
	}
	got, _ := s.GetByToken(ctx, conn.Token)
	if got.PhoneID == nil || *got.PhoneID != "5511999999999" {
		t.Errorf("phone id %v", got.PhoneID)
	}

	if err := s.SetPhoneID(ctx, "chnAAAAAAAAAAAAAAA999", "x"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown token: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conn := newConn("user-1", "chnAAAAAAAAAAAAAAA001")
	if err := s.Create(ctx, conn); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "user-1", conn.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetByID(ctx, "user-1", conn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
	if err := s.Delete(ctx, "user-1", conn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}
