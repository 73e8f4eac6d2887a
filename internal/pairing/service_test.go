package pairing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/nextlevelbuilder/chanlink/internal/artifact"
	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/store"
	"github.com/nextlevelbuilder/chanlink/internal/token"
	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

// gatewayStub is an httptest gateway with a scripted status body.
type gatewayStub struct {
	srv *httptest.Server

	mu         sync.Mutex
	statusBody string // raw JSON served for status polls
	statusCode int
	scanCalls  int
}

func newGatewayStub(t *testing.T) *gatewayStub {
	t.Helper()
	png, err := qrcode.Encode("pairing-payload", qrcode.Medium, 256)
	if err != nil {
		t.Fatal(err)
	}

	g := &gatewayStub{statusCode: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /scan", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		g.scanCalls++
		g.mu.Unlock()
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	mux.HandleFunc("GET /v3/bot/{token}", func(w http.ResponseWriter, r *http.Request) {
		g.mu.Lock()
		body, code := g.statusBody, g.statusCode
		g.mu.Unlock()
		w.WriteHeader(code)
		w.Write([]byte(body))
	})
	mux.HandleFunc("POST /v3/bot/{token}/webhook", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	g.srv = httptest.NewServer(mux)
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gatewayStub) setStatus(body string, code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusBody, g.statusCode = body, code
}

func newTestService(t *testing.T) (*Service, store.ConnectionStore, *gatewayStub) {
	t.Helper()
	stub := newGatewayStub(t)
	gw := gateway.NewClient(stub.srv.URL, 0)
	conns := store.NewMemoryConnectionStore()
	provider := artifact.NewProvider(gw, conns)
	registrar := webhook.NewRegistrar(gw, conns, "https://api.example.com")
	return NewService(conns, gw, provider, registrar), conns, stub
}

func TestGeneratePairing(t *testing.T) {
	svc, _, stub := newTestService(t)

	res, err := svc.GeneratePairing(context.Background(), "My Phone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !token.Valid(res.Token) {
		t.Errorf("token %q is not well formed", res.Token)
	}
	if len(res.Artifact.PNG) == 0 {
		t.Error("expected a normalized artifact")
	}
	if stub.scanCalls != 1 {
		t.Errorf("scan calls %d, want 1", stub.scanCalls)
	}
}

func TestGeneratePairing_EmptyDisplayName(t *testing.T) {
	svc, _, stub := newTestService(t)

	_, err := svc.GeneratePairing(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected a validation error")
	}
	if stub.scanCalls != 0 {
		t.Errorf("validation failure must not hit the gateway, scan calls %d", stub.scanCalls)
	}
}

func TestVerifyPairing_PendingReturnsUnconfirmed(t *testing.T) {
	svc, conns, stub := newTestService(t)
	stub.setStatus(`{"success": true, "server": {"verified": false}}`, http.StatusOK)

	tok := token.Issue()
	res, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirmed {
		t.Error("pending pairing must not be confirmed")
	}
	if _, err := conns.GetByToken(context.Background(), tok); !errors.Is(err, store.ErrNotFound) {
		t.Error("no connection may exist before confirmation")
	}
}

func TestVerifyPairing_ConfirmedCreatesConnection(t *testing.T) {
	svc, conns, stub := newTestService(t)
	stub.setStatus(`{"success": true, "server": {"verified": true, "wid": "5511999999999:1@s.whatsapp.net"}}`, http.StatusOK)

	tok := token.Issue()
	res, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Confirmed || res.PhoneID != "5511999999999" {
		t.Errorf("result %+v", res)
	}

	conn, err := conns.GetByToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("connection not persisted: %v", err)
	}
	if conn.UserID != "user-1" || !conn.IsActive {
		t.Errorf("connection %+v", conn)
	}
	if conn.PhoneID == nil || *conn.PhoneID != "5511999999999" {
		t.Errorf("phone id %v", conn.PhoneID)
	}
	if conn.DisplayName == nil || *conn.DisplayName != "My Phone" {
		t.Errorf("display name %v", conn.DisplayName)
	}
	if conn.WebhookConfigured {
		t.Error("webhook flag must not be set by confirmation alone")
	}
}

func TestVerifyPairing_RepeatConfirmationUpdatesPhone(t *testing.T) {
	svc, conns, stub := newTestService(t)
	stub.setStatus(`{"success": true, "server": {"verified": true, "wid": "5511999999999:1@s.whatsapp.net"}}`, http.StatusOK)

	tok := token.Issue()
	if _, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone"); err != nil {
		t.Fatal(err)
	}
	stub.setStatus(`{"success": true, "server": {"verified": true, "wid": "5511888888888:2@s.whatsapp.net"}}`, http.StatusOK)
	if _, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone"); err != nil {
		t.Fatal(err)
	}

	conns2, _ := conns.List(context.Background(), "user-1")
	if len(conns2) != 1 {
		t.Fatalf("repeat confirmation must not create a second row, got %d", len(conns2))
	}
	if conns2[0].PhoneID == nil || *conns2[0].PhoneID != "5511888888888" {
		t.Errorf("phone id %v", conns2[0].PhoneID)
	}
}

func TestVerifyPairing_CrossUserToken(t *testing.T) {
	svc, _, stub := newTestService(t)
	stub.setStatus(`{"success": true, "server": {"verified": true, "wid": "5511999999999@s.whatsapp.net"}}`, http.StatusOK)

	tok := token.Issue()
	if _, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.VerifyPairing(context.Background(), "user-2", tok, "Other Phone")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user's token, got %v", err)
	}
}

func TestVerifyPairing_ServerEmptyPropagates(t *testing.T) {
	svc, _, stub := newTestService(t)
	stub.setStatus("", http.StatusOK)

	_, err := svc.VerifyPairing(context.Background(), "user-1", token.Issue(), "My Phone")
	if !errors.Is(err, gateway.ErrServerEmpty) {
		t.Fatalf("expected ErrServerEmpty, got %v", err)
	}
}

func TestVerifyPairing_MalformedToken(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.VerifyPairing(context.Background(), "user-1", "not-a-token", "My Phone"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
	if _, err := svc.VerifyPairing(context.Background(), "user-1", strings.Repeat("x", 21), "My Phone"); err == nil {
		t.Fatal("expected an error for a wrong-prefix token")
	}
}

func TestConfigureWebhook_AfterConfirmation(t *testing.T) {
	svc, conns, stub := newTestService(t)
	stub.setStatus(`{"success": true, "server": {"verified": true, "wid": "5511999999999@s.whatsapp.net"}}`, http.StatusOK)

	tok := token.Issue()
	if _, err := svc.VerifyPairing(context.Background(), "user-1", tok, "My Phone"); err != nil {
		t.Fatal(err)
	}
	if err := svc.ConfigureWebhook(context.Background(), "user-1", tok, webhook.Metadata{UserID: "user-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn, _ := conns.GetByToken(context.Background(), tok)
	if !conn.WebhookConfigured {
		t.Error("webhook flag must be set after configuration")
	}
}

func TestCompleter_BindsUser(t *testing.T) {
	svc, conns, _ := newTestService(t)
	comp := svc.CompleterFor("user-1", webhook.Metadata{UserID: "user-1"})

	tok := token.Issue()
	if err := comp.PairingConfirmed(context.Background(), tok, "My Phone", "5511999999999"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn, err := conns.GetByToken(context.Background(), tok)
	if err != nil {
		t.Fatal(err)
	}
	if conn.UserID != "user-1" {
		t.Errorf("user %q", conn.UserID)
	}
	if err := comp.ConfigureWebhook(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	conn, _ = conns.GetByToken(context.Background(), tok)
	if !conn.WebhookConfigured {
		t.Error("webhook flag must be set")
	}
}
