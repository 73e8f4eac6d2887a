package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func statusServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

func TestStatus_ConfirmedObject(t *testing.T) {
	srv := statusServer(t, `{"success":true,"server":{"verified":true,"wid":"5511999999999:1@s.whatsapp.net"}}`)
	defer srv.Close()

	res, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Confirmed || res.Wid != "5511999999999:1@s.whatsapp.net" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestStatus_ConfirmedArrayForm(t *testing.T) {
	srv := statusServer(t, `[{"success":true,"server":{"verified":true,"wid":"551188887777:2@s.whatsapp.net"}}]`)
	defer srv.Close()

	res, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Confirmed {
		t.Error("array-wrapped status should parse")
	}
}

func TestStatus_NotConfirmed(t *testing.T) {
	srv := statusServer(t, `{"success":true,"server":{"verified":false}}`)
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	if !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
}

func TestStatus_EmptyBody_ServerEmpty(t *testing.T) {
	srv := statusServer(t, "")
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	if !errors.Is(err, ErrServerEmpty) {
		t.Fatalf("expected ErrServerEmpty, got %v", err)
	}
}

func TestStatus_MalformedBody_ServerEmpty(t *testing.T) {
	srv := statusServer(t, `<html>gateway restarting</html>`)
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	if !errors.Is(err, ErrServerEmpty) {
		t.Fatalf("expected ErrServerEmpty, got %v", err)
	}
}

func TestStatus_Non200_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).Status(context.Background(), "chntok")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 APIError, got %v", err)
	}
}

func TestScan_PassesTokenHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scan" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("token"); got != "chnsecret" {
			t.Errorf("expected token header, got %q", got)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	}))
	defer srv.Close()

	body, ct, err := NewClient(srv.URL, 0).Scan(context.Background(), "chnsecret", "work phone")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "pngbytes" || ct != "image/png" {
		t.Errorf("unexpected response: %q %q", body, ct)
	}
}

func TestRegisterWebhook_BodyShape(t *testing.T) {
	var got WebhookRegistration
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/bot/chntok/webhook" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := WebhookRegistration{
		URL:   "https://api.example.com/hooks/abc",
		Extra: WebhookExtra{ID: "user-1", IaID: "attendant-9", IsIntegrationUser: true},
	}
	if err := NewClient(srv.URL, 0).RegisterWebhook(context.Background(), "chntok", reg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != reg {
		t.Errorf("gateway received %+v, want %+v", got, reg)
	}
}

func TestUnregisterWebhook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/v3/bot/chntok/webhook" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, 0).UnregisterWebhook(context.Background(), "chntok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteChannel_TokenHeaderOnInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/info" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("token") != "chntok" {
			t.Error("channel delete missing token header")
		}
	}))
	defer srv.Close()

	if err := NewClient(srv.URL, 0).DeleteChannel(context.Background(), "chntok"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
