// Package http exposes the pairing subsystem to the rest of the platform as
// an authenticated HTTP API.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/chanlink/internal/artifact"
	"github.com/nextlevelbuilder/chanlink/internal/gateway"
	"github.com/nextlevelbuilder/chanlink/internal/pairing"
	"github.com/nextlevelbuilder/chanlink/internal/store"
	"github.com/nextlevelbuilder/chanlink/internal/webhook"
)

// maxRequestBodySize caps request bodies.
const maxRequestBodySize = 1 << 20 // 1MB

// Server is the pairing API.
type Server struct {
	svc     *pairing.Service
	limiter *RateLimiter

	// authMu guards authToken: the config watcher swaps it while request
	// handlers read it.
	authMu    sync.RWMutex
	authToken string
}

// NewServer creates the API server. authToken empty disables auth (local
// development); userRPM <= 0 disables per-user rate limiting.
func NewServer(svc *pairing.Service, authToken string, userRPM int) *Server {
	return &Server{
		svc:       svc,
		authToken: authToken,
		limiter:   NewRateLimiter(userRPM, 10),
	}
}

// SetAuthToken swaps the expected bearer token (config hot reload).
func (s *Server) SetAuthToken(tok string) {
	s.authMu.Lock()
	s.authToken = tok
	s.authMu.Unlock()
}

func (s *Server) expectedToken() string {
	s.authMu.RLock()
	defer s.authMu.RUnlock()
	return s.authToken
}

// Close stops the server's background workers.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/pairings", s.withAuth(s.handleGeneratePairing))
	mux.HandleFunc("POST /v1/pairings/{token}/verify", s.withAuth(s.handleVerifyPairing))
	mux.HandleFunc("POST /v1/pairings/{token}/webhook", s.withAuth(s.handleConfigureWebhook))
	mux.HandleFunc("GET /v1/connections", s.withAuth(s.handleListConnections))
	mux.HandleFunc("PATCH /v1/connections/{id}", s.withAuth(s.handleToggleConnection))
	mux.HandleFunc("DELETE /v1/connections/{id}", s.withAuth(s.handleDeleteConnection))
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !tokenMatch(extractBearerToken(r), s.expectedToken()) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userID := extractUserID(r)
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+userIDHeader)
			return
		}
		if !s.limiter.Allow(userID) {
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		next(w, r, userID)
	}
}

func (s *Server) handleGeneratePairing(w http.ResponseWriter, r *http.Request, userID string) {
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	result, err := s.svc.GeneratePairing(r.Context(), req.DisplayName)
	if err != nil {
		s.writePairingError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"token":    result.Token,
		"artifact": result.Artifact.PNG, // base64 via encoding/json
	})
}

func (s *Server) handleVerifyPairing(w http.ResponseWriter, r *http.Request, userID string) {
	tok := r.PathValue("token")
	var req struct {
		DisplayName string `json:"displayName"`
	}
	// Body is optional on verify.
	_ = json.NewDecoder(r.Body).Decode(&req)

	result, err := s.svc.VerifyPairing(r.Context(), userID, tok, req.DisplayName)
	if err != nil {
		s.writePairingError(w, err)
		return
	}

	resp := map[string]any{"confirmed": result.Confirmed}
	if result.PhoneID != "" {
		resp["phoneId"] = result.PhoneID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfigureWebhook(w http.ResponseWriter, r *http.Request, userID string) {
	tok := r.PathValue("token")
	var req struct {
		AttendantID       string `json:"attendantId"`
		IsIntegrationUser bool   `json:"isIntegrationUser"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	meta := webhook.Metadata{
		UserID:            userID,
		AttendantID:       req.AttendantID,
		IsIntegrationUser: req.IsIntegrationUser,
	}
	if err := s.svc.ConfigureWebhook(r.Context(), userID, tok, meta); err != nil {
		s.writePairingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request, userID string) {
	conns, err := s.svc.ListConnections(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list connections failed")
		slog.Error("list connections", "user", userID, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, conns)
}

func (s *Server) handleToggleConnection(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	var req struct {
		Active            *bool  `json:"active"`
		AttendantID       string `json:"attendantId"`
		IsIntegrationUser bool   `json:"isIntegrationUser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeError(w, http.StatusBadRequest, `body must include "active"`)
		return
	}

	meta := webhook.Metadata{
		UserID:            userID,
		AttendantID:       req.AttendantID,
		IsIntegrationUser: req.IsIntegrationUser,
	}
	conn, err := s.svc.ToggleConnection(r.Context(), userID, id, *req.Active, meta)
	if err != nil {
		s.writePairingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) handleDeleteConnection(w http.ResponseWriter, r *http.Request, userID string) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid connection id")
		return
	}
	if err := s.svc.DeleteConnection(r.Context(), userID, id); err != nil {
		s.writePairingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writePairingError maps domain errors onto HTTP statuses.
func (s *Server) writePairingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, artifact.ErrDuplicateToken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, artifact.ErrInvalidArtifact):
		// Regeneration trigger, not a server failure.
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, gateway.ErrServerEmpty):
		writeError(w, http.StatusConflict, "gateway lost the pairing session, regenerate")
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		// Validation errors from the store layer read as user errors.
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
