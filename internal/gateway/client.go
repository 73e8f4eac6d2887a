// Package gateway is the HTTP client for the external messaging-channel
// gateway: the service that performs device pairing, reports pairing status,
// and delivers inbound events to a registered webhook.
//
// Every call carries an explicit timeout and an OpenTelemetry span. Outbound
// requests pass a client-side token bucket so a misbehaving flow cannot
// hammer the gateway.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	// statusTimeout bounds the pairing-status poll (the gateway is slow).
	statusTimeout = 10 * time.Second
	// defaultTimeout bounds every other gateway call.
	defaultTimeout = 15 * time.Second
	// maxResponseBytes caps gateway response bodies (artifacts included).
	maxResponseBytes = 4 << 20 // 4MB

	// tokenHeader is the credential header the gateway expects on
	// scan and channel-delete calls.
	tokenHeader = "token"
)

// Client talks to the channel gateway.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	tracer  trace.Tracer
}

// NewClient creates a gateway client for the given base URL.
// rpm limits outbound calls per minute; rpm <= 0 disables the limit.
func NewClient(baseURL string, rpm int) *Client {
	limit := rate.Inf
	if rpm > 0 {
		limit = rate.Limit(float64(rpm) / 60.0)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		limiter: rate.NewLimiter(limit, 5),
		tracer:  otel.Tracer("chanlink/gateway"),
	}
}

// APIError is a non-2xx gateway response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Body)
}

// StatusResult is the parsed pairing status for a token.
type StatusResult struct {
	Confirmed bool
	// Wid is the gateway's device identifier, e.g. "5511999999999:1@s.whatsapp.net".
	// Empty unless Confirmed.
	Wid string
}

// statusPayload mirrors the gateway's status response. Some gateway versions
// wrap it in a single-element array.
type statusPayload struct {
	Success bool `json:"success"`
	Server  struct {
		Verified bool   `json:"verified"`
		Wid      string `json:"wid"`
	} `json:"server"`
}

// Scan requests a pairing artifact for the token. The body may be raw image
// bytes or a text-encoded image; normalization is the caller's concern.
func (c *Client) Scan(ctx context.Context, token, displayName string) (body []byte, contentType string, err error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	ctx, span := c.startSpan(ctx, "gateway.scan")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/scan", nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set(tokenHeader, token)
	if displayName != "" {
		req.Header.Set("x-display-name", displayName)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, "", fmt.Errorf("scan: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", fmt.Errorf("scan: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return nil, "", &APIError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Status polls the gateway for pairing confirmation of a token.
//
// Classification:
//   - empty or unparseable body: ErrServerEmpty (the gateway lost the session)
//   - parsed, not verified: ErrNotConfirmed
//   - parsed, verified: StatusResult with the device wid
func (c *Client) Status(ctx context.Context, token string) (StatusResult, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	ctx, span := c.startSpan(ctx, "gateway.status")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v3/bot/"+token, nil)
	if err != nil {
		return StatusResult{}, err
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return StatusResult{}, fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return StatusResult{}, fmt.Errorf("status: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		span.SetStatus(codes.Error, resp.Status)
		return StatusResult{}, &APIError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	payload, ok := parseStatus(data)
	if !ok {
		slog.Warn("gateway status unparseable", "token_len", len(token), "body_len", len(data))
		span.SetAttributes(attribute.Bool("gateway.server_empty", true))
		return StatusResult{}, ErrServerEmpty
	}
	if !payload.Success || !payload.Server.Verified {
		return StatusResult{}, ErrNotConfirmed
	}
	return StatusResult{Confirmed: true, Wid: payload.Server.Wid}, nil
}

// parseStatus accepts both the object and the single-element-array form the
// gateway is known to return.
func parseStatus(data []byte) (statusPayload, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return statusPayload{}, false
	}

	var obj statusPayload
	if err := json.Unmarshal(trimmed, &obj); err == nil {
		return obj, true
	}

	var arr []statusPayload
	if err := json.Unmarshal(trimmed, &arr); err == nil && len(arr) > 0 {
		return arr[0], true
	}
	return statusPayload{}, false
}

// WebhookRegistration is the callback configuration sent to the gateway.
type WebhookRegistration struct {
	URL   string       `json:"url"`
	Extra WebhookExtra `json:"extra"`
}

// WebhookExtra is the opaque per-connection metadata echoed back on events.
type WebhookExtra struct {
	ID                string `json:"id"`
	IaID              string `json:"iaId,omitempty"`
	IsIntegrationUser bool   `json:"isIntegrationUser"`
}

// RegisterWebhook registers a callback endpoint for the token's channel.
func (c *Client) RegisterWebhook(ctx context.Context, token string, reg WebhookRegistration) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("register webhook: %w", err)
	}
	return c.simpleCall(ctx, "gateway.webhook_register", http.MethodPost,
		c.baseURL+"/v3/bot/"+token+"/webhook", body, "")
}

// UnregisterWebhook removes the callback registration for the token's channel.
func (c *Client) UnregisterWebhook(ctx context.Context, token string) error {
	return c.simpleCall(ctx, "gateway.webhook_unregister", http.MethodDelete,
		c.baseURL+"/v3/bot/"+token+"/webhook", nil, "")
}

// DeleteChannel deletes the channel at the gateway. Used on local connection
// deletion; failures are the caller's to log, not to block on.
func (c *Client) DeleteChannel(ctx context.Context, token string) error {
	return c.simpleCall(ctx, "gateway.channel_delete", http.MethodDelete,
		c.baseURL+"/info", nil, token)
}

func (c *Client) simpleCall(ctx context.Context, span, method, url string, body []byte, credToken string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	ctx, sp := c.startSpan(ctx, span)
	defer sp.End()

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if credToken != "" {
		req.Header.Set(tokenHeader, credToken)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		sp.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		sp.SetStatus(codes.Error, resp.Status)
		return &APIError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return c.http.Do(req)
}

func (c *Client) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
