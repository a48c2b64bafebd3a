// Package backend implements the HTTP client for the call backend's
// session API. It provides the [call.SessionCreator] used during
// bootstrap; the realtime traffic itself flows over the channel package.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Kevinxygu/pitchpoint/pkg/call"
)

// createSessionPath is the session-creation endpoint on the backend.
const createSessionPath = "/api/start-voice-session"

// defaultTimeout bounds a session-creation round trip.
const defaultTimeout = 15 * time.Second

// Compile-time interface check.
var _ call.SessionCreator = (*Client)(nil)

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Useful for tests
// and for callers that need custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the pitchpoint call backend over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client for the given base URL
// (e.g. "http://localhost:8080").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// createSessionResponse is the body returned by the backend on success.
type createSessionResponse struct {
	SessionID string       `json:"session_id"`
	Persona   call.Persona `json:"persona"`
}

// CreateSession implements [call.SessionCreator]: it registers the
// persona with the backend and returns the new session id. Any non-2xx
// status is an error; the orchestrator treats it as fatal to bootstrap.
func (c *Client) CreateSession(ctx context.Context, persona call.Persona) (string, error) {
	body, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("backend: marshal persona: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+createSessionPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("backend: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend: create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("backend: create session: status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("backend: decode response: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("backend: response missing session_id")
	}
	return out.SessionID, nil
}
