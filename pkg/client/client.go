// Package client provides a typed HTTP client for the control session API.
// It is the recommended way for Go services to create sessions, revoke them
// and submit commands without hand-rolling requests.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const basePath = "/api/v1/control"

// Session mirrors the descriptor returned on creation. The bearer token is
// only ever returned here; hand it to the viewer out of band.
type Session struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	MaxIntensity int       `json:"maxIntensity"`
	DurationSec  int       `json:"durationSec"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SessionStatus is the owner-visible state of a session.
type SessionStatus struct {
	ID           string    `json:"id"`
	MaxIntensity int       `json:"maxIntensity"`
	DurationSec  int       `json:"durationSec"`
	CreatedAt    time.Time `json:"createdAt"`
	Revoked      bool      `json:"revoked"`
	Active       bool      `json:"active"`
}

// CreateSessionParams are the options for a new session. Nil limit fields
// take the server defaults.
type CreateSessionParams struct {
	OwnerID      string `json:"ownerId,omitempty"`
	MaxIntensity *int   `json:"maxIntensity,omitempty"`
	DurationSec  *int   `json:"durationSec,omitempty"`
}

// APIError is a structured error returned by the server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Client talks to a platform server. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	maxRetries int
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthToken attaches a bearer JWT to session management requests. It is
// required against servers running with auth enabled.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.authToken = token }
}

// WithMaxRetries sets how many times transient server errors are retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateSession registers a new control session and returns its descriptor.
func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) (*Session, error) {
	var sess Session
	if err := c.do(ctx, http.MethodPost, basePath+"/sessions", params, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches the owner-visible status of a session. requesterID is
// ignored by servers running with auth enabled.
func (c *Client) GetSession(ctx context.Context, sessionID, requesterID string) (*SessionStatus, error) {
	path := fmt.Sprintf("%s/sessions/%s", basePath, sessionID)
	if requesterID != "" {
		path += "?requesterId=" + requesterID
	}
	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RevokeSession ends a session. Revoking an already revoked session succeeds
// and re-announces the end to subscribers.
func (c *Client) RevokeSession(ctx context.Context, sessionID, requesterID string) error {
	path := fmt.Sprintf("%s/sessions/%s/revoke", basePath, sessionID)
	body := map[string]string{}
	if requesterID != "" {
		body["requesterId"] = requesterID
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// SubmitCommand sends an intensity command using the session bearer token and
// returns the intensity actually delivered after clamping.
func (c *Client) SubmitCommand(ctx context.Context, sessionID, bearerToken string, intensity float64) (float64, error) {
	path := fmt.Sprintf("%s/sessions/%s/commands", basePath, sessionID)
	var result struct {
		Intensity float64 `json:"intensity"`
	}
	err := c.do(ctx, http.MethodPost, path, map[string]interface{}{
		"bearerToken": bearerToken,
		"intensity":   intensity,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.Intensity, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, target interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.send(ctx, method, path, body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 500 && resp.StatusCode != http.StatusNotImplemented && attempt < c.maxRetries {
			lastErr = decodeError(resp)
			continue
		}
		return decodeResponse(resp, target)
	}
	return lastErr
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if target == nil {
		_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(target); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	defer resp.Body.Close()

	var wire struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &wire); err != nil || wire.Error.Code == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Code:    "unknown",
			Message: strings.TrimSpace(string(body)),
		}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    wire.Error.Code,
		Message: wire.Error.Message,
	}
}
