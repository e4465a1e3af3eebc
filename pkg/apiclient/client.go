// Package apiclient is the shared HTTP base for the typed API clients. It
// attaches credentials, encodes JSON bodies, and decodes the API error
// envelope. Failed requests are not retried; errors propagate to the caller.
package apiclient

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

// ErrorEnvelope is the wire shape of an API error response.
type ErrorEnvelope struct {
	Error struct {
		Code    string                 `json:"code"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details,omitempty"`
	} `json:"error"`
}

// Config configures a client. Exactly one of BearerToken or SessionCookie is
// normally set; both empty is valid for unauthenticated calls.
type Config struct {
	BaseURL       string
	BearerToken   string
	SessionCookie string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client is the authenticated JSON transport the typed clients wrap.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	bearerToken   string
	sessionCookie string
	cookieName    string
}

// New creates a client from configuration.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		httpClient:    httpClient,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		bearerToken:   cfg.BearerToken,
		sessionCookie: cfg.SessionCookie,
		cookieName:    "atrium_session",
	}
}

// Do executes a request and decodes the JSON response into out. A status of
// 400 or above is returned as a *StatusError carrying the decoded envelope.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	if c.sessionCookie != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.sessionCookie})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body, out interface{}) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// StatusError is the decoded API error envelope plus the HTTP status.
type StatusError struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

func decodeStatusError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("read error response: %w", err)
	}

	var envelope ErrorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code == "" {
		return &StatusError{
			Code:    "unexpected_response",
			Message: strings.TrimSpace(string(data)),
			Status:  resp.StatusCode,
		}
	}
	return &StatusError{
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
		Status:  resp.StatusCode,
		Details: envelope.Error.Details,
	}
}
