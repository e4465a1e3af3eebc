// Package notifications is the typed client for the notification inbox API.
// Errors surface as *APIError carrying the server's code, message, and HTTP
// status; the client never retries.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/atriumhq/atrium/pkg/apiclient"
)

// Notification mirrors the API's inbox entry resource.
type Notification struct {
	ID           string     `json:"id"`
	TenantID     string     `json:"tenant_id"`
	UserID       string     `json:"user_id"`
	Kind         string     `json:"kind"`
	Title        string     `json:"title"`
	Body         string     `json:"body,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   string     `json:"resource_id,omitempty"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// APIError is the typed error returned for failed notification calls.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("notifications api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the notification endpoints of the BFF.
type Client struct {
	base *apiclient.Client
}

// NewClient creates a notifications client.
func NewClient(cfg apiclient.Config) *Client {
	return &Client{base: apiclient.New(cfg)}
}

// ListOptions pages the inbox.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
	Cursor     time.Time
}

// List returns a page of the caller's inbox, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]Notification, error) {
	query := url.Values{}
	if opts.UnreadOnly {
		query.Set("unread_only", "true")
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if !opts.Cursor.IsZero() {
		query.Set("cursor", opts.Cursor.Format(time.RFC3339Nano))
	}

	path := "/api/notifications"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var out struct {
		Notifications []Notification `json:"notifications"`
	}
	if err := c.base.Get(ctx, path, &out); err != nil {
		return nil, wrap(err)
	}
	return out.Notifications, nil
}

// UnreadCount returns the number of unread inbox entries.
func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Unread int64 `json:"unread"`
	}
	if err := c.base.Get(ctx, "/api/notifications/unread-count", &out); err != nil {
		return 0, wrap(err)
	}
	return out.Unread, nil
}

// MarkRead marks one entry read.
func (c *Client) MarkRead(ctx context.Context, id string) (Notification, error) {
	var out Notification
	if err := c.base.Post(ctx, "/api/notifications/"+url.PathEscape(id)+"/read", nil, &out); err != nil {
		return Notification{}, wrap(err)
	}
	return out, nil
}

// MarkAllRead marks every unread entry read and returns how many changed.
func (c *Client) MarkAllRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := c.base.Post(ctx, "/api/notifications/read-all", nil, &out); err != nil {
		return 0, wrap(err)
	}
	return out.Updated, nil
}

// Dismiss removes an entry from the inbox.
func (c *Client) Dismiss(ctx context.Context, id string) error {
	return wrap(c.base.Delete(ctx, "/api/notifications/"+url.PathEscape(id)))
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return &APIError{Code: se.Code, Message: se.Message, Status: se.Status}
	}
	return err
}
