package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atriumhq/atrium/pkg/apiclient"
)

func TestClientRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("atrium_session")
		if err != nil || cookie.Value != "sess-token" {
			t.Fatalf("expected session cookie, got %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /api/notifications":
			if r.URL.Query().Get("unread_only") != "true" {
				t.Fatalf("expected unread_only=true, got %q", r.URL.RawQuery)
			}
			json.NewEncoder(w).Encode(map[string][]Notification{"notifications": {
				{ID: "n1", UserID: "bob", Kind: "message", Title: "New message", CreatedAt: now},
			}})
		case "GET /api/notifications/unread-count":
			json.NewEncoder(w).Encode(map[string]int64{"unread": 3})
		case "POST /api/notifications/read-all":
			json.NewEncoder(w).Encode(map[string]int64{"updated": 3})
		case "POST /api/notifications/n1/read":
			read := now
			json.NewEncoder(w).Encode(Notification{ID: "n1", ReadAt: &read})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(apiclient.Config{BaseURL: server.URL, SessionCookie: "sess-token"})
	ctx := context.Background()

	items, err := client.List(ctx, ListOptions{UnreadOnly: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != "n1" {
		t.Fatalf("unexpected inbox %+v", items)
	}

	count, err := client.UnreadCount(ctx)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 unread, got %d", count)
	}

	n, err := client.MarkRead(ctx, "n1")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n.ReadAt == nil {
		t.Fatal("expected read_at set")
	}

	updated, err := client.MarkAllRead(ctx)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if updated != 3 {
		t.Fatalf("expected 3 updated, got %d", updated)
	}
}

func TestClientDecodesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]map[string]string{
			"error": {"code": "not_found", "message": "notification n9 not found"},
		})
	}))
	defer server.Close()

	client := NewClient(apiclient.Config{BaseURL: server.URL})

	err := client.Dismiss(context.Background(), "n9")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.Code != "not_found" || apiErr.Status != http.StatusNotFound {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}
