package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atriumhq/atrium/internal/app"
	"github.com/atriumhq/atrium/internal/middleware"
	"github.com/atriumhq/atrium/internal/services/attachments"
	"github.com/atriumhq/atrium/internal/session"
)

var testSecret = []byte("handler-test-secret")

// fakeObjects satisfies objstore.Store without a real endpoint.
type fakeObjects struct{}

func (fakeObjects) PresignUpload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/put/" + key, nil
}

func (fakeObjects) PresignDownload(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://objects.test/get/" + key, nil
}

func (fakeObjects) Remove(context.Context, string) error { return nil }

func newTestHandler(t *testing.T, admins []string) http.Handler {
	t.Helper()

	application, err := app.New(app.Stores{}, app.Options{
		Objects:     fakeObjects{},
		Attachments: attachments.Config{MaxSizeBytes: 1 << 20},
	}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start application: %v", err)
	}
	t.Cleanup(func() { _ = application.Stop(context.Background()) })

	return NewHandler(Deps{
		Tenants:       application.Tenants,
		Messaging:     application.Messaging,
		Notifications: application.Notifications,
		Attachments:   application.Attachments,
		Dashboards:    application.Dashboards,
		Sessions:      session.NewMemoryStore(),
	}, Config{
		JWTSecret:      testSecret,
		SessionTTL:     time.Hour,
		PlatformAdmins: admins,
	})
}

func mintToken(t *testing.T, userID, tenantID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.Claims{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, handler http.Handler, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(resp.Body.Bytes(), dst); err != nil {
		t.Fatalf("unmarshal response %s: %v", resp.Body.String(), err)
	}
}

func TestHandlerRequiresAuth(t *testing.T) {
	handler := newTestHandler(t, nil)

	resp := doJSON(t, handler, "", http.MethodGet, "/api/conversations", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.Code)
	}

	resp = doJSON(t, handler, "", http.MethodGet, "/healthz", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected open healthz, got %d", resp.Code)
	}
}

func TestMessagingLifecycle(t *testing.T) {
	handler := newTestHandler(t, nil)
	alice := mintToken(t, "alice", "t1", "member")
	bob := mintToken(t, "bob", "t1", "member")
	eve := mintToken(t, "eve", "t2", "member")

	resp := doJSON(t, handler, alice, http.MethodPost, "/api/conversations", map[string]interface{}{
		"subject":         "Launch planning",
		"participant_ids": []string{"bob"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create conversation, got %d: %s", resp.Code, resp.Body.String())
	}
	var conv struct {
		ID string `json:"id"`
	}
	decode(t, resp, &conv)

	resp = doJSON(t, handler, alice, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]interface{}{
		"body": "Kickoff is Monday",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 send message, got %d: %s", resp.Code, resp.Body.String())
	}
	var root struct {
		ID string `json:"id"`
	}
	decode(t, resp, &root)

	resp = doJSON(t, handler, bob, http.MethodPost, "/api/conversations/"+conv.ID+"/messages", map[string]interface{}{
		"body":      "Works for me",
		"parent_id": root.ID,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 reply, got %d: %s", resp.Code, resp.Body.String())
	}
	var reply struct {
		ID string `json:"id"`
	}
	decode(t, resp, &reply)

	resp = doJSON(t, handler, alice, http.MethodGet, "/api/messages/"+reply.ID+"/thread", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 thread, got %d", resp.Code)
	}
	var thread struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	decode(t, resp, &thread)
	if len(thread.Messages) != 2 {
		t.Fatalf("expected 2 thread messages, got %d", len(thread.Messages))
	}
	if thread.Messages[0].ID != root.ID {
		t.Fatalf("expected thread root first, got %s", thread.Messages[0].ID)
	}

	resp = doJSON(t, handler, bob, http.MethodPost, "/api/messages/"+root.ID+"/read", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 mark read, got %d: %s", resp.Code, resp.Body.String())
	}
	var delivery struct {
		ReadAt *time.Time `json:"read_at"`
	}
	decode(t, resp, &delivery)
	if delivery.ReadAt == nil {
		t.Fatal("expected read_at set on delivery")
	}

	resp = doJSON(t, handler, bob, http.MethodGet, "/api/notifications?unread_only=true", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 list notifications, got %d", resp.Code)
	}
	var inbox struct {
		Notifications []struct {
			ResourceID string `json:"resource_id"`
		} `json:"notifications"`
	}
	decode(t, resp, &inbox)
	if len(inbox.Notifications) != 1 || inbox.Notifications[0].ResourceID != root.ID {
		t.Fatalf("expected one notification for bob about %s, got %+v", root.ID, inbox.Notifications)
	}

	resp = doJSON(t, handler, bob, http.MethodGet, "/api/notifications/unread-count", nil)
	var count struct {
		Unread int64 `json:"unread"`
	}
	decode(t, resp, &count)
	if count.Unread != 1 {
		t.Fatalf("expected 1 unread, got %d", count.Unread)
	}

	resp = doJSON(t, handler, bob, http.MethodPost, "/api/notifications/read-all", nil)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	decode(t, resp, &updated)
	if updated.Updated != 1 {
		t.Fatalf("expected 1 marked read, got %d", updated.Updated)
	}

	// Cross-tenant callers must not see the conversation.
	resp = doJSON(t, handler, eve, http.MethodGet, "/api/conversations/"+conv.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 cross-tenant, got %d", resp.Code)
	}

	resp = doJSON(t, handler, bob, http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 non-owner delete, got %d", resp.Code)
	}
	resp = doJSON(t, handler, alice, http.MethodDelete, "/api/conversations/"+conv.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 owner delete, got %d", resp.Code)
	}
}

func TestAttachmentUploadFlow(t *testing.T) {
	handler := newTestHandler(t, nil)
	alice := mintToken(t, "alice", "t1", "member")

	resp := doJSON(t, handler, alice, http.MethodPost, "/api/attachments", map[string]interface{}{
		"file_name":    "report.pdf",
		"content_type": "application/pdf",
		"size_bytes":   1024,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create attachment, got %d: %s", resp.Code, resp.Body.String())
	}
	var slot struct {
		Attachment struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"attachment"`
		UploadURL string `json:"upload_url"`
	}
	decode(t, resp, &slot)
	if slot.UploadURL == "" {
		t.Fatal("expected presigned upload URL")
	}
	if slot.Attachment.Status != "pending" {
		t.Fatalf("expected pending attachment, got %s", slot.Attachment.Status)
	}

	// Download is refused until the upload completes.
	resp = doJSON(t, handler, alice, http.MethodGet, "/api/attachments/"+slot.Attachment.ID, nil)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 before completion, got %d", resp.Code)
	}

	resp = doJSON(t, handler, alice, http.MethodPost, "/api/attachments/"+slot.Attachment.ID+"/complete", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 complete, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, alice, http.MethodGet, "/api/attachments/"+slot.Attachment.ID, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 download, got %d", resp.Code)
	}
	var download struct {
		DownloadURL string `json:"download_url"`
	}
	decode(t, resp, &download)
	if download.DownloadURL == "" {
		t.Fatal("expected presigned download URL")
	}

	resp = doJSON(t, handler, alice, http.MethodPost, "/api/attachments", map[string]interface{}{
		"file_name":    "huge.bin",
		"content_type": "application/octet-stream",
		"size_bytes":   2 << 20,
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 oversized attachment, got %d", resp.Code)
	}
}

func TestDashboardResolutionOverHTTP(t *testing.T) {
	handler := newTestHandler(t, []string{"root"})
	admin := mintToken(t, "root", "t1", "admin")
	alice := mintToken(t, "alice", "t1", "member")
	bob := mintToken(t, "bob", "t1", "member")

	layout := map[string]interface{}{
		"columns": 12,
		"widgets": []map[string]interface{}{
			{"type": "chart", "binding": "$.metrics.revenue"},
		},
	}

	// System dashboard published by the platform admin.
	resp := doJSON(t, handler, admin, http.MethodPost, "/api/dashboards", map[string]interface{}{
		"slug": "home", "title": "Home", "visibility": "system",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 system dashboard, got %d: %s", resp.Code, resp.Body.String())
	}
	var sys struct {
		ID string `json:"id"`
	}
	decode(t, resp, &sys)
	resp = doJSON(t, handler, admin, http.MethodPost, "/api/dashboards/"+sys.ID+"/versions", map[string]interface{}{
		"layout": layout,
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 publish, got %d: %s", resp.Code, resp.Body.String())
	}

	// With only the system dashboard, everyone resolves to the system tier.
	resp = doJSON(t, handler, bob, http.MethodGet, "/api/dashboards/resolve?slug=home", nil)
	var res struct {
		Tier   string          `json:"tier"`
		Layout json.RawMessage `json:"layout"`
	}
	decode(t, resp, &res)
	if res.Tier != "system" {
		t.Fatalf("expected system tier, got %s", res.Tier)
	}

	// A tenant fork of the system dashboard beats plain tenant and system.
	resp = doJSON(t, handler, bob, http.MethodPost, "/api/dashboards/"+sys.ID+"/fork", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 fork, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(t, handler, bob, http.MethodGet, "/api/dashboards/resolve?slug=home", nil)
	decode(t, resp, &res)
	if res.Tier != "tenant_fork" {
		t.Fatalf("expected tenant_fork tier, got %s", res.Tier)
	}

	// Alice's personal dashboard wins over everything for her only.
	resp = doJSON(t, handler, alice, http.MethodPost, "/api/dashboards", map[string]interface{}{
		"slug": "home", "title": "My home", "visibility": "user",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 user dashboard, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(t, handler, alice, http.MethodGet, "/api/dashboards/resolve?slug=home", nil)
	decode(t, resp, &res)
	if res.Tier != "user" {
		t.Fatalf("expected user tier for alice, got %s", res.Tier)
	}
	// Unpublished user dashboard resolves with the empty fallback layout.
	if string(res.Layout) != `{"columns":12,"widgets":[]}` {
		t.Fatalf("expected empty layout for unpublished dashboard, got %s", res.Layout)
	}
	resp = doJSON(t, handler, bob, http.MethodGet, "/api/dashboards/resolve?slug=home", nil)
	decode(t, resp, &res)
	if res.Tier != "tenant_fork" {
		t.Fatalf("expected tenant_fork tier for bob, got %s", res.Tier)
	}

	// Unknown slugs synthesize the fallback.
	resp = doJSON(t, handler, bob, http.MethodGet, "/api/dashboards/resolve?slug=missing", nil)
	decode(t, resp, &res)
	if res.Tier != "fallback" {
		t.Fatalf("expected fallback tier, got %s", res.Tier)
	}

	// Publishing an invalid layout is rejected.
	resp = doJSON(t, handler, admin, http.MethodPost, "/api/dashboards/"+sys.ID+"/versions", map[string]interface{}{
		"layout": map[string]interface{}{"columns": 99, "widgets": []string{}},
	})
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid layout, got %d", resp.Code)
	}
}

func TestTenantAdminSurface(t *testing.T) {
	handler := newTestHandler(t, []string{"root"})
	admin := mintToken(t, "root", "t1", "admin")
	alice := mintToken(t, "alice", "t1", "member")

	resp := doJSON(t, handler, alice, http.MethodGet, "/api/tenants", nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", resp.Code)
	}

	resp = doJSON(t, handler, admin, http.MethodPost, "/api/tenants", map[string]interface{}{
		"name": "Acme Corp", "slug": "acme", "webhook_url": "https://hooks.acme.test/atrium",
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create tenant, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decode(t, resp, &created)

	resp = doJSON(t, handler, admin, http.MethodPatch, "/api/tenants/"+created.ID, map[string]interface{}{
		"name": "Acme Corporation",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 update tenant, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, handler, admin, http.MethodDelete, "/api/tenants/"+created.ID, nil)
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 delete tenant, got %d", resp.Code)
	}
	resp = doJSON(t, handler, admin, http.MethodGet, "/api/tenants/"+created.ID, nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.Code)
	}
}

func TestSessionCookieRoundTrip(t *testing.T) {
	handler := newTestHandler(t, nil)
	alice := mintToken(t, "alice", "t1", "member")

	resp := doJSON(t, handler, alice, http.MethodPost, "/api/session", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 create session, got %d: %s", resp.Code, resp.Body.String())
	}
	cookies := resp.Result().Cookies()
	var sessionCookie *http.Cookie
	for _, c := range cookies {
		if c.Name == session.CookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("expected session cookie")
	}

	// Cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(sessionCookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with cookie, got %d: %s", rec.Code, rec.Body.String())
	}
	var principal struct {
		UserID   string `json:"user_id"`
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &principal); err != nil {
		t.Fatalf("unmarshal principal: %v", err)
	}
	if principal.UserID != "alice" || principal.TenantID != "t1" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	// Logout invalidates the cookie.
	req = httptest.NewRequest(http.MethodDelete, "/api/session", nil)
	req.AddCookie(sessionCookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 logout, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.AddCookie(sessionCookie)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}
