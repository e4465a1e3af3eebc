package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atriumhq/atrium/internal/session"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func identityEcho(t *testing.T, wantUser, wantTenant string) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := GetUserID(r.Context()); got != wantUser {
			t.Errorf("user id = %q, want %q", got, wantUser)
		}
		if got := GetTenantID(r.Context()); got != wantTenant {
			t.Errorf("tenant id = %q, want %q", got, wantTenant)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthBearerToken(t *testing.T) {
	mw := NewAuthMiddleware([]byte(testSecret), nil, 0, nil, nil)
	handler := mw.Handler(identityEcho(t, "alice", "t1"))

	token := signToken(t, Claims{
		UserID:   "alice",
		TenantID: "t1",
		Role:     "member",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	mw := NewAuthMiddleware([]byte(testSecret), nil, 0, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached with expired token")
	}))

	token := signToken(t, Claims{
		UserID:   "alice",
		TenantID: "t1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthRejectsMissingTenantClaim(t *testing.T) {
	mw := NewAuthMiddleware([]byte(testSecret), nil, 0, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without tenant claim")
	}))

	token := signToken(t, Claims{
		UserID: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthSessionCookieFallback(t *testing.T) {
	sessions := session.NewMemoryStore()
	token, err := session.NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := sessions.Put(context.Background(), token, session.Session{
		ID: "s1", UserID: "bob", TenantID: "t2", Role: "member",
	}, time.Minute); err != nil {
		t.Fatalf("put session: %v", err)
	}

	mw := NewAuthMiddleware([]byte(testSecret), sessions, 0, nil, nil)
	handler := mw.Handler(identityEcho(t, "bob", "t2"))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthCookieRenewsSession(t *testing.T) {
	sessions := session.NewMemoryStore()
	token, err := session.NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if err := sessions.Put(context.Background(), token, session.Session{
		ID: "s1", UserID: "bob", TenantID: "t2",
	}, time.Minute); err != nil {
		t.Fatalf("put session: %v", err)
	}

	mw := NewAuthMiddleware([]byte(testSecret), sessions, 2*time.Hour, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	sess, err := sessions.Get(context.Background(), token)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !sess.ExpiresAt.After(time.Now().Add(time.Hour)) {
		t.Fatalf("session expiry not renewed past the original minute: %s", sess.ExpiresAt)
	}
}

func TestAuthBearerWinsOverCookie(t *testing.T) {
	sessions := session.NewMemoryStore()
	if err := sessions.Put(context.Background(), "cookie-token", session.Session{
		ID: "s1", UserID: "bob", TenantID: "t2",
	}, time.Minute); err != nil {
		t.Fatalf("put session: %v", err)
	}

	mw := NewAuthMiddleware([]byte(testSecret), sessions, 0, nil, nil)
	handler := mw.Handler(identityEcho(t, "alice", "t1"))

	token := signToken(t, Claims{
		UserID:   "alice",
		TenantID: "t1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "cookie-token"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthSkipPaths(t *testing.T) {
	mw := NewAuthMiddleware([]byte(testSecret), nil, 0, nil, []string{"/healthz"})
	called := false
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected skip path to pass through, status %d", rec.Code)
	}
}

func TestAuthMissingCredentials(t *testing.T) {
	mw := NewAuthMiddleware([]byte(testSecret), nil, 0, nil, nil)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler reached without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	handler := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}
