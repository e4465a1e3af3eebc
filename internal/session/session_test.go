package session

import (
	"context"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/errors"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	token, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}

	sess := Session{ID: "s1", UserID: "alice", TenantID: "t1", Role: "member"}
	if err := store.Put(ctx, token, sess, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "alice" || got.TenantID != "t1" {
		t.Fatalf("unexpected session: %#v", got)
	}

	if err := store.Delete(ctx, token); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = store.Get(ctx, token)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeUnauthorized {
		t.Fatalf("expected unauthorized after delete, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "tok", Session{ID: "s1", UserID: "alice"}, -time.Second); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Get(ctx, "tok"); err == nil {
		t.Fatalf("expected expired session rejected")
	}
}

func TestMemoryStoreTouchExtendsExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "tok", Session{ID: "s1", UserID: "alice"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.mu.RLock()
	before := store.expiries[hashToken("tok")]
	store.mu.RUnlock()

	if err := store.Touch(ctx, "tok", 2*time.Hour); err != nil {
		t.Fatalf("touch: %v", err)
	}

	store.mu.RLock()
	after := store.expiries[hashToken("tok")]
	store.mu.RUnlock()
	if !after.After(before) {
		t.Fatalf("expiry not extended: before %s, after %s", before, after)
	}

	got, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpiresAt.After(time.Now().Add(time.Hour)) {
		t.Fatalf("session ExpiresAt not renewed: %s", got.ExpiresAt)
	}
}

func TestMemoryStoreTouchRejectsMissingSession(t *testing.T) {
	store := NewMemoryStore()

	err := store.Touch(context.Background(), "nope", time.Hour)
	se := errors.GetServiceError(err)
	if se == nil || se.Code != errors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for unknown token, got %v", err)
	}
}

func TestTokensAreUnique(t *testing.T) {
	a, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	b, err := NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if a == b {
		t.Fatalf("tokens collided")
	}
	if len(a) != 64 {
		t.Fatalf("expected 32-byte hex token, got %d chars", len(a))
	}
}

func TestStoreKeysAreHashed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, "tok", Session{ID: "s1"}, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	store.mu.RLock()
	defer store.mu.RUnlock()
	if _, ok := store.sessions["tok"]; ok {
		t.Fatalf("raw token used as storage key")
	}
}
