// Package session stores server-side sessions keyed by an opaque token. The
// token itself is never persisted; only its SHA-256 digest is used as the
// lookup key.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// CookieName is the session cookie issued at login.
const CookieName = "atrium_session"

// Session is the server-side identity bound to a token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Store persists sessions for their TTL. Touch renews a live session's
// expiry, giving cookie logins a sliding window.
type Store interface {
	Put(ctx context.Context, token string, sess Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (Session, error)
	Touch(ctx context.Context, token string, ttl time.Duration) error
	Delete(ctx context.Context, token string) error
}

// NewToken returns a fresh opaque session token.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
