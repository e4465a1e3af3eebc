package session

import (
	"context"
	"sync"
	"time"

	"github.com/atriumhq/atrium/internal/errors"
)

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	expiries map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		expiries: make(map[string]time.Time),
	}
}

func (s *MemoryStore) Put(_ context.Context, token string, sess Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	s.sessions[key] = sess
	if ttl != 0 {
		s.expiries[key] = time.Now().Add(ttl)
	} else {
		delete(s.expiries, key)
	}
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	sess, ok := s.sessions[key]
	if !ok {
		return errors.Unauthorized("session not found or expired")
	}
	if expiry, ok := s.expiries[key]; ok && time.Now().After(expiry) {
		return errors.Unauthorized("session not found or expired")
	}
	if ttl > 0 {
		renewed := time.Now().Add(ttl)
		s.expiries[key] = renewed
		sess.ExpiresAt = renewed
		s.sessions[key] = sess
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := hashToken(token)
	sess, ok := s.sessions[key]
	if !ok {
		return Session{}, errors.Unauthorized("session not found or expired")
	}
	if expiry, ok := s.expiries[key]; ok && time.Now().After(expiry) {
		return Session{}, errors.Unauthorized("session not found or expired")
	}
	if sess.Expired(time.Now()) {
		return Session{}, errors.Unauthorized("session not found or expired")
	}
	return sess, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashToken(token)
	delete(s.sessions, key)
	delete(s.expiries, key)
	return nil
}
