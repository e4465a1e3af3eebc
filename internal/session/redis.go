package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/atriumhq/atrium/internal/errors"
)

// RedisStore keeps sessions in Redis under session:{sha256(token)} with the
// session TTL applied as key expiry.
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(token string) string {
	return "session:" + hashToken(token)
}

func (s *RedisStore) Put(ctx context.Context, token string, sess Session, ttl time.Duration) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(token), data, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, token string) (Session, error) {
	data, err := s.client.Get(ctx, redisKey(token)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return Session{}, errors.Unauthorized("session not found or expired")
	}
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return Session{}, err
	}
	if sess.Expired(time.Now()) {
		return Session{}, errors.Unauthorized("session not found or expired")
	}
	return sess, nil
}

// Touch rewrites the session with a renewed ExpiresAt and resets the key TTL.
func (s *RedisStore) Touch(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	key := redisKey(token)
	data, err := s.client.Get(ctx, key).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return errors.Unauthorized("session not found or expired")
	}
	if err != nil {
		return err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return err
	}
	sess.ExpiresAt = time.Now().Add(ttl)
	renewed, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, renewed, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, redisKey(token)).Err()
}
