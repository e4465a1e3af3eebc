// Package notifications manages per-user inbox entries and their delivery to
// tenant webhooks.
package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/pkg/logger"
)

// unreadCountTTL bounds staleness of the cached unread counter when writes
// race the cache.
const unreadCountTTL = 5 * time.Minute

// Service implements the notification inbox. The Redis client is optional;
// without it unread counts always hit the database.
type Service struct {
	store storage.NotificationStore
	redis *redis.Client
	log   *logger.Logger
}

// New creates a notification service.
func New(store storage.NotificationStore, redisClient *redis.Client, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("notifications")
	}
	return &Service{store: store, redis: redisClient, log: log}
}

func unreadKey(tenantID, userID string) string {
	return fmt.Sprintf("unread:%s:%s", tenantID, userID)
}

// Create records an inbox entry for a user. Called by other services, not
// exposed over HTTP.
func (s *Service) Create(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if strings.TrimSpace(n.TenantID) == "" {
		return notification.Notification{}, errors.InvalidInput("tenant_id is required")
	}
	if strings.TrimSpace(n.UserID) == "" {
		return notification.Notification{}, errors.InvalidInput("user_id is required")
	}
	if strings.TrimSpace(n.Kind) == "" {
		return notification.Notification{}, errors.InvalidInput("kind is required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return notification.Notification{}, errors.InvalidInput("title is required")
	}

	created, err := s.store.CreateNotification(ctx, n)
	if err != nil {
		return notification.Notification{}, err
	}
	s.invalidateUnread(ctx, created.TenantID, created.UserID)
	return created, nil
}

// List returns a page of the caller's inbox, newest first.
func (s *Service) List(ctx context.Context, tenantID, userID string, unreadOnly bool, limit int, before time.Time) ([]notification.Notification, error) {
	return s.store.ListNotifications(ctx, tenantID, userID, unreadOnly, limit, before)
}

// UnreadCount returns the number of unread entries, served from the Redis
// counter when available.
func (s *Service) UnreadCount(ctx context.Context, tenantID, userID string) (int64, error) {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, unreadKey(tenantID, userID)).Int64(); err == nil {
			return cached, nil
		}
	}

	count, err := s.store.CountUnread(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}
	if s.redis != nil {
		if err := s.redis.Set(ctx, unreadKey(tenantID, userID), count, unreadCountTTL).Err(); err != nil {
			s.log.WithContext(ctx).WithError(err).Warn("Failed to cache unread count")
		}
	}
	return count, nil
}

// MarkRead marks one entry read. The caller must own the entry.
func (s *Service) MarkRead(ctx context.Context, tenantID, userID, id string) (notification.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	if n.TenantID != tenantID || n.UserID != userID {
		return notification.Notification{}, errors.NotFound("notification", id)
	}

	updated, err := s.store.MarkNotificationRead(ctx, id)
	if err != nil {
		return notification.Notification{}, err
	}
	s.invalidateUnread(ctx, tenantID, userID)
	return updated, nil
}

// MarkAllRead marks every unread entry in the caller's inbox read and returns
// how many were updated.
func (s *Service) MarkAllRead(ctx context.Context, tenantID, userID string) (int64, error) {
	updated, err := s.store.MarkAllNotificationsRead(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}
	s.invalidateUnread(ctx, tenantID, userID)
	return updated, nil
}

// Dismiss removes an entry from the inbox. The caller must own the entry.
func (s *Service) Dismiss(ctx context.Context, tenantID, userID, id string) error {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return err
	}
	if n.TenantID != tenantID || n.UserID != userID {
		return errors.NotFound("notification", id)
	}

	if err := s.store.DismissNotification(ctx, id); err != nil {
		return err
	}
	s.invalidateUnread(ctx, tenantID, userID)
	return nil
}

func (s *Service) invalidateUnread(ctx context.Context, tenantID, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, unreadKey(tenantID, userID)).Err(); err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("Failed to invalidate unread count")
	}
}
