package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/domain/conversation"
	"github.com/atriumhq/atrium/internal/domain/dashboard"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/domain/tenant"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	tenants       map[string]tenant.Tenant
	conversations map[string]conversation.Conversation
	participants  map[string][]conversation.Participant
	messages      map[string]message.Message
	deliveries    map[string][]message.Delivery
	attachments   map[string]attachment.Attachment
	notifications map[string]notification.Notification
	dashboards    map[string]dashboard.Dashboard
	versions      map[string]dashboard.Version
	aclEntries    map[string]dashboard.ACLEntry
}

var _ storage.TenantStore = (*Store)(nil)
var _ storage.ConversationStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.AttachmentStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DashboardStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:        1,
		tenants:       make(map[string]tenant.Tenant),
		conversations: make(map[string]conversation.Conversation),
		participants:  make(map[string][]conversation.Participant),
		messages:      make(map[string]message.Message),
		deliveries:    make(map[string][]message.Delivery),
		attachments:   make(map[string]attachment.Attachment),
		notifications: make(map[string]notification.Notification),
		dashboards:    make(map[string]dashboard.Dashboard),
		versions:      make(map[string]dashboard.Version),
		aclEntries:    make(map[string]dashboard.ACLEntry),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return strconv.FormatInt(id, 10)
}

// TenantStore implementation ---------------------------------------------------

func (s *Store) CreateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = s.nextIDLocked()
	} else if _, exists := s.tenants[t.ID]; exists {
		return tenant.Tenant{}, errors.AlreadyExists("tenant " + t.ID + " already exists")
	}
	for _, existing := range s.tenants {
		if existing.DeletedAt == nil && strings.EqualFold(existing.Slug, t.Slug) {
			return tenant.Tenant{}, errors.AlreadyExists("tenant slug " + t.Slug + " already exists")
		}
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Settings = cloneMap(t.Settings)

	s.tenants[t.ID] = t
	return cloneTenant(t), nil
}

func (s *Store) UpdateTenant(_ context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.tenants[t.ID]
	if !ok || original.DeletedAt != nil {
		return tenant.Tenant{}, errors.NotFound("tenant", t.ID)
	}

	t.CreatedAt = original.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.Settings = cloneMap(t.Settings)

	s.tenants[t.ID] = t
	return cloneTenant(t), nil
}

func (s *Store) GetTenant(_ context.Context, id string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	if !ok || t.DeletedAt != nil {
		return tenant.Tenant{}, errors.NotFound("tenant", id)
	}
	return cloneTenant(t), nil
}

func (s *Store) GetTenantBySlug(_ context.Context, slug string) (tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tenants {
		if t.DeletedAt == nil && strings.EqualFold(t.Slug, slug) {
			return cloneTenant(t), nil
		}
	}
	return tenant.Tenant{}, errors.NotFound("tenant", slug)
}

func (s *Store) ListTenants(_ context.Context) ([]tenant.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]tenant.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		if t.DeletedAt == nil {
			result = append(result, cloneTenant(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) DeleteTenant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tenants[id]
	if !ok || t.DeletedAt != nil {
		return errors.NotFound("tenant", id)
	}
	now := time.Now().UTC()
	t.DeletedAt = &now
	t.UpdatedAt = now
	s.tenants[id] = t
	return nil
}

// ConversationStore implementation ---------------------------------------------

func (s *Store) CreateConversation(_ context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = s.nextIDLocked()
	} else if _, exists := s.conversations[conv.ID]; exists {
		return conversation.Conversation{}, errors.AlreadyExists("conversation " + conv.ID + " already exists")
	}

	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *Store) UpdateConversation(_ context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.conversations[conv.ID]
	if !ok || original.DeletedAt != nil {
		return conversation.Conversation{}, errors.NotFound("conversation", conv.ID)
	}

	conv.TenantID = original.TenantID
	conv.CreatedBy = original.CreatedBy
	conv.CreatedAt = original.CreatedAt
	conv.UpdatedAt = time.Now().UTC()

	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok || conv.DeletedAt != nil {
		return conversation.Conversation{}, errors.NotFound("conversation", id)
	}
	return conv, nil
}

func (s *Store) ListConversations(_ context.Context, tenantID, userID string, includeArchived bool, limit int, before time.Time) ([]conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []conversation.Conversation
	for _, conv := range s.conversations {
		if conv.DeletedAt != nil || conv.TenantID != tenantID {
			continue
		}
		if !includeArchived && conv.Archived {
			continue
		}
		if !before.IsZero() && !conv.CreatedAt.Before(before) {
			continue
		}
		if !s.isParticipantLocked(conv.ID, userID) {
			continue
		}
		result = append(result, conv)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok || conv.DeletedAt != nil {
		return errors.NotFound("conversation", id)
	}
	now := time.Now().UTC()
	conv.DeletedAt = &now
	conv.UpdatedAt = now
	s.conversations[id] = conv
	return nil
}

func (s *Store) AddParticipant(_ context.Context, p conversation.Participant) (conversation.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[p.ConversationID]
	if !ok || conv.DeletedAt != nil {
		return conversation.Participant{}, errors.NotFound("conversation", p.ConversationID)
	}
	for _, existing := range s.participants[p.ConversationID] {
		if existing.UserID == p.UserID {
			return conversation.Participant{}, errors.AlreadyExists("user " + p.UserID + " already participates")
		}
	}

	if p.ID == "" {
		p.ID = s.nextIDLocked()
	}
	p.JoinedAt = time.Now().UTC()
	s.participants[p.ConversationID] = append(s.participants[p.ConversationID], p)
	return p, nil
}

func (s *Store) RemoveParticipant(_ context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.participants[conversationID]
	for i, p := range list {
		if p.UserID == userID {
			s.participants[conversationID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("participant", userID)
}

func (s *Store) ListParticipants(_ context.Context, conversationID string) ([]conversation.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.participants[conversationID]
	result := make([]conversation.Participant, len(list))
	copy(result, list)
	sort.Slice(result, func(i, j int) bool { return result[i].JoinedAt.Before(result[j].JoinedAt) })
	return result, nil
}

func (s *Store) isParticipantLocked(conversationID, userID string) bool {
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// MessageStore implementation --------------------------------------------------

func (s *Store) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = s.nextIDLocked()
	} else if _, exists := s.messages[msg.ID]; exists {
		return message.Message{}, errors.AlreadyExists("message " + msg.ID + " already exists")
	}

	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.AttachmentIDs = append([]string(nil), msg.AttachmentIDs...)

	s.messages[msg.ID] = msg
	return cloneMessage(msg), nil
}

func (s *Store) GetMessage(_ context.Context, id string) (message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok || msg.DeletedAt != nil {
		return message.Message{}, errors.NotFound("message", id)
	}
	return cloneMessage(msg), nil
}

func (s *Store) ListMessages(_ context.Context, conversationID string, before time.Time, limit int) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []message.Message
	for _, msg := range s.messages {
		if msg.DeletedAt != nil || msg.ConversationID != conversationID {
			continue
		}
		if !before.IsZero() && !msg.CreatedAt.Before(before) {
			continue
		}
		result = append(result, cloneMessage(msg))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListThread(_ context.Context, rootID string) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	root, ok := s.messages[rootID]
	if !ok || root.DeletedAt != nil {
		return nil, errors.NotFound("message", rootID)
	}

	result := []message.Message{cloneMessage(root)}
	var replies []message.Message
	for _, msg := range s.messages {
		if msg.DeletedAt != nil || msg.ParentID == nil || *msg.ParentID != rootID {
			continue
		}
		replies = append(replies, cloneMessage(msg))
	}
	sort.Slice(replies, func(i, j int) bool {
		if replies[i].CreatedAt.Equal(replies[j].CreatedAt) {
			return replies[i].ID < replies[j].ID
		}
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return append(result, replies...), nil
}

func (s *Store) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.DeletedAt != nil {
		return errors.NotFound("message", id)
	}
	now := time.Now().UTC()
	msg.DeletedAt = &now
	msg.UpdatedAt = now
	s.messages[id] = msg
	return nil
}

func (s *Store) CreateDelivery(_ context.Context, d message.Delivery) (message.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[d.MessageID]; !ok {
		return message.Delivery{}, errors.NotFound("message", d.MessageID)
	}
	for _, existing := range s.deliveries[d.MessageID] {
		if existing.RecipientID == d.RecipientID {
			return message.Delivery{}, errors.AlreadyExists("delivery for recipient " + d.RecipientID + " already exists")
		}
	}

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
	s.deliveries[d.MessageID] = append(s.deliveries[d.MessageID], d)
	return d, nil
}

func (s *Store) MarkDeliveryRead(_ context.Context, messageID, recipientID string) (message.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.deliveries[messageID]
	for i, d := range list {
		if d.RecipientID == recipientID {
			if d.ReadAt == nil {
				now := time.Now().UTC()
				d.ReadAt = &now
				list[i] = d
			}
			return d, nil
		}
	}
	return message.Delivery{}, errors.NotFound("delivery", messageID+"/"+recipientID)
}

func (s *Store) ListDeliveries(_ context.Context, messageID string) ([]message.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.deliveries[messageID]
	result := make([]message.Delivery, len(list))
	copy(result, list)
	return result, nil
}

// AttachmentStore implementation -----------------------------------------------

func (s *Store) CreateAttachment(_ context.Context, att attachment.Attachment) (attachment.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if att.ID == "" {
		att.ID = s.nextIDLocked()
	} else if _, exists := s.attachments[att.ID]; exists {
		return attachment.Attachment{}, errors.AlreadyExists("attachment " + att.ID + " already exists")
	}

	now := time.Now().UTC()
	att.CreatedAt = now
	att.UpdatedAt = now

	s.attachments[att.ID] = att
	return att, nil
}

func (s *Store) UpdateAttachment(_ context.Context, att attachment.Attachment) (attachment.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.attachments[att.ID]
	if !ok || original.DeletedAt != nil {
		return attachment.Attachment{}, errors.NotFound("attachment", att.ID)
	}

	att.TenantID = original.TenantID
	att.OwnerID = original.OwnerID
	att.CreatedAt = original.CreatedAt
	att.UpdatedAt = time.Now().UTC()

	s.attachments[att.ID] = att
	return att, nil
}

func (s *Store) GetAttachment(_ context.Context, id string) (attachment.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	att, ok := s.attachments[id]
	if !ok || att.DeletedAt != nil {
		return attachment.Attachment{}, errors.NotFound("attachment", id)
	}
	return att, nil
}

func (s *Store) DeleteAttachment(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	att, ok := s.attachments[id]
	if !ok || att.DeletedAt != nil {
		return errors.NotFound("attachment", id)
	}
	now := time.Now().UTC()
	att.DeletedAt = &now
	att.UpdatedAt = now
	s.attachments[id] = att
	return nil
}

// NotificationStore implementation ---------------------------------------------

func (s *Store) CreateNotification(_ context.Context, n notification.Notification) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = s.nextIDLocked()
	} else if _, exists := s.notifications[n.ID]; exists {
		return notification.Notification{}, errors.AlreadyExists("notification " + n.ID + " already exists")
	}

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications[n.ID] = n
	return cloneNotification(n), nil
}

func (s *Store) GetNotification(_ context.Context, id string) (notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok || n.DismissedAt != nil {
		return notification.Notification{}, errors.NotFound("notification", id)
	}
	return cloneNotification(n), nil
}

func (s *Store) ListNotifications(_ context.Context, tenantID, userID string, unreadOnly bool, limit int, before time.Time) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.DismissedAt != nil || n.TenantID != tenantID || n.UserID != userID {
			continue
		}
		if unreadOnly && n.ReadAt != nil {
			continue
		}
		if !before.IsZero() && !n.CreatedAt.Before(before) {
			continue
		}
		result = append(result, cloneNotification(n))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) (notification.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.DismissedAt != nil {
		return notification.Notification{}, errors.NotFound("notification", id)
	}
	if n.ReadAt == nil {
		now := time.Now().UTC()
		n.ReadAt = &now
		s.notifications[id] = n
	}
	return cloneNotification(n), nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, tenantID, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var count int64
	for id, n := range s.notifications {
		if n.DismissedAt != nil || n.TenantID != tenantID || n.UserID != userID || n.ReadAt != nil {
			continue
		}
		n.ReadAt = &now
		s.notifications[id] = n
		count++
	}
	return count, nil
}

func (s *Store) DismissNotification(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok || n.DismissedAt != nil {
		return errors.NotFound("notification", id)
	}
	now := time.Now().UTC()
	n.DismissedAt = &now
	s.notifications[id] = n
	return nil
}

func (s *Store) CountUnread(_ context.Context, tenantID, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, n := range s.notifications {
		if n.DismissedAt == nil && n.TenantID == tenantID && n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListUndispatched(_ context.Context, limit int) ([]notification.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []notification.Notification
	for _, n := range s.notifications {
		if n.DismissedAt == nil && n.DispatchedAt == nil {
			result = append(result, cloneNotification(n))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkDispatched(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return errors.NotFound("notification", id)
	}
	at = at.UTC()
	n.DispatchedAt = &at
	s.notifications[id] = n
	return nil
}

// DashboardStore implementation ------------------------------------------------

func (s *Store) CreateDashboard(_ context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = s.nextIDLocked()
	} else if _, exists := s.dashboards[d.ID]; exists {
		return dashboard.Dashboard{}, errors.AlreadyExists("dashboard " + d.ID + " already exists")
	}
	for _, existing := range s.dashboards {
		if existing.DeletedAt != nil || !strings.EqualFold(existing.Slug, d.Slug) {
			continue
		}
		// Slug unique per scope: owner for user dashboards, tenant for
		// tenant dashboards, global for system dashboards.
		if sameScope(existing, d) {
			return dashboard.Dashboard{}, errors.AlreadyExists("dashboard slug " + d.Slug + " already exists in scope")
		}
	}

	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	s.dashboards[d.ID] = d
	return cloneDashboard(d), nil
}

func sameScope(a, b dashboard.Dashboard) bool {
	if a.Visibility != b.Visibility {
		return false
	}
	switch a.Visibility {
	case dashboard.VisibilityUser:
		return strptrEq(a.OwnerID, b.OwnerID) && strptrEq(a.TenantID, b.TenantID)
	case dashboard.VisibilityTenant:
		return strptrEq(a.TenantID, b.TenantID)
	default:
		return true
	}
}

func strptrEq(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *Store) UpdateDashboard(_ context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.dashboards[d.ID]
	if !ok || original.DeletedAt != nil {
		return dashboard.Dashboard{}, errors.NotFound("dashboard", d.ID)
	}

	d.TenantID = original.TenantID
	d.OwnerID = original.OwnerID
	d.Slug = original.Slug
	d.ForkedFromID = original.ForkedFromID
	d.CreatedAt = original.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	s.dashboards[d.ID] = d
	return cloneDashboard(d), nil
}

func (s *Store) GetDashboard(_ context.Context, id string) (dashboard.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.dashboards[id]
	if !ok || d.DeletedAt != nil {
		return dashboard.Dashboard{}, errors.NotFound("dashboard", id)
	}
	return cloneDashboard(d), nil
}

func (s *Store) ListVisible(_ context.Context, tenantID, userID string) ([]dashboard.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []dashboard.Dashboard
	for _, d := range s.dashboards {
		if d.DeletedAt != nil || !s.visibleToLocked(d, tenantID, userID) {
			continue
		}
		result = append(result, cloneDashboard(d))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slug != result[j].Slug {
			return result[i].Slug < result[j].Slug
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListCandidates mirrors the SQL candidate query: visible dashboards for the
// slug, ordered by visibility class and newest-first within a class, capped
// at storage.CandidateLimit.
func (s *Store) ListCandidates(_ context.Context, slug, tenantID, userID string) ([]dashboard.Dashboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []dashboard.Dashboard
	for _, d := range s.dashboards {
		if d.DeletedAt != nil || !strings.EqualFold(d.Slug, slug) {
			continue
		}
		if !s.visibleToLocked(d, tenantID, userID) {
			continue
		}
		result = append(result, cloneDashboard(d))
	}

	rank := func(d dashboard.Dashboard) int {
		switch {
		case d.Visibility == dashboard.VisibilityUser:
			return 0
		case d.Visibility == dashboard.VisibilityTenant && d.ForkedFromID != nil:
			return 1
		case d.Visibility == dashboard.VisibilityTenant:
			return 2
		default:
			return 3
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ri, rj := rank(result[i]), rank(result[j])
		if ri != rj {
			return ri < rj
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > storage.CandidateLimit {
		result = result[:storage.CandidateLimit]
	}
	return result, nil
}

func (s *Store) visibleToLocked(d dashboard.Dashboard, tenantID, userID string) bool {
	switch d.Visibility {
	case dashboard.VisibilitySystem:
		return true
	case dashboard.VisibilityTenant:
		return d.TenantID != nil && *d.TenantID == tenantID
	case dashboard.VisibilityUser:
		if d.OwnerID != nil && *d.OwnerID == userID {
			return true
		}
		for _, e := range s.aclEntries {
			if e.DashboardID != d.ID {
				continue
			}
			if e.GranteeType == dashboard.GranteeUser && e.GranteeID == userID {
				return true
			}
			if e.GranteeType == dashboard.GranteeTenant && e.GranteeID == tenantID {
				return true
			}
		}
	}
	return false
}

func (s *Store) DeleteDashboard(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dashboards[id]
	if !ok || d.DeletedAt != nil {
		return errors.NotFound("dashboard", id)
	}
	now := time.Now().UTC()
	d.DeletedAt = &now
	d.UpdatedAt = now
	s.dashboards[id] = d
	return nil
}

func (s *Store) CreateVersion(_ context.Context, v dashboard.Version) (dashboard.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dashboards[v.DashboardID]
	if !ok || d.DeletedAt != nil {
		return dashboard.Version{}, errors.NotFound("dashboard", v.DashboardID)
	}

	if v.ID == "" {
		v.ID = s.nextIDLocked()
	}
	if v.Number == 0 {
		highest := 0
		for _, existing := range s.versions {
			if existing.DashboardID == v.DashboardID && existing.Number > highest {
				highest = existing.Number
			}
		}
		v.Number = highest + 1
	}
	v.CreatedAt = time.Now().UTC()
	v.Layout = append([]byte(nil), v.Layout...)

	s.versions[v.ID] = v

	d.ActiveVersionID = &v.ID
	d.UpdatedAt = v.CreatedAt
	s.dashboards[d.ID] = d

	return cloneVersion(v), nil
}

func (s *Store) GetVersion(_ context.Context, id string) (dashboard.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.versions[id]
	if !ok {
		return dashboard.Version{}, errors.NotFound("dashboard version", id)
	}
	return cloneVersion(v), nil
}

func (s *Store) ListVersions(_ context.Context, dashboardID string) ([]dashboard.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []dashboard.Version
	for _, v := range s.versions {
		if v.DashboardID == dashboardID {
			result = append(result, cloneVersion(v))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number > result[j].Number })
	return result, nil
}

func (s *Store) GrantACL(_ context.Context, e dashboard.ACLEntry) (dashboard.ACLEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.dashboards[e.DashboardID]
	if !ok || d.DeletedAt != nil {
		return dashboard.ACLEntry{}, errors.NotFound("dashboard", e.DashboardID)
	}
	for _, existing := range s.aclEntries {
		if existing.DashboardID == e.DashboardID && existing.GranteeType == e.GranteeType && existing.GranteeID == e.GranteeID {
			return dashboard.ACLEntry{}, errors.AlreadyExists("acl grant already exists")
		}
	}

	if e.ID == "" {
		e.ID = s.nextIDLocked()
	}
	e.CreatedAt = time.Now().UTC()
	s.aclEntries[e.ID] = e
	return e, nil
}

func (s *Store) RevokeACL(_ context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.aclEntries[entryID]; !ok {
		return errors.NotFound("acl entry", entryID)
	}
	delete(s.aclEntries, entryID)
	return nil
}

func (s *Store) ListACL(_ context.Context, dashboardID string) ([]dashboard.ACLEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []dashboard.ACLEntry
	for _, e := range s.aclEntries {
		if e.DashboardID == dashboardID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// clone helpers ----------------------------------------------------------------

func cloneMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneTenant(t tenant.Tenant) tenant.Tenant {
	t.Settings = cloneMap(t.Settings)
	return t
}

func cloneMessage(m message.Message) message.Message {
	m.AttachmentIDs = append([]string(nil), m.AttachmentIDs...)
	return m
}

func cloneNotification(n notification.Notification) notification.Notification {
	return n
}

func cloneDashboard(d dashboard.Dashboard) dashboard.Dashboard {
	return d
}

func cloneVersion(v dashboard.Version) dashboard.Version {
	v.Layout = append([]byte(nil), v.Layout...)
	return v
}
