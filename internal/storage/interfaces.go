package storage

import (
	"context"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/domain/conversation"
	"github.com/atriumhq/atrium/internal/domain/dashboard"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/domain/tenant"
)

// TenantStore persists tenant records. Deletes are soft; list and get exclude
// soft-deleted rows.
type TenantStore interface {
	CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error)
	GetTenant(ctx context.Context, id string) (tenant.Tenant, error)
	GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error)
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	DeleteTenant(ctx context.Context, id string) error
}

// ConversationStore persists conversations and their participants.
type ConversationStore interface {
	CreateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error)
	UpdateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error)
	GetConversation(ctx context.Context, id string) (conversation.Conversation, error)
	ListConversations(ctx context.Context, tenantID, userID string, includeArchived bool, limit int, before time.Time) ([]conversation.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error

	AddParticipant(ctx context.Context, p conversation.Participant) (conversation.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, userID string) error
	ListParticipants(ctx context.Context, conversationID string) ([]conversation.Participant, error)
}

// MessageStore persists messages and their per-recipient deliveries.
type MessageStore interface {
	CreateMessage(ctx context.Context, msg message.Message) (message.Message, error)
	GetMessage(ctx context.Context, id string) (message.Message, error)
	ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]message.Message, error)
	ListThread(ctx context.Context, rootID string) ([]message.Message, error)
	DeleteMessage(ctx context.Context, id string) error

	CreateDelivery(ctx context.Context, d message.Delivery) (message.Delivery, error)
	MarkDeliveryRead(ctx context.Context, messageID, recipientID string) (message.Delivery, error)
	ListDeliveries(ctx context.Context, messageID string) ([]message.Delivery, error)
}

// AttachmentStore persists attachment metadata.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, att attachment.Attachment) (attachment.Attachment, error)
	UpdateAttachment(ctx context.Context, att attachment.Attachment) (attachment.Attachment, error)
	GetAttachment(ctx context.Context, id string) (attachment.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
}

// NotificationStore persists per-user inbox entries.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error)
	GetNotification(ctx context.Context, id string) (notification.Notification, error)
	ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, limit int, before time.Time) ([]notification.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) (notification.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, tenantID, userID string) (int64, error)
	DismissNotification(ctx context.Context, id string) error
	CountUnread(ctx context.Context, tenantID, userID string) (int64, error)

	ListUndispatched(ctx context.Context, limit int) ([]notification.Notification, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
}

// DashboardStore persists dashboards, versions, and ACL entries.
//
// ListCandidates returns, for a (slug, tenant, user), only dashboards the
// caller can see: owned by the user, granted via the ACL, tenant-visible in
// the caller's tenant, or system. Results are ordered by visibility class
// (user, tenant with fork lineage, tenant, system) and newest-first within a
// class, capped at five rows.
type DashboardStore interface {
	CreateDashboard(ctx context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error)
	UpdateDashboard(ctx context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error)
	GetDashboard(ctx context.Context, id string) (dashboard.Dashboard, error)
	ListVisible(ctx context.Context, tenantID, userID string) ([]dashboard.Dashboard, error)
	ListCandidates(ctx context.Context, slug, tenantID, userID string) ([]dashboard.Dashboard, error)
	DeleteDashboard(ctx context.Context, id string) error

	CreateVersion(ctx context.Context, v dashboard.Version) (dashboard.Version, error)
	GetVersion(ctx context.Context, id string) (dashboard.Version, error)
	ListVersions(ctx context.Context, dashboardID string) ([]dashboard.Version, error)

	GrantACL(ctx context.Context, e dashboard.ACLEntry) (dashboard.ACLEntry, error)
	RevokeACL(ctx context.Context, entryID string) error
	ListACL(ctx context.Context, dashboardID string) ([]dashboard.ACLEntry, error)
}

// CandidateLimit caps the number of rows the candidate query may return.
const CandidateLimit = 5
