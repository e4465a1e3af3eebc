package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/domain/conversation"
	"github.com/atriumhq/atrium/internal/domain/dashboard"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/domain/tenant"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/storage"
)

// Store implements the storage interfaces backed by PostgreSQL. Invariants
// (uniqueness, referential integrity) are enforced by the schema; violations
// surface as typed service errors via mapError.
type Store struct {
	db *sqlx.DB
}

var _ storage.TenantStore = (*Store)(nil)
var _ storage.ConversationStore = (*Store)(nil)
var _ storage.MessageStore = (*Store)(nil)
var _ storage.AttachmentStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DashboardStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// mapError converts driver errors into service errors. Unique violations map
// to already_exists, foreign key violations to invalid_input, and missing
// rows to not_found.
func mapError(err error, resource, id string) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NotFound(resource, id)
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return errors.AlreadyExists(resource + " already exists").WithDetails("constraint", pqErr.Constraint)
		case "23503":
			return errors.InvalidInput("invalid reference for " + resource).WithDetails("constraint", pqErr.Constraint)
		case "23514":
			return errors.InvalidInput("constraint violation for " + resource).WithDetails("constraint", pqErr.Constraint)
		}
	}
	return err
}

// --- TenantStore ------------------------------------------------------------

func (s *Store) CreateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return tenant.Tenant{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, webhook_url, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Name, t.Slug, t.WebhookURL, settingsJSON, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return tenant.Tenant{}, mapError(err, "tenant", t.ID)
	}
	return t, nil
}

func (s *Store) UpdateTenant(ctx context.Context, t tenant.Tenant) (tenant.Tenant, error) {
	existing, err := s.GetTenant(ctx, t.ID)
	if err != nil {
		return tenant.Tenant{}, err
	}

	t.Slug = existing.Slug
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()

	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return tenant.Tenant{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants
		SET name = $2, webhook_url = $3, settings = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`, t.ID, t.Name, t.WebhookURL, settingsJSON, t.UpdatedAt)
	if err != nil {
		return tenant.Tenant{}, mapError(err, "tenant", t.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return tenant.Tenant{}, errors.NotFound("tenant", t.ID)
	}
	return t, nil
}

const tenantColumns = `id, name, slug, webhook_url, settings, created_at, updated_at, deleted_at`

func scanTenant(row interface{ Scan(...interface{}) error }) (tenant.Tenant, error) {
	var (
		t           tenant.Tenant
		settingsRaw []byte
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.WebhookURL, &settingsRaw, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
		return tenant.Tenant{}, err
	}
	if len(settingsRaw) > 0 {
		_ = json.Unmarshal(settingsRaw, &t.Settings)
	}
	return t, nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (tenant.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	t, err := scanTenant(row)
	if err != nil {
		return tenant.Tenant{}, mapError(err, "tenant", id)
	}
	return t, nil
}

func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE lower(slug) = lower($1) AND deleted_at IS NULL
	`, slug)

	t, err := scanTenant(row)
	if err != nil {
		return tenant.Tenant{}, mapError(err, "tenant", slug)
	}
	return t, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+tenantColumns+`
		FROM tenants
		WHERE deleted_at IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []tenant.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *Store) DeleteTenant(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tenants SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "tenant", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("tenant", id)
	}
	return nil
}

// --- ConversationStore ------------------------------------------------------

func (s *Store) CreateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, tenant_id, subject, created_by, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, conv.ID, conv.TenantID, conv.Subject, conv.CreatedBy, conv.Archived, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return conversation.Conversation{}, mapError(err, "conversation", conv.ID)
	}
	return conv, nil
}

func (s *Store) UpdateConversation(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	existing, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		return conversation.Conversation{}, err
	}

	conv.TenantID = existing.TenantID
	conv.CreatedBy = existing.CreatedBy
	conv.CreatedAt = existing.CreatedAt
	conv.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET subject = $2, archived = $3, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
	`, conv.ID, conv.Subject, conv.Archived, conv.UpdatedAt)
	if err != nil {
		return conversation.Conversation{}, mapError(err, "conversation", conv.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return conversation.Conversation{}, errors.NotFound("conversation", conv.ID)
	}
	return conv, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (conversation.Conversation, error) {
	var conv conversation.Conversation
	err := s.db.GetContext(ctx, &conv, `
		SELECT id, tenant_id, subject, created_by, archived, created_at, updated_at, deleted_at
		FROM conversations
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return conversation.Conversation{}, mapError(err, "conversation", id)
	}
	return conv, nil
}

func (s *Store) ListConversations(ctx context.Context, tenantID, userID string, includeArchived bool, limit int, before time.Time) ([]conversation.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	var beforeArg interface{}
	if !before.IsZero() {
		beforeArg = before.UTC()
	}

	var result []conversation.Conversation
	err := s.db.SelectContext(ctx, &result, `
		SELECT c.id, c.tenant_id, c.subject, c.created_by, c.archived, c.created_at, c.updated_at, c.deleted_at
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.id
		WHERE c.tenant_id = $1
		  AND p.user_id = $2
		  AND c.deleted_at IS NULL
		  AND ($3 OR NOT c.archived)
		  AND ($4::timestamptz IS NULL OR c.created_at < $4)
		ORDER BY c.created_at DESC
		LIMIT $5
	`, tenantID, userID, includeArchived, beforeArg, limit)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "conversation", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("conversation", id)
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p conversation.Participant) (conversation.Participant, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.JoinedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_participants (id, conversation_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.ConversationID, p.UserID, p.Role, p.JoinedAt)
	if err != nil {
		return conversation.Participant{}, mapError(err, "participant", p.UserID)
	}
	return p, nil
}

func (s *Store) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM conversation_participants
		WHERE conversation_id = $1 AND user_id = $2
	`, conversationID, userID)
	if err != nil {
		return mapError(err, "participant", userID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("participant", userID)
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, conversationID string) ([]conversation.Participant, error) {
	var result []conversation.Participant
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, conversation_id, user_id, role, joined_at
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at
	`, conversationID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- MessageStore -----------------------------------------------------------

const messageColumns = `id, tenant_id, conversation_id, sender_id, parent_id, body, attachment_ids, created_at, updated_at, deleted_at`

func scanMessage(row interface{ Scan(...interface{}) error }) (message.Message, error) {
	var (
		msg            message.Message
		attachmentsRaw []byte
	)
	if err := row.Scan(&msg.ID, &msg.TenantID, &msg.ConversationID, &msg.SenderID, &msg.ParentID,
		&msg.Body, &attachmentsRaw, &msg.CreatedAt, &msg.UpdatedAt, &msg.DeletedAt); err != nil {
		return message.Message{}, err
	}
	if len(attachmentsRaw) > 0 {
		_ = json.Unmarshal(attachmentsRaw, &msg.AttachmentIDs)
	}
	return msg, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now

	attachmentsJSON, err := json.Marshal(msg.AttachmentIDs)
	if err != nil {
		return message.Message{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, tenant_id, conversation_id, sender_id, parent_id, body, attachment_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.TenantID, msg.ConversationID, msg.SenderID, msg.ParentID, msg.Body, attachmentsJSON, msg.CreatedAt, msg.UpdatedAt)
	if err != nil {
		return message.Message{}, mapError(err, "message", msg.ID)
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (message.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1 AND deleted_at IS NULL
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		return message.Message{}, mapError(err, "message", id)
	}
	return msg, nil
}

func (s *Store) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var beforeArg interface{}
	if !before.IsZero() {
		beforeArg = before.UTC()
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		  AND deleted_at IS NULL
		  AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, conversationID, beforeArg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *Store) ListThread(ctx context.Context, rootID string) ([]message.Message, error) {
	root, err := s.GetMessage(ctx, rootID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE parent_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id
	`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []message.Message{root}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE messages SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "message", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("message", id)
	}
	return nil
}

func (s *Store) CreateDelivery(ctx context.Context, d message.Delivery) (message.Delivery, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_deliveries (id, message_id, recipient_id, delivered_at)
		VALUES ($1, $2, $3, $4)
	`, d.ID, d.MessageID, d.RecipientID, d.DeliveredAt)
	if err != nil {
		return message.Delivery{}, mapError(err, "delivery", d.MessageID)
	}
	return d, nil
}

func (s *Store) MarkDeliveryRead(ctx context.Context, messageID, recipientID string) (message.Delivery, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE message_deliveries SET read_at = now()
		WHERE message_id = $1 AND recipient_id = $2 AND read_at IS NULL
	`, messageID, recipientID)
	if err != nil {
		return message.Delivery{}, mapError(err, "delivery", messageID)
	}

	var d message.Delivery
	err = s.db.GetContext(ctx, &d, `
		SELECT id, message_id, recipient_id, delivered_at, read_at
		FROM message_deliveries
		WHERE message_id = $1 AND recipient_id = $2
	`, messageID, recipientID)
	if err != nil {
		return message.Delivery{}, mapError(err, "delivery", messageID+"/"+recipientID)
	}
	return d, nil
}

func (s *Store) ListDeliveries(ctx context.Context, messageID string) ([]message.Delivery, error) {
	var result []message.Delivery
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, message_id, recipient_id, delivered_at, read_at
		FROM message_deliveries
		WHERE message_id = $1
		ORDER BY delivered_at
	`, messageID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// --- AttachmentStore --------------------------------------------------------

func (s *Store) CreateAttachment(ctx context.Context, att attachment.Attachment) (attachment.Attachment, error) {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	att.CreatedAt = now
	att.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, tenant_id, conversation_id, owner_id, file_name, content_type, size_bytes, object_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, att.ID, att.TenantID, att.ConversationID, att.OwnerID, att.FileName, att.ContentType, att.SizeBytes, att.ObjectKey, att.Status, att.CreatedAt, att.UpdatedAt)
	if err != nil {
		return attachment.Attachment{}, mapError(err, "attachment", att.ID)
	}
	return att, nil
}

func (s *Store) UpdateAttachment(ctx context.Context, att attachment.Attachment) (attachment.Attachment, error) {
	existing, err := s.GetAttachment(ctx, att.ID)
	if err != nil {
		return attachment.Attachment{}, err
	}

	att.TenantID = existing.TenantID
	att.OwnerID = existing.OwnerID
	att.CreatedAt = existing.CreatedAt
	att.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE attachments
		SET conversation_id = $2, file_name = $3, content_type = $4, size_bytes = $5, status = $6, updated_at = $7
		WHERE id = $1 AND deleted_at IS NULL
	`, att.ID, att.ConversationID, att.FileName, att.ContentType, att.SizeBytes, att.Status, att.UpdatedAt)
	if err != nil {
		return attachment.Attachment{}, mapError(err, "attachment", att.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return attachment.Attachment{}, errors.NotFound("attachment", att.ID)
	}
	return att, nil
}

func (s *Store) GetAttachment(ctx context.Context, id string) (attachment.Attachment, error) {
	var att attachment.Attachment
	err := s.db.GetContext(ctx, &att, `
		SELECT id, tenant_id, conversation_id, owner_id, file_name, content_type, size_bytes, object_key, status, created_at, updated_at, deleted_at
		FROM attachments
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return attachment.Attachment{}, mapError(err, "attachment", id)
	}
	return att, nil
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE attachments SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "attachment", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("attachment", id)
	}
	return nil
}

// --- NotificationStore ------------------------------------------------------

func (s *Store) CreateNotification(ctx context.Context, n notification.Notification) (notification.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, tenant_id, user_id, kind, title, body, resource_type, resource_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.ID, n.TenantID, n.UserID, n.Kind, n.Title, n.Body, n.ResourceType, n.ResourceID, n.CreatedAt)
	if err != nil {
		return notification.Notification{}, mapError(err, "notification", n.ID)
	}
	return n, nil
}

const notificationColumns = `id, tenant_id, user_id, kind, title, body, resource_type, resource_id, read_at, dismissed_at, dispatched_at, created_at`

func (s *Store) GetNotification(ctx context.Context, id string) (notification.Notification, error) {
	var n notification.Notification
	err := s.db.GetContext(ctx, &n, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1 AND dismissed_at IS NULL
	`, id)
	if err != nil {
		return notification.Notification{}, mapError(err, "notification", id)
	}
	return n, nil
}

func (s *Store) ListNotifications(ctx context.Context, tenantID, userID string, unreadOnly bool, limit int, before time.Time) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var beforeArg interface{}
	if !before.IsZero() {
		beforeArg = before.UTC()
	}

	var result []notification.Notification
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE tenant_id = $1
		  AND user_id = $2
		  AND dismissed_at IS NULL
		  AND (NOT $3 OR read_at IS NULL)
		  AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, id DESC
		LIMIT $5
	`, tenantID, userID, unreadOnly, beforeArg, limit)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) (notification.Notification, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE id = $1 AND dismissed_at IS NULL AND read_at IS NULL
	`, id)
	if err != nil {
		return notification.Notification{}, mapError(err, "notification", id)
	}
	return s.GetNotification(ctx, id)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, tenantID, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = now()
		WHERE tenant_id = $1 AND user_id = $2 AND dismissed_at IS NULL AND read_at IS NULL
	`, tenantID, userID)
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) DismissNotification(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET dismissed_at = now()
		WHERE id = $1 AND dismissed_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "notification", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("notification", id)
	}
	return nil
}

func (s *Store) CountUnread(ctx context.Context, tenantID, userID string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT count(*)
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2 AND dismissed_at IS NULL AND read_at IS NULL
	`, tenantID, userID)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListUndispatched(ctx context.Context, limit int) ([]notification.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	var result []notification.Notification
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE dismissed_at IS NULL AND dispatched_at IS NULL
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET dispatched_at = $2
		WHERE id = $1
	`, id, at.UTC())
	if err != nil {
		return mapError(err, "notification", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("notification", id)
	}
	return nil
}

// --- DashboardStore ---------------------------------------------------------

const dashboardColumns = `id, tenant_id, owner_id, slug, title, visibility, forked_from_id, active_version_id, created_at, updated_at, deleted_at`

func (s *Store) CreateDashboard(ctx context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboards (id, tenant_id, owner_id, slug, title, visibility, forked_from_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.TenantID, d.OwnerID, d.Slug, d.Title, d.Visibility, d.ForkedFromID, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return dashboard.Dashboard{}, mapError(err, "dashboard", d.ID)
	}
	return d, nil
}

func (s *Store) UpdateDashboard(ctx context.Context, d dashboard.Dashboard) (dashboard.Dashboard, error) {
	existing, err := s.GetDashboard(ctx, d.ID)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	d.TenantID = existing.TenantID
	d.OwnerID = existing.OwnerID
	d.Slug = existing.Slug
	d.ForkedFromID = existing.ForkedFromID
	d.CreatedAt = existing.CreatedAt
	d.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE dashboards
		SET title = $2, visibility = $3, active_version_id = $4, updated_at = $5
		WHERE id = $1 AND deleted_at IS NULL
	`, d.ID, d.Title, d.Visibility, d.ActiveVersionID, d.UpdatedAt)
	if err != nil {
		return dashboard.Dashboard{}, mapError(err, "dashboard", d.ID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dashboard.Dashboard{}, errors.NotFound("dashboard", d.ID)
	}
	return d, nil
}

func (s *Store) GetDashboard(ctx context.Context, id string) (dashboard.Dashboard, error) {
	var d dashboard.Dashboard
	err := s.db.GetContext(ctx, &d, `
		SELECT `+dashboardColumns+`
		FROM dashboards
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return dashboard.Dashboard{}, mapError(err, "dashboard", id)
	}
	return d, nil
}

const dashboardVisiblePredicate = `
	d.deleted_at IS NULL
	AND (
		d.visibility = 'system'
		OR (d.visibility = 'tenant' AND d.tenant_id = $1)
		OR (d.visibility = 'user' AND (
			d.owner_id = $2
			OR EXISTS (
				SELECT 1 FROM dashboard_acl a
				WHERE a.dashboard_id = d.id
				  AND ((a.grantee_type = 'user' AND a.grantee_id = $2)
				    OR (a.grantee_type = 'tenant' AND a.grantee_id = $1))
			)
		))
	)`

func (s *Store) ListVisible(ctx context.Context, tenantID, userID string) ([]dashboard.Dashboard, error) {
	var result []dashboard.Dashboard
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+prefixedDashboardColumns+`
		FROM dashboards d
		WHERE `+dashboardVisiblePredicate+`
		ORDER BY d.slug, d.created_at DESC
	`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

const prefixedDashboardColumns = `d.id, d.tenant_id, d.owner_id, d.slug, d.title, d.visibility, d.forked_from_id, d.active_version_id, d.created_at, d.updated_at, d.deleted_at`

// ListCandidates is the resolution candidate query: visible dashboards for
// the slug, ordered by visibility class then recency, capped at five rows so
// the resolver scans a bounded list.
func (s *Store) ListCandidates(ctx context.Context, slug, tenantID, userID string) ([]dashboard.Dashboard, error) {
	var result []dashboard.Dashboard
	err := s.db.SelectContext(ctx, &result, `
		SELECT `+prefixedDashboardColumns+`
		FROM dashboards d
		WHERE lower(d.slug) = lower($3)
		  AND `+dashboardVisiblePredicate+`
		ORDER BY CASE
			WHEN d.visibility = 'user' THEN 0
			WHEN d.visibility = 'tenant' AND d.forked_from_id IS NOT NULL THEN 1
			WHEN d.visibility = 'tenant' THEN 2
			ELSE 3
		END, d.created_at DESC
		LIMIT `+candidateLimit+`
	`, tenantID, userID, slug)
	if err != nil {
		return nil, err
	}
	return result, nil
}

const candidateLimit = "5"

func (s *Store) DeleteDashboard(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE dashboards SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return mapError(err, "dashboard", id)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("dashboard", id)
	}
	return nil
}

// CreateVersion inserts the next version for a dashboard and promotes it to
// the active version in the same transaction.
func (s *Store) CreateVersion(ctx context.Context, v dashboard.Version) (dashboard.Version, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.CreatedAt = time.Now().UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return dashboard.Version{}, err
	}
	defer tx.Rollback()

	if v.Number == 0 {
		err = tx.GetContext(ctx, &v.Number, `
			SELECT COALESCE(MAX(number), 0) + 1
			FROM dashboard_versions
			WHERE dashboard_id = $1
		`, v.DashboardID)
		if err != nil {
			return dashboard.Version{}, mapError(err, "dashboard", v.DashboardID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO dashboard_versions (id, dashboard_id, number, layout, comment, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.DashboardID, v.Number, []byte(v.Layout), v.Comment, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return dashboard.Version{}, mapError(err, "dashboard version", v.ID)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE dashboards SET active_version_id = $2, updated_at = $3
		WHERE id = $1 AND deleted_at IS NULL
	`, v.DashboardID, v.ID, v.CreatedAt)
	if err != nil {
		return dashboard.Version{}, mapError(err, "dashboard", v.DashboardID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return dashboard.Version{}, errors.NotFound("dashboard", v.DashboardID)
	}

	if err := tx.Commit(); err != nil {
		return dashboard.Version{}, err
	}
	return v, nil
}

func (s *Store) GetVersion(ctx context.Context, id string) (dashboard.Version, error) {
	var v dashboard.Version
	err := s.db.GetContext(ctx, &v, `
		SELECT id, dashboard_id, number, layout, comment, created_by, created_at
		FROM dashboard_versions
		WHERE id = $1
	`, id)
	if err != nil {
		return dashboard.Version{}, mapError(err, "dashboard version", id)
	}
	return v, nil
}

func (s *Store) ListVersions(ctx context.Context, dashboardID string) ([]dashboard.Version, error) {
	var result []dashboard.Version
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, dashboard_id, number, layout, comment, created_by, created_at
		FROM dashboard_versions
		WHERE dashboard_id = $1
		ORDER BY number DESC
	`, dashboardID)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GrantACL(ctx context.Context, e dashboard.ACLEntry) (dashboard.ACLEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dashboard_acl (id, dashboard_id, grantee_type, grantee_id, level, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.DashboardID, e.GranteeType, e.GranteeID, e.Level, e.CreatedAt)
	if err != nil {
		return dashboard.ACLEntry{}, mapError(err, "acl entry", e.ID)
	}
	return e, nil
}

func (s *Store) RevokeACL(ctx context.Context, entryID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dashboard_acl WHERE id = $1
	`, entryID)
	if err != nil {
		return mapError(err, "acl entry", entryID)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.NotFound("acl entry", entryID)
	}
	return nil
}

func (s *Store) ListACL(ctx context.Context, dashboardID string) ([]dashboard.ACLEntry, error) {
	var result []dashboard.ACLEntry
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, dashboard_id, grantee_type, grantee_id, level, created_at
		FROM dashboard_acl
		WHERE dashboard_id = $1
		ORDER BY created_at
	`, dashboardID)
	if err != nil {
		return nil, err
	}
	return result, nil
}
