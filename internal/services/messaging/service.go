// Package messaging manages conversations, their participants, and the
// messages exchanged within them.
package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/atriumhq/atrium/internal/domain/attachment"
	"github.com/atriumhq/atrium/internal/domain/conversation"
	"github.com/atriumhq/atrium/internal/domain/message"
	"github.com/atriumhq/atrium/internal/domain/notification"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/metrics"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Notifier records inbox entries for message recipients. Satisfied by the
// notifications service.
type Notifier interface {
	Create(ctx context.Context, n notification.Notification) (notification.Notification, error)
}

// Service implements conversations and messages.
type Service struct {
	conversations storage.ConversationStore
	messages      storage.MessageStore
	attachments   storage.AttachmentStore
	notifier      Notifier
	log           *logger.Logger
}

// New creates a messaging service. notifier and attachments may be nil.
func New(conversations storage.ConversationStore, messages storage.MessageStore, attachments storage.AttachmentStore, notifier Notifier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("messaging")
	}
	return &Service{
		conversations: conversations,
		messages:      messages,
		attachments:   attachments,
		notifier:      notifier,
		log:           log,
	}
}

// CreateConversationInput is the payload for starting a conversation.
type CreateConversationInput struct {
	Subject        string   `json:"subject"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
}

// UpdateConversationInput applies partial changes. Nil fields are unchanged.
type UpdateConversationInput struct {
	Subject  *string `json:"subject,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// SendMessageInput is the payload for posting a message.
type SendMessageInput struct {
	Body          string   `json:"body"`
	ParentID      *string  `json:"parent_id,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// CreateConversation starts a conversation. The creator becomes the owner;
// the listed participants join as members.
func (s *Service) CreateConversation(ctx context.Context, tenantID, userID string, input CreateConversationInput) (conversation.Conversation, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return conversation.Conversation{}, errors.InvalidInput("subject is required")
	}

	conv, err := s.conversations.CreateConversation(ctx, conversation.Conversation{
		TenantID:  tenantID,
		Subject:   subject,
		CreatedBy: userID,
	})
	if err != nil {
		return conversation.Conversation{}, err
	}

	if _, err := s.conversations.AddParticipant(ctx, conversation.Participant{
		ConversationID: conv.ID,
		UserID:         userID,
		Role:           conversation.RoleOwner,
	}); err != nil {
		return conversation.Conversation{}, err
	}
	for _, pid := range input.ParticipantIDs {
		pid = strings.TrimSpace(pid)
		if pid == "" || pid == userID {
			continue
		}
		if _, err := s.conversations.AddParticipant(ctx, conversation.Participant{
			ConversationID: conv.ID,
			UserID:         pid,
			Role:           conversation.RoleMember,
		}); err != nil {
			return conversation.Conversation{}, err
		}
	}

	s.log.WithContext(ctx).WithField("conversation_id", conv.ID).Info("Conversation created")
	return conv, nil
}

// ListConversations returns conversations the user participates in.
func (s *Service) ListConversations(ctx context.Context, tenantID, userID string, includeArchived bool, limit int, before time.Time) ([]conversation.Conversation, error) {
	return s.conversations.ListConversations(ctx, tenantID, userID, includeArchived, limit, before)
}

// GetConversation returns a conversation the user participates in.
func (s *Service) GetConversation(ctx context.Context, tenantID, userID, id string) (conversation.Conversation, error) {
	conv, err := s.conversations.GetConversation(ctx, id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if conv.TenantID != tenantID {
		return conversation.Conversation{}, errors.NotFound("conversation", id)
	}
	if _, err := s.requireParticipant(ctx, id, userID); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// UpdateConversation changes the subject or archived flag. Any participant
// may update.
func (s *Service) UpdateConversation(ctx context.Context, tenantID, userID, id string, input UpdateConversationInput) (conversation.Conversation, error) {
	conv, err := s.GetConversation(ctx, tenantID, userID, id)
	if err != nil {
		return conversation.Conversation{}, err
	}

	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		if subject == "" {
			return conversation.Conversation{}, errors.InvalidInput("subject is required")
		}
		conv.Subject = subject
	}
	if input.Archived != nil {
		conv.Archived = *input.Archived
	}

	return s.conversations.UpdateConversation(ctx, conv)
}

// DeleteConversation soft-deletes a conversation. Owner only.
func (s *Service) DeleteConversation(ctx context.Context, tenantID, userID, id string) error {
	if _, err := s.GetConversation(ctx, tenantID, userID, id); err != nil {
		return err
	}
	p, err := s.requireParticipant(ctx, id, userID)
	if err != nil {
		return err
	}
	if p.Role != conversation.RoleOwner {
		return errors.Forbidden("only the conversation owner can delete it")
	}
	return s.conversations.DeleteConversation(ctx, id)
}

// AddParticipant adds a user to a conversation. Owner only.
func (s *Service) AddParticipant(ctx context.Context, tenantID, actorID, conversationID, userID, role string) (conversation.Participant, error) {
	if strings.TrimSpace(userID) == "" {
		return conversation.Participant{}, errors.InvalidInput("user_id is required")
	}
	if role == "" {
		role = conversation.RoleMember
	}
	if !conversation.ValidRole(role) {
		return conversation.Participant{}, errors.InvalidInput("role must be member or owner")
	}

	if _, err := s.GetConversation(ctx, tenantID, actorID, conversationID); err != nil {
		return conversation.Participant{}, err
	}
	actor, err := s.requireParticipant(ctx, conversationID, actorID)
	if err != nil {
		return conversation.Participant{}, err
	}
	if actor.Role != conversation.RoleOwner {
		return conversation.Participant{}, errors.Forbidden("only the conversation owner can add participants")
	}

	return s.conversations.AddParticipant(ctx, conversation.Participant{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
	})
}

// RemoveParticipant removes a user. Owners can remove anyone; members can
// only remove themselves.
func (s *Service) RemoveParticipant(ctx context.Context, tenantID, actorID, conversationID, userID string) error {
	if _, err := s.GetConversation(ctx, tenantID, actorID, conversationID); err != nil {
		return err
	}
	actor, err := s.requireParticipant(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if actor.Role != conversation.RoleOwner && actorID != userID {
		return errors.Forbidden("only the conversation owner can remove other participants")
	}
	return s.conversations.RemoveParticipant(ctx, conversationID, userID)
}

// ListParticipants returns a conversation's participants.
func (s *Service) ListParticipants(ctx context.Context, tenantID, userID, conversationID string) ([]conversation.Participant, error) {
	if _, err := s.GetConversation(ctx, tenantID, userID, conversationID); err != nil {
		return nil, err
	}
	return s.conversations.ListParticipants(ctx, conversationID)
}

// SendMessage posts a message, fans out a delivery per recipient, and emits a
// notification for each recipient.
func (s *Service) SendMessage(ctx context.Context, tenantID, senderID, conversationID string, input SendMessageInput) (message.Message, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" && len(input.AttachmentIDs) == 0 {
		return message.Message{}, errors.InvalidInput("body or attachments are required")
	}

	conv, err := s.GetConversation(ctx, tenantID, senderID, conversationID)
	if err != nil {
		return message.Message{}, err
	}
	if conv.Archived {
		return message.Message{}, errors.InvalidInput("conversation is archived")
	}

	if input.ParentID != nil {
		parent, err := s.messages.GetMessage(ctx, *input.ParentID)
		if err != nil {
			return message.Message{}, err
		}
		if parent.ConversationID != conversationID {
			return message.Message{}, errors.InvalidInput("parent message belongs to a different conversation")
		}
		if parent.ParentID != nil {
			return message.Message{}, errors.InvalidInput("replies cannot be nested; reply to the thread root")
		}
	}

	if err := s.validateAttachments(ctx, tenantID, senderID, input.AttachmentIDs); err != nil {
		return message.Message{}, err
	}

	msg, err := s.messages.CreateMessage(ctx, message.Message{
		TenantID:       tenantID,
		ConversationID: conversationID,
		SenderID:       senderID,
		ParentID:       input.ParentID,
		Body:           body,
		AttachmentIDs:  input.AttachmentIDs,
	})
	if err != nil {
		return message.Message{}, err
	}

	participants, err := s.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		return message.Message{}, err
	}

	deliveries := 0
	for _, p := range participants {
		if p.UserID == senderID {
			continue
		}
		if _, err := s.messages.CreateDelivery(ctx, message.Delivery{
			MessageID:   msg.ID,
			RecipientID: p.UserID,
		}); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("recipient_id", p.UserID).Warn("Delivery fan-out failed")
			continue
		}
		deliveries++

		if s.notifier != nil {
			if _, err := s.notifier.Create(ctx, notification.Notification{
				TenantID:     tenantID,
				UserID:       p.UserID,
				Kind:         notification.KindMessage,
				Title:        "New message in " + conv.Subject,
				ResourceType: "message",
				ResourceID:   msg.ID,
			}); err != nil {
				s.log.WithContext(ctx).WithError(err).Warn("Notification emit failed")
			}
		}
	}
	metrics.RecordMessageSent(deliveries)

	return msg, nil
}

// ListMessages returns a page of a conversation's messages, newest first.
func (s *Service) ListMessages(ctx context.Context, tenantID, userID, conversationID string, before time.Time, limit int) ([]message.Message, error) {
	if _, err := s.GetConversation(ctx, tenantID, userID, conversationID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, conversationID, before, limit)
}

// GetMessage returns a message the caller can see.
func (s *Service) GetMessage(ctx context.Context, tenantID, userID, id string) (message.Message, error) {
	msg, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return message.Message{}, err
	}
	if msg.TenantID != tenantID {
		return message.Message{}, errors.NotFound("message", id)
	}
	if _, err := s.requireParticipant(ctx, msg.ConversationID, userID); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// GetThread returns a thread root and its replies in chronological order.
// id may name the root or any reply in the thread.
func (s *Service) GetThread(ctx context.Context, tenantID, userID, id string) ([]message.Message, error) {
	msg, err := s.GetMessage(ctx, tenantID, userID, id)
	if err != nil {
		return nil, err
	}
	rootID := msg.ID
	if msg.ParentID != nil {
		rootID = *msg.ParentID
	}
	return s.messages.ListThread(ctx, rootID)
}

// MarkRead marks the caller's delivery of a message read.
func (s *Service) MarkRead(ctx context.Context, tenantID, userID, id string) (message.Delivery, error) {
	if _, err := s.GetMessage(ctx, tenantID, userID, id); err != nil {
		return message.Delivery{}, err
	}
	return s.messages.MarkDeliveryRead(ctx, id, userID)
}

// DeleteMessage soft-deletes a message. Sender only.
func (s *Service) DeleteMessage(ctx context.Context, tenantID, userID, id string) error {
	msg, err := s.GetMessage(ctx, tenantID, userID, id)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return errors.Forbidden("only the sender can delete a message")
	}
	return s.messages.DeleteMessage(ctx, id)
}

func (s *Service) requireParticipant(ctx context.Context, conversationID, userID string) (conversation.Participant, error) {
	participants, err := s.conversations.ListParticipants(ctx, conversationID)
	if err != nil {
		return conversation.Participant{}, err
	}
	for _, p := range participants {
		if p.UserID == userID {
			return p, nil
		}
	}
	return conversation.Participant{}, errors.Forbidden("not a participant in this conversation")
}

func (s *Service) validateAttachments(ctx context.Context, tenantID, senderID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if s.attachments == nil {
		return errors.InvalidInput("attachments are not supported")
	}
	for _, id := range ids {
		att, err := s.attachments.GetAttachment(ctx, id)
		if err != nil {
			return err
		}
		if att.TenantID != tenantID || att.OwnerID != senderID {
			return errors.NotFound("attachment", id)
		}
		if att.Status != attachment.StatusUploaded {
			return errors.InvalidInput("attachment " + id + " has not finished uploading")
		}
	}
	return nil
}
