// Package messaging is the typed client for the conversation and message
// API. Errors surface as *APIError carrying the server's code, message, and
// HTTP status; the client never retries.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/atriumhq/atrium/pkg/apiclient"
)

// Conversation mirrors the API's conversation resource.
type Conversation struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Subject   string    `json:"subject"`
	CreatedBy string    `json:"created_by"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Participant mirrors the API's participant resource.
type Participant struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Role           string    `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}

// Message mirrors the API's message resource.
type Message struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ParentID       *string   `json:"parent_id,omitempty"`
	Body           string    `json:"body"`
	AttachmentIDs  []string  `json:"attachment_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Delivery mirrors the API's per-recipient receipt resource.
type Delivery struct {
	ID          string     `json:"id"`
	MessageID   string     `json:"message_id"`
	RecipientID string     `json:"recipient_id"`
	DeliveredAt time.Time  `json:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// APIError is the typed error returned for failed messaging calls.
type APIError struct {
	Code    string
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("messaging api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the messaging endpoints of the BFF.
type Client struct {
	base *apiclient.Client
}

// NewClient creates a messaging client.
func NewClient(cfg apiclient.Config) *Client {
	return &Client{base: apiclient.New(cfg)}
}

// ListOptions pages conversation and message lists.
type ListOptions struct {
	IncludeArchived bool
	Limit           int
	Cursor          time.Time
}

// CreateConversationRequest is the payload for CreateConversation.
type CreateConversationRequest struct {
	Subject        string   `json:"subject"`
	ParticipantIDs []string `json:"participant_ids,omitempty"`
}

// UpdateConversationRequest applies partial changes. Nil fields are
// unchanged.
type UpdateConversationRequest struct {
	Subject  *string `json:"subject,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
}

// SendMessageRequest is the payload for SendMessage.
type SendMessageRequest struct {
	Body          string   `json:"body"`
	ParentID      *string  `json:"parent_id,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
}

// ListConversations returns the caller's conversations.
func (c *Client) ListConversations(ctx context.Context, opts ListOptions) ([]Conversation, error) {
	query := url.Values{}
	if opts.IncludeArchived {
		query.Set("include_archived", "true")
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if !opts.Cursor.IsZero() {
		query.Set("cursor", opts.Cursor.Format(time.RFC3339Nano))
	}

	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := c.base.Get(ctx, withQuery("/api/conversations", query), &out); err != nil {
		return nil, wrap(err)
	}
	return out.Conversations, nil
}

// CreateConversation starts a conversation.
func (c *Client) CreateConversation(ctx context.Context, req CreateConversationRequest) (Conversation, error) {
	var out Conversation
	if err := c.base.Post(ctx, "/api/conversations", req, &out); err != nil {
		return Conversation{}, wrap(err)
	}
	return out, nil
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var out Conversation
	if err := c.base.Get(ctx, "/api/conversations/"+url.PathEscape(id), &out); err != nil {
		return Conversation{}, wrap(err)
	}
	return out, nil
}

// UpdateConversation applies partial changes.
func (c *Client) UpdateConversation(ctx context.Context, id string, req UpdateConversationRequest) (Conversation, error) {
	var out Conversation
	if err := c.base.Patch(ctx, "/api/conversations/"+url.PathEscape(id), req, &out); err != nil {
		return Conversation{}, wrap(err)
	}
	return out, nil
}

// DeleteConversation soft-deletes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return wrap(c.base.Delete(ctx, "/api/conversations/"+url.PathEscape(id)))
}

// ListParticipants returns a conversation's participants.
func (c *Client) ListParticipants(ctx context.Context, conversationID string) ([]Participant, error) {
	var out struct {
		Participants []Participant `json:"participants"`
	}
	if err := c.base.Get(ctx, "/api/conversations/"+url.PathEscape(conversationID)+"/participants", &out); err != nil {
		return nil, wrap(err)
	}
	return out.Participants, nil
}

// AddParticipant adds a user to a conversation.
func (c *Client) AddParticipant(ctx context.Context, conversationID, userID, role string) (Participant, error) {
	req := map[string]string{"user_id": userID}
	if role != "" {
		req["role"] = role
	}
	var out Participant
	if err := c.base.Post(ctx, "/api/conversations/"+url.PathEscape(conversationID)+"/participants", req, &out); err != nil {
		return Participant{}, wrap(err)
	}
	return out, nil
}

// RemoveParticipant removes a user from a conversation.
func (c *Client) RemoveParticipant(ctx context.Context, conversationID, userID string) error {
	return wrap(c.base.Delete(ctx, "/api/conversations/"+url.PathEscape(conversationID)+"/participants/"+url.PathEscape(userID)))
}

// ListMessages returns a page of a conversation's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, conversationID string, before time.Time, limit int) ([]Message, error) {
	query := url.Values{}
	if !before.IsZero() {
		query.Set("before", before.Format(time.RFC3339Nano))
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.base.Get(ctx, withQuery("/api/conversations/"+url.PathEscape(conversationID)+"/messages", query), &out); err != nil {
		return nil, wrap(err)
	}
	return out.Messages, nil
}

// SendMessage posts a message to a conversation.
func (c *Client) SendMessage(ctx context.Context, conversationID string, req SendMessageRequest) (Message, error) {
	var out Message
	if err := c.base.Post(ctx, "/api/conversations/"+url.PathEscape(conversationID)+"/messages", req, &out); err != nil {
		return Message{}, wrap(err)
	}
	return out, nil
}

// GetMessage fetches one message.
func (c *Client) GetMessage(ctx context.Context, id string) (Message, error) {
	var out Message
	if err := c.base.Get(ctx, "/api/messages/"+url.PathEscape(id), &out); err != nil {
		return Message{}, wrap(err)
	}
	return out, nil
}

// GetThread returns a thread's root and replies in order. id may name the
// root or any reply.
func (c *Client) GetThread(ctx context.Context, id string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.base.Get(ctx, "/api/messages/"+url.PathEscape(id)+"/thread", &out); err != nil {
		return nil, wrap(err)
	}
	return out.Messages, nil
}

// MarkRead marks the caller's delivery of a message read.
func (c *Client) MarkRead(ctx context.Context, id string) (Delivery, error) {
	var out Delivery
	if err := c.base.Post(ctx, "/api/messages/"+url.PathEscape(id)+"/read", nil, &out); err != nil {
		return Delivery{}, wrap(err)
	}
	return out, nil
}

// DeleteMessage soft-deletes the caller's own message.
func (c *Client) DeleteMessage(ctx context.Context, id string) error {
	return wrap(c.base.Delete(ctx, "/api/messages/"+url.PathEscape(id)))
}

func withQuery(path string, query url.Values) string {
	if len(query) == 0 {
		return path
	}
	return path + "?" + query.Encode()
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	var se *apiclient.StatusError
	if errors.As(err, &se) {
		return &APIError{Code: se.Code, Message: se.Message, Status: se.Status}
	}
	return err
}
