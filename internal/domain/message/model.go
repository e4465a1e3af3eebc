package message

import "time"

// Message is a single post inside a conversation. A non-nil ParentID makes
// the message a reply in the thread rooted at that parent.
type Message struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	ConversationID string     `json:"conversation_id" db:"conversation_id"`
	SenderID       string     `json:"sender_id" db:"sender_id"`
	ParentID       *string    `json:"parent_id,omitempty" db:"parent_id"`
	Body           string     `json:"body" db:"body"`
	AttachmentIDs  []string   `json:"attachment_ids,omitempty" db:"-"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Delivery is the per-recipient receipt row created when a message is sent.
type Delivery struct {
	ID          string     `json:"id" db:"id"`
	MessageID   string     `json:"message_id" db:"message_id"`
	RecipientID string     `json:"recipient_id" db:"recipient_id"`
	DeliveredAt time.Time  `json:"delivered_at" db:"delivered_at"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
}
