package notification

import "time"

// Notification kinds emitted by the platform.
const (
	KindMessage = "message"
	KindMention = "mention"
	KindSystem  = "system"
)

// Notification is an inbox entry for a single user. DispatchedAt is set once
// the entry has been forwarded to the tenant webhook.
type Notification struct {
	ID           string     `json:"id" db:"id"`
	TenantID     string     `json:"tenant_id" db:"tenant_id"`
	UserID       string     `json:"user_id" db:"user_id"`
	Kind         string     `json:"kind" db:"kind"`
	Title        string     `json:"title" db:"title"`
	Body         string     `json:"body,omitempty" db:"body"`
	ResourceType string     `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string     `json:"resource_id,omitempty" db:"resource_id"`
	ReadAt       *time.Time `json:"read_at,omitempty" db:"read_at"`
	DismissedAt  *time.Time `json:"dismissed_at,omitempty" db:"dismissed_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty" db:"dispatched_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
