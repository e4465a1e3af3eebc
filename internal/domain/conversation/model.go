package conversation

import "time"

// Participant roles within a conversation.
const (
	RoleMember = "member"
	RoleOwner  = "owner"
)

// Conversation groups messages between a set of participants in a tenant.
type Conversation struct {
	ID        string     `json:"id" db:"id"`
	TenantID  string     `json:"tenant_id" db:"tenant_id"`
	Subject   string     `json:"subject" db:"subject"`
	CreatedBy string     `json:"created_by" db:"created_by"`
	Archived  bool       `json:"archived" db:"archived"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Participant is a user's membership in a conversation.
type Participant struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	UserID         string    `json:"user_id" db:"user_id"`
	Role           string    `json:"role" db:"role"`
	JoinedAt       time.Time `json:"joined_at" db:"joined_at"`
}

// ValidRole reports whether the role is one of the participant roles.
func ValidRole(role string) bool {
	return role == RoleMember || role == RoleOwner
}
