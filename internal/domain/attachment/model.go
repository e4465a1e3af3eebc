package attachment

import "time"

// Upload states for an attachment.
const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
)

// Attachment is the metadata row for an object stored in the S3-compatible
// store. The binary itself is only reachable through presigned URLs.
type Attachment struct {
	ID             string     `json:"id" db:"id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	ConversationID *string    `json:"conversation_id,omitempty" db:"conversation_id"`
	OwnerID        string     `json:"owner_id" db:"owner_id"`
	FileName       string     `json:"file_name" db:"file_name"`
	ContentType    string     `json:"content_type" db:"content_type"`
	SizeBytes      int64      `json:"size_bytes" db:"size_bytes"`
	ObjectKey      string     `json:"-" db:"object_key"`
	Status         string     `json:"status" db:"status"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}
