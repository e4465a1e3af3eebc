package tenant

import "time"

// Tenant is the isolation boundary for a customer organization. All other
// entities carry a tenant foreign key.
type Tenant struct {
	ID         string            `json:"id" db:"id"`
	Name       string            `json:"name" db:"name"`
	Slug       string            `json:"slug" db:"slug"`
	WebhookURL string            `json:"webhook_url,omitempty" db:"webhook_url"`
	Settings   map[string]string `json:"settings,omitempty" db:"-"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
	DeletedAt  *time.Time        `json:"deleted_at,omitempty" db:"deleted_at"`
}
