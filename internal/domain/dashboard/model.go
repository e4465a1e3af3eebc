package dashboard

import (
	"encoding/json"
	"time"
)

// Visibility classifies who can see a dashboard.
type Visibility string

const (
	// VisibilityUser dashboards are private to their owner (plus ACL grants).
	VisibilityUser Visibility = "user"
	// VisibilityTenant dashboards are visible to everyone in the tenant.
	VisibilityTenant Visibility = "tenant"
	// VisibilitySystem dashboards ship with the platform and have no tenant.
	VisibilitySystem Visibility = "system"
)

// ValidVisibility reports whether v is a known visibility class.
func ValidVisibility(v Visibility) bool {
	return v == VisibilityUser || v == VisibilityTenant || v == VisibilitySystem
}

// ACL grantee types and levels.
const (
	GranteeUser   = "user"
	GranteeTenant = "tenant"

	LevelView = "view"
	LevelEdit = "edit"
)

// Dashboard is a named layout configuration addressed by slug. TenantID and
// OwnerID are nil for system dashboards.
type Dashboard struct {
	ID              string     `json:"id" db:"id"`
	TenantID        *string    `json:"tenant_id,omitempty" db:"tenant_id"`
	OwnerID         *string    `json:"owner_id,omitempty" db:"owner_id"`
	Slug            string     `json:"slug" db:"slug"`
	Title           string     `json:"title" db:"title"`
	Visibility      Visibility `json:"visibility" db:"visibility"`
	ForkedFromID    *string    `json:"forked_from_id,omitempty" db:"forked_from_id"`
	ActiveVersionID *string    `json:"active_version_id,omitempty" db:"active_version_id"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// Version is an immutable published layout for a dashboard.
type Version struct {
	ID          string          `json:"id" db:"id"`
	DashboardID string          `json:"dashboard_id" db:"dashboard_id"`
	Number      int             `json:"number" db:"number"`
	Layout      json.RawMessage `json:"layout" db:"layout"`
	Comment     string          `json:"comment,omitempty" db:"comment"`
	CreatedBy   string          `json:"created_by" db:"created_by"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ACLEntry grants a user or tenant access to a user-visibility dashboard.
type ACLEntry struct {
	ID          string    `json:"id" db:"id"`
	DashboardID string    `json:"dashboard_id" db:"dashboard_id"`
	GranteeType string    `json:"grantee_type" db:"grantee_type"`
	GranteeID   string    `json:"grantee_id" db:"grantee_id"`
	Level       string    `json:"level" db:"level"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
