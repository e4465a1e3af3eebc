// Package tenants manages tenant records. The HTTP layer restricts this
// surface to platform administrators.
package tenants

import (
	"context"
	"net/url"
	"strings"

	"github.com/atriumhq/atrium/internal/domain/tenant"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Service implements tenant management.
type Service struct {
	store storage.TenantStore
	log   *logger.Logger
}

// New creates a tenant service.
func New(store storage.TenantStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("tenants")
	}
	return &Service{store: store, log: log}
}

// CreateInput is the payload for creating a tenant.
type CreateInput struct {
	Name       string            `json:"name"`
	Slug       string            `json:"slug"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
}

// UpdateInput is the payload for updating a tenant. Nil fields are left
// unchanged.
type UpdateInput struct {
	Name       *string            `json:"name,omitempty"`
	WebhookURL *string            `json:"webhook_url,omitempty"`
	Settings   *map[string]string `json:"settings,omitempty"`
}

// Create validates and persists a new tenant.
func (s *Service) Create(ctx context.Context, input CreateInput) (tenant.Tenant, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return tenant.Tenant{}, errors.InvalidInput("name is required")
	}
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		return tenant.Tenant{}, errors.InvalidInput("slug is required")
	}
	if !validSlug(slug) {
		return tenant.Tenant{}, errors.InvalidInput("slug must contain only lowercase letters, digits, and hyphens")
	}
	if err := validateWebhookURL(input.WebhookURL); err != nil {
		return tenant.Tenant{}, err
	}

	created, err := s.store.CreateTenant(ctx, tenant.Tenant{
		Name:       name,
		Slug:       slug,
		WebhookURL: strings.TrimSpace(input.WebhookURL),
		Settings:   input.Settings,
	})
	if err != nil {
		return tenant.Tenant{}, err
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"tenant_id": created.ID,
		"slug":      created.Slug,
	}).Info("Tenant created")
	return created, nil
}

// Update applies partial changes to a tenant. The slug is immutable.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (tenant.Tenant, error) {
	existing, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return tenant.Tenant{}, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return tenant.Tenant{}, errors.InvalidInput("name is required")
		}
		existing.Name = name
	}
	if input.WebhookURL != nil {
		if err := validateWebhookURL(*input.WebhookURL); err != nil {
			return tenant.Tenant{}, err
		}
		existing.WebhookURL = strings.TrimSpace(*input.WebhookURL)
	}
	if input.Settings != nil {
		existing.Settings = *input.Settings
	}

	return s.store.UpdateTenant(ctx, existing)
}

// Get returns a tenant by ID.
func (s *Service) Get(ctx context.Context, id string) (tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// GetBySlug returns a tenant by its slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (tenant.Tenant, error) {
	return s.store.GetTenantBySlug(ctx, slug)
}

// List returns all live tenants.
func (s *Service) List(ctx context.Context) ([]tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Delete soft-deletes a tenant.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteTenant(ctx, id); err != nil {
		return err
	}
	s.log.WithContext(ctx).WithField("tenant_id", id).Info("Tenant deleted")
	return nil
}

func validSlug(slug string) bool {
	for _, c := range slug {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return false
		}
	}
	return slug[0] != '-' && slug[len(slug)-1] != '-'
}

func validateWebhookURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.InvalidInput("webhook_url must be an absolute http(s) URL")
	}
	return nil
}
