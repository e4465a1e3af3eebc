// Package dashboards manages dashboard definitions, their published versions,
// sharing, and slug resolution.
package dashboards

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/atriumhq/atrium/internal/domain/dashboard"
	"github.com/atriumhq/atrium/internal/errors"
	"github.com/atriumhq/atrium/internal/metrics"
	"github.com/atriumhq/atrium/internal/storage"
	"github.com/atriumhq/atrium/pkg/logger"
)

// Principal identifies the caller for dashboard operations.
type Principal struct {
	UserID        string
	TenantID      string
	PlatformAdmin bool
}

// Service implements dashboard management and resolution.
type Service struct {
	store storage.DashboardStore
	log   *logger.Logger
}

// New creates a dashboard service.
func New(store storage.DashboardStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("dashboards")
	}
	return &Service{store: store, log: log}
}

// CreateInput is the payload for creating a dashboard.
type CreateInput struct {
	Slug       string               `json:"slug"`
	Title      string               `json:"title"`
	Visibility dashboard.Visibility `json:"visibility"`
}

// UpdateInput applies partial changes. Nil fields are unchanged.
type UpdateInput struct {
	Title      *string               `json:"title,omitempty"`
	Visibility *dashboard.Visibility `json:"visibility,omitempty"`
}

// PublishInput is the payload for publishing a new version.
type PublishInput struct {
	Layout  json.RawMessage `json:"layout"`
	Comment string          `json:"comment,omitempty"`
}

// ForkInput controls where a fork lands. The default is a tenant-visibility
// copy in the caller's tenant.
type ForkInput struct {
	Visibility dashboard.Visibility `json:"visibility,omitempty"`
}

// GrantInput is the payload for an ACL grant.
type GrantInput struct {
	GranteeType string `json:"grantee_type"`
	GranteeID   string `json:"grantee_id"`
	Level       string `json:"level"`
}

// Create validates and persists a new dashboard in the caller's scope.
func (s *Service) Create(ctx context.Context, p Principal, input CreateInput) (dashboard.Dashboard, error) {
	slug := strings.ToLower(strings.TrimSpace(input.Slug))
	if slug == "" {
		return dashboard.Dashboard{}, errors.InvalidInput("slug is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return dashboard.Dashboard{}, errors.InvalidInput("title is required")
	}
	if !dashboard.ValidVisibility(input.Visibility) {
		return dashboard.Dashboard{}, errors.InvalidInput("visibility must be user, tenant, or system")
	}

	d := dashboard.Dashboard{
		Slug:       slug,
		Title:      title,
		Visibility: input.Visibility,
	}
	switch input.Visibility {
	case dashboard.VisibilitySystem:
		if !p.PlatformAdmin {
			return dashboard.Dashboard{}, errors.Forbidden("only platform administrators can create system dashboards")
		}
	case dashboard.VisibilityTenant:
		tenantID := p.TenantID
		d.TenantID = &tenantID
	case dashboard.VisibilityUser:
		tenantID, userID := p.TenantID, p.UserID
		d.TenantID = &tenantID
		d.OwnerID = &userID
	}

	created, err := s.store.CreateDashboard(ctx, d)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"dashboard_id": created.ID,
		"slug":         created.Slug,
		"visibility":   created.Visibility,
	}).Info("Dashboard created")
	return created, nil
}

// Get returns a dashboard visible to the caller.
func (s *Service) Get(ctx context.Context, p Principal, id string) (dashboard.Dashboard, error) {
	d, err := s.store.GetDashboard(ctx, id)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	if !s.canView(ctx, p, d) {
		return dashboard.Dashboard{}, errors.NotFound("dashboard", id)
	}
	return d, nil
}

// ListVisible returns every dashboard the caller can see.
func (s *Service) ListVisible(ctx context.Context, p Principal) ([]dashboard.Dashboard, error) {
	return s.store.ListVisible(ctx, p.TenantID, p.UserID)
}

// Update changes title or visibility. Requires edit rights.
func (s *Service) Update(ctx context.Context, p Principal, id string, input UpdateInput) (dashboard.Dashboard, error) {
	d, err := s.requireEdit(ctx, p, id)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return dashboard.Dashboard{}, errors.InvalidInput("title is required")
		}
		d.Title = title
	}
	if input.Visibility != nil {
		if !dashboard.ValidVisibility(*input.Visibility) {
			return dashboard.Dashboard{}, errors.InvalidInput("visibility must be user, tenant, or system")
		}
		if *input.Visibility == dashboard.VisibilitySystem && !p.PlatformAdmin {
			return dashboard.Dashboard{}, errors.Forbidden("only platform administrators can make dashboards system-visible")
		}
		d.Visibility = *input.Visibility
	}

	return s.store.UpdateDashboard(ctx, d)
}

// Delete soft-deletes a dashboard. Requires edit rights.
func (s *Service) Delete(ctx context.Context, p Principal, id string) error {
	if _, err := s.requireEdit(ctx, p, id); err != nil {
		return err
	}
	return s.store.DeleteDashboard(ctx, id)
}

// Publish validates the layout and records it as the dashboard's next active
// version.
func (s *Service) Publish(ctx context.Context, p Principal, id string, input PublishInput) (dashboard.Version, error) {
	if _, err := s.requireEdit(ctx, p, id); err != nil {
		return dashboard.Version{}, err
	}
	if err := ValidateLayout(input.Layout); err != nil {
		return dashboard.Version{}, err
	}

	v, err := s.store.CreateVersion(ctx, dashboard.Version{
		DashboardID: id,
		Layout:      input.Layout,
		Comment:     strings.TrimSpace(input.Comment),
		CreatedBy:   p.UserID,
	})
	if err != nil {
		return dashboard.Version{}, err
	}
	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"dashboard_id": id,
		"version":      v.Number,
	}).Info("Dashboard version published")
	return v, nil
}

// ListVersions returns a dashboard's version history, newest first.
func (s *Service) ListVersions(ctx context.Context, p Principal, id string) ([]dashboard.Version, error) {
	if _, err := s.Get(ctx, p, id); err != nil {
		return nil, err
	}
	return s.store.ListVersions(ctx, id)
}

// Fork copies a visible dashboard into the caller's scope, carrying the
// source's active layout and recording the fork lineage.
func (s *Service) Fork(ctx context.Context, p Principal, id string, input ForkInput) (dashboard.Dashboard, error) {
	source, err := s.Get(ctx, p, id)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = dashboard.VisibilityTenant
	}
	if visibility == dashboard.VisibilitySystem {
		return dashboard.Dashboard{}, errors.InvalidInput("forks cannot be system-visible")
	}

	fork := dashboard.Dashboard{
		Slug:         source.Slug,
		Title:        source.Title,
		Visibility:   visibility,
		ForkedFromID: &source.ID,
	}
	tenantID := p.TenantID
	fork.TenantID = &tenantID
	if visibility == dashboard.VisibilityUser {
		userID := p.UserID
		fork.OwnerID = &userID
	}

	created, err := s.store.CreateDashboard(ctx, fork)
	if err != nil {
		return dashboard.Dashboard{}, err
	}

	if source.ActiveVersionID != nil {
		active, err := s.store.GetVersion(ctx, *source.ActiveVersionID)
		if err != nil {
			return dashboard.Dashboard{}, err
		}
		v, err := s.store.CreateVersion(ctx, dashboard.Version{
			DashboardID: created.ID,
			Layout:      active.Layout,
			Comment:     "forked from " + source.Slug,
			CreatedBy:   p.UserID,
		})
		if err != nil {
			return dashboard.Dashboard{}, err
		}
		created.ActiveVersionID = &v.ID
	}

	s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"dashboard_id": created.ID,
		"forked_from":  source.ID,
	}).Info("Dashboard forked")
	return created, nil
}

// Grant shares a user-visibility dashboard. Owner only.
func (s *Service) Grant(ctx context.Context, p Principal, id string, input GrantInput) (dashboard.ACLEntry, error) {
	d, err := s.requireOwner(ctx, p, id)
	if err != nil {
		return dashboard.ACLEntry{}, err
	}
	if d.Visibility != dashboard.VisibilityUser {
		return dashboard.ACLEntry{}, errors.InvalidInput("only user-visibility dashboards use the ACL")
	}
	if input.GranteeType != dashboard.GranteeUser && input.GranteeType != dashboard.GranteeTenant {
		return dashboard.ACLEntry{}, errors.InvalidInput("grantee_type must be user or tenant")
	}
	if strings.TrimSpace(input.GranteeID) == "" {
		return dashboard.ACLEntry{}, errors.InvalidInput("grantee_id is required")
	}
	if input.Level != dashboard.LevelView && input.Level != dashboard.LevelEdit {
		return dashboard.ACLEntry{}, errors.InvalidInput("level must be view or edit")
	}

	return s.store.GrantACL(ctx, dashboard.ACLEntry{
		DashboardID: id,
		GranteeType: input.GranteeType,
		GranteeID:   input.GranteeID,
		Level:       input.Level,
	})
}

// Revoke removes an ACL entry. Owner only.
func (s *Service) Revoke(ctx context.Context, p Principal, id, entryID string) error {
	if _, err := s.requireOwner(ctx, p, id); err != nil {
		return err
	}
	entries, err := s.store.ListACL(ctx, id)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.ID == entryID {
			return s.store.RevokeACL(ctx, entryID)
		}
	}
	return errors.NotFound("acl entry", entryID)
}

// ListACL returns a dashboard's grants. Owner only.
func (s *Service) ListACL(ctx context.Context, p Principal, id string) ([]dashboard.ACLEntry, error) {
	if _, err := s.requireOwner(ctx, p, id); err != nil {
		return nil, err
	}
	return s.store.ListACL(ctx, id)
}

// Resolve picks the dashboard a slug shows for the caller: candidates come
// from the bounded visibility query, the pure tier algorithm selects the
// winner, and the active version's layout is hydrated in. A dashboard with no
// published version resolves with the empty layout.
func (s *Service) Resolve(ctx context.Context, p Principal, slug string) (dashboard.Resolution, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return dashboard.Resolution{}, errors.InvalidInput("slug is required")
	}

	candidates, err := s.store.ListCandidates(ctx, slug, p.TenantID, p.UserID)
	if err != nil {
		return dashboard.Resolution{}, err
	}

	winner, tier := dashboard.Resolve(candidates)
	metrics.RecordDashboardResolution(string(tier))

	if tier == dashboard.TierFallback {
		return dashboard.FallbackResolution(), nil
	}

	res := dashboard.Resolution{Tier: tier, Dashboard: &winner, Layout: dashboard.FallbackLayout()}
	if winner.ActiveVersionID != nil {
		v, err := s.store.GetVersion(ctx, *winner.ActiveVersionID)
		if err != nil {
			return dashboard.Resolution{}, err
		}
		res.Version = &v
		res.Layout = v.Layout
	}
	return res, nil
}

// canView mirrors the candidate query's visibility predicate for a single
// dashboard.
func (s *Service) canView(ctx context.Context, p Principal, d dashboard.Dashboard) bool {
	if p.PlatformAdmin {
		return true
	}
	switch d.Visibility {
	case dashboard.VisibilitySystem:
		return true
	case dashboard.VisibilityTenant:
		return d.TenantID != nil && *d.TenantID == p.TenantID
	case dashboard.VisibilityUser:
		if d.OwnerID != nil && *d.OwnerID == p.UserID {
			return true
		}
		entries, err := s.store.ListACL(ctx, d.ID)
		if err != nil {
			return false
		}
		for _, e := range entries {
			if e.GranteeType == dashboard.GranteeUser && e.GranteeID == p.UserID {
				return true
			}
			if e.GranteeType == dashboard.GranteeTenant && e.GranteeID == p.TenantID {
				return true
			}
		}
	}
	return false
}

// requireEdit loads a dashboard and checks the caller may change it: system
// dashboards need a platform admin, tenant dashboards any tenant member,
// user dashboards the owner or an edit grant.
func (s *Service) requireEdit(ctx context.Context, p Principal, id string) (dashboard.Dashboard, error) {
	d, err := s.Get(ctx, p, id)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	if p.PlatformAdmin {
		return d, nil
	}

	switch d.Visibility {
	case dashboard.VisibilitySystem:
		return dashboard.Dashboard{}, errors.Forbidden("system dashboards are managed by platform administrators")
	case dashboard.VisibilityTenant:
		return d, nil
	case dashboard.VisibilityUser:
		if d.OwnerID != nil && *d.OwnerID == p.UserID {
			return d, nil
		}
		entries, err := s.store.ListACL(ctx, d.ID)
		if err != nil {
			return dashboard.Dashboard{}, err
		}
		for _, e := range entries {
			if e.Level == dashboard.LevelEdit &&
				((e.GranteeType == dashboard.GranteeUser && e.GranteeID == p.UserID) ||
					(e.GranteeType == dashboard.GranteeTenant && e.GranteeID == p.TenantID)) {
				return d, nil
			}
		}
	}
	return dashboard.Dashboard{}, errors.Forbidden("no edit access to this dashboard")
}

// requireOwner loads a dashboard and checks the caller owns it.
func (s *Service) requireOwner(ctx context.Context, p Principal, id string) (dashboard.Dashboard, error) {
	d, err := s.Get(ctx, p, id)
	if err != nil {
		return dashboard.Dashboard{}, err
	}
	if p.PlatformAdmin {
		return d, nil
	}
	if d.OwnerID == nil || *d.OwnerID != p.UserID {
		return dashboard.Dashboard{}, errors.Forbidden("only the dashboard owner can manage sharing")
	}
	return d, nil
}
