package dashboard

import "encoding/json"

// Tier is the priority level a resolution was satisfied at.
type Tier string

const (
	TierUser       Tier = "user"
	TierTenantFork Tier = "tenant_fork"
	TierTenant     Tier = "tenant"
	TierSystem     Tier = "system"
	TierFallback   Tier = "fallback"
)

// Resolution is the outcome of resolving a slug for a principal. Dashboard
// and Version are nil at the fallback tier.
type Resolution struct {
	Tier      Tier            `json:"tier"`
	Dashboard *Dashboard      `json:"dashboard,omitempty"`
	Version   *Version        `json:"version,omitempty"`
	Layout    json.RawMessage `json:"layout"`
}

// FallbackLayout is the empty layout synthesized when no candidate matches.
func FallbackLayout() json.RawMessage {
	return json.RawMessage(`{"columns":12,"widgets":[]}`)
}

// Resolve picks the winning candidate from a pre-filtered, pre-sorted list.
// Candidates arrive ordered newest-first within each visibility class; the
// winner is the first candidate matching, in order: user visibility, tenant
// visibility with fork lineage, tenant visibility without fork lineage, then
// system visibility. With no match the fallback tier is returned.
func Resolve(candidates []Dashboard) (Dashboard, Tier) {
	for _, c := range candidates {
		if c.Visibility == VisibilityUser {
			return c, TierUser
		}
	}
	for _, c := range candidates {
		if c.Visibility == VisibilityTenant && c.ForkedFromID != nil {
			return c, TierTenantFork
		}
	}
	for _, c := range candidates {
		if c.Visibility == VisibilityTenant && c.ForkedFromID == nil {
			return c, TierTenant
		}
	}
	for _, c := range candidates {
		if c.Visibility == VisibilitySystem {
			return c, TierSystem
		}
	}
	return Dashboard{}, TierFallback
}

// FallbackResolution synthesizes the empty resolution returned when no
// candidate matched.
func FallbackResolution() Resolution {
	return Resolution{Tier: TierFallback, Layout: FallbackLayout()}
}
