package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider is a provider's directory entry (users joined with
// provider_profiles).
type Provider struct {
	UserID          uint64          `json:"user_id"`
	Name            string          `json:"name"`
	Skills          []string        `json:"skills"`
	Online          bool            `json:"online"`
	Verified        bool            `json:"verified"`
	ProfileComplete bool            `json:"profile_complete"`
	Location        *GeoPoint       `json:"location,omitempty"`
	Rating          float64         `json:"rating"`
	WalletBalance   decimal.Decimal `json:"wallet_balance"`
}

// Eligible reports whether the provider may receive new work at all.
func (p *Provider) Eligible() bool {
	return p.Online && p.Verified && p.ProfileComplete
}

// Service is a catalog entry. ProviderID is nil for unassigned catalog
// services which always go through matching.
type Service struct {
	ID              uint64          `json:"id"`
	ProviderID      *uint64         `json:"provider_id,omitempty"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	Skills          []string        `json:"skills"`
	BasePrice       decimal.Decimal `json:"base_price"`
	DurationMinutes int             `json:"duration_minutes"`
	AdminApproved   bool            `json:"admin_approved"`
	Active          bool            `json:"active"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Bookable reports whether customers may book the service.
func (s *Service) Bookable() bool {
	return s.AdminApproved && s.Active
}

// Candidate is a provider considered by matching, together with the
// services they offer and whether they are currently occupied.
type Candidate struct {
	Provider Provider
	Services []Service
	Busy     bool
}

// NormalizeSkills lowercases, trims and deduplicates skill names.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ProfileUpdate is a provider's change to their own directory entry. Nil
// fields are left unchanged.
type ProfileUpdate struct {
	Skills   []string
	Online   *bool
	Location *GeoPoint
}
