package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// MatchRequest describes the work a customer needs done.
type MatchRequest struct {
	Title     string
	Skills    []string
	Location  model.GeoPoint
	BasePrice decimal.Decimal // zero means use the matched service's price
	Exclude   map[uint64]bool
}

// MatchResult is the selected provider and the location-adjusted price.
type MatchResult struct {
	Provider           model.Provider  `json:"-"`
	Service            model.Service   `json:"-"`
	Distance           float64         `json:"distance"` // km
	LocationMultiplier decimal.Decimal `json:"location_multiplier"`
	AdjustedPrice      decimal.Decimal `json:"adjusted_price"`
	Score              float64         `json:"score"`
}

// ProviderMatcher picks the best available provider for a request.
type ProviderMatcher struct {
	dir      ProviderDirectory
	radiusKm float64
}

// NewProviderMatcher returns a matcher that ignores providers further than
// radiusKm from the customer. A non-positive radius disables the limit.
func NewProviderMatcher(dir ProviderDirectory, radiusKm float64) *ProviderMatcher {
	return &ProviderMatcher{dir: dir, radiusKm: radiusKm}
}

const (
	weightDistance = 0.6
	weightRating   = 0.25
	weightSkills   = 0.15

	freeRadiusKm     = 5.0
	surchargePerKm   = 0.02
	maxLocationMulti = 1.5
)

// Match returns nil, nil when nobody is eligible. The result is
// deterministic for identical directory contents.
func (m *ProviderMatcher) Match(ctx context.Context, req MatchRequest) (*MatchResult, error) {
	required := model.NormalizeSkills(req.Skills)
	if len(required) == 0 {
		return nil, nil
	}
	cands, err := m.dir.ListMatchCandidates(ctx, required)
	if err != nil {
		return nil, err
	}

	var best *MatchResult
	for _, c := range cands {
		p := c.Provider
		if c.Busy || !p.Eligible() || p.Location == nil || req.Exclude[p.UserID] {
			continue
		}
		overlap := skillOverlap(required, p.Skills)
		if overlap == 0 {
			continue
		}
		svc, ok := pickService(c.Services, req.Title, required)
		if !ok {
			continue
		}
		dist := utils.HaversineKm(req.Location, *p.Location)
		if m.radiusKm > 0 && dist > m.radiusKm {
			continue
		}
		score := weightDistance*distanceScore(dist, m.radiusKm) +
			weightRating*clamp01(p.Rating/5) +
			weightSkills*float64(overlap)/float64(len(required))

		r := &MatchResult{Provider: p, Service: svc, Distance: dist, Score: score}
		if best == nil || better(r, best) {
			best = r
		}
	}
	if best == nil {
		return nil, nil
	}

	base := req.BasePrice
	if !base.IsPositive() {
		base = best.Service.BasePrice
	}
	best.LocationMultiplier = LocationMultiplier(best.Distance)
	best.AdjustedPrice = base.Mul(best.LocationMultiplier).Round(2)
	return best, nil
}

// LocationMultiplier charges travel beyond the free radius at a flat rate
// per km, capped.
func LocationMultiplier(distanceKm float64) decimal.Decimal {
	if distanceKm <= freeRadiusKm {
		return decimal.NewFromInt(1)
	}
	f := 1 + (distanceKm-freeRadiusKm)*surchargePerKm
	if f > maxLocationMulti {
		f = maxLocationMulti
	}
	return decimal.NewFromFloat(f).Round(2)
}

func better(a, b *MatchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Provider.UserID < b.Provider.UserID
}

func distanceScore(d, radius float64) float64 {
	if radius <= 0 {
		radius = 50
	}
	return clamp01(1 - d/radius)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func skillOverlap(required, have []string) int {
	set := make(map[string]struct{}, len(have))
	for _, s := range model.NormalizeSkills(have) {
		set[s] = struct{}{}
	}
	n := 0
	for _, s := range required {
		if _, ok := set[s]; ok {
			n++
		}
	}
	return n
}

// pickService prefers an exact title match, then the bookable service with
// the most overlapping skills, then the lowest id.
func pickService(services []model.Service, title string, required []string) (model.Service, bool) {
	title = strings.TrimSpace(title)
	bookable := make([]model.Service, 0, len(services))
	for _, s := range services {
		if s.Bookable() {
			bookable = append(bookable, s)
		}
	}
	if len(bookable) == 0 {
		return model.Service{}, false
	}
	sort.Slice(bookable, func(i, j int) bool {
		ti := title != "" && strings.EqualFold(bookable[i].Title, title)
		tj := title != "" && strings.EqualFold(bookable[j].Title, title)
		if ti != tj {
			return ti
		}
		oi, oj := skillOverlap(required, bookable[i].Skills), skillOverlap(required, bookable[j].Skills)
		if oi != oj {
			return oi > oj
		}
		return bookable[i].ID < bookable[j].ID
	})
	return bookable[0], true
}
