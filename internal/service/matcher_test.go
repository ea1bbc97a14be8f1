package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
)

type seedProvider struct {
	name     string
	skills   []string
	kmNorth  float64
	rating   float64
	online   bool
	verified bool
}

func seedDirectory(t *testing.T, providers ...seedProvider) (*repository.MemoryStore, []uint64) {
	t.Helper()
	store := repository.NewMemoryStore()
	ids := make([]uint64, len(providers))
	for i, sp := range providers {
		loc := *offset(sp.kmNorth * 1000)
		id := store.AddProvider(model.Provider{
			Name: sp.name, Skills: sp.skills, Online: sp.online, Verified: sp.verified,
			ProfileComplete: true, Location: &loc, Rating: sp.rating,
		})
		pid := id
		store.AddService(model.Service{
			ProviderID: &pid, Title: sp.name + " service", Skills: sp.skills,
			BasePrice: dec("500"), DurationMinutes: 60, AdminApproved: true, Active: true,
		})
		ids[i] = id
	}
	return store, ids
}

func TestMatchPrefersCloseHighlyRated(t *testing.T) {
	store, ids := seedDirectory(t,
		seedProvider{"far", []string{"plumbing"}, 20, 5, true, true},
		seedProvider{"near", []string{"plumbing"}, 1, 4, true, true},
		seedProvider{"electrician", []string{"electrical"}, 0, 5, true, true},
	)
	m := NewProviderMatcher(store, 50)

	res, err := m.Match(ctx, MatchRequest{Title: "Fix tap", Skills: []string{"Plumbing"}, Location: home})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ids[1], res.Provider.UserID)
	assert.InDelta(t, 1.0, res.Distance, 0.01)
	assertDec(t, "1", res.LocationMultiplier)
	assertDec(t, "500", res.AdjustedPrice)

	again, err := m.Match(ctx, MatchRequest{Title: "Fix tap", Skills: []string{"plumbing"}, Location: home})
	require.NoError(t, err)
	assert.Equal(t, res.Provider.UserID, again.Provider.UserID)
	assert.Equal(t, res.Score, again.Score)
}

func TestMatchSkipsIneligible(t *testing.T) {
	store, ids := seedDirectory(t,
		seedProvider{"offline", []string{"plumbing"}, 0.1, 5, false, true},
		seedProvider{"unverified", []string{"plumbing"}, 0.1, 5, true, false},
		seedProvider{"busy", []string{"plumbing"}, 0.1, 5, true, true},
		seedProvider{"excluded", []string{"plumbing"}, 0.1, 5, true, true},
		seedProvider{"outside radius", []string{"plumbing"}, 60, 5, true, true},
		seedProvider{"ok", []string{"plumbing"}, 10, 1, true, true},
	)
	require.NoError(t, store.CreateBooking(ctx, &model.Booking{
		ID: "occupied", Reference: "BK-000001", ProviderID: ids[2], Status: model.StatusConfirmed,
	}))
	m := NewProviderMatcher(store, 50)

	res, err := m.Match(ctx, MatchRequest{Skills: []string{"plumbing"}, Location: home, Exclude: map[uint64]bool{ids[3]: true}})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, ids[5], res.Provider.UserID)
}

func TestMatchNobodyAvailable(t *testing.T) {
	store, _ := seedDirectory(t, seedProvider{"electrician", []string{"electrical"}, 1, 5, true, true})
	m := NewProviderMatcher(store, 50)

	res, err := m.Match(ctx, MatchRequest{Skills: []string{"plumbing"}, Location: home})
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = m.Match(ctx, MatchRequest{Location: home})
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestMatchAppliesLocationMultiplierToRequestedPrice(t *testing.T) {
	store, _ := seedDirectory(t, seedProvider{"only", []string{"plumbing"}, 10, 4, true, true})
	m := NewProviderMatcher(store, 50)

	res, err := m.Match(ctx, MatchRequest{Skills: []string{"plumbing"}, Location: home, BasePrice: dec("1000")})
	require.NoError(t, err)
	require.NotNil(t, res)
	assertDec(t, "1.1", res.LocationMultiplier)
	assertDec(t, "1100", res.AdjustedPrice)
}

func TestLocationMultiplier(t *testing.T) {
	tests := []struct {
		km   float64
		want string
	}{
		{0, "1"},
		{5, "1"},
		{10, "1.1"},
		{17.5, "1.25"},
		{30, "1.5"},
		{200, "1.5"},
	}
	for _, tc := range tests {
		assertDec(t, tc.want, LocationMultiplier(tc.km))
	}
}

func TestPickServicePrefersTitleThenOverlap(t *testing.T) {
	services := []model.Service{
		{ID: 1, Title: "General", Skills: []string{"plumbing"}, AdminApproved: true, Active: true},
		{ID: 2, Title: "Geyser install", Skills: []string{"plumbing", "electrical"}, AdminApproved: true, Active: true},
		{ID: 3, Title: "Leak repair", Skills: []string{"plumbing"}, AdminApproved: true, Active: true},
		{ID: 4, Title: "Hidden", Skills: []string{"plumbing", "electrical"}, AdminApproved: false, Active: true},
	}
	got, ok := pickService(services, "leak repair", []string{"plumbing"})
	require.True(t, ok)
	assert.Equal(t, uint64(3), got.ID)

	got, ok = pickService(services, "", []string{"plumbing", "electrical"})
	require.True(t, ok)
	assert.Equal(t, uint64(2), got.ID)

	_, ok = pickService(services[3:], "", nil)
	assert.False(t, ok)
}
