package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

func (m *MemoryStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.providers[b.ProviderID]; !ok {
		return ErrNotFound
	}
	if _, ok := m.bookings[b.ID]; ok {
		return ErrConflict
	}
	for _, other := range m.bookings {
		if other.Reference == b.Reference {
			return ErrConflict
		}
	}
	if m.busyLocked(b.ProviderID) {
		return ErrProviderBusy
	}
	m.bookings[b.ID] = b.Clone()
	return nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// UpdateBooking mirrors the MySQL column set: live-location and pricing
// fields keep their stored values.
func (m *MemoryStore) UpdateBooking(ctx context.Context, b *model.Booking, expected model.StateVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.bookings[b.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.State() != expected {
		return ErrStaleState
	}
	next := b.Clone()
	next.Tracking = cur.Clone().Tracking
	next.CustomerChatToken = cur.CustomerChatToken
	next.EscrowAmount = cur.EscrowAmount
	next.CommissionAmount = cur.CommissionAmount
	next.ProviderPayoutAmount = cur.ProviderPayoutAmount
	next.CustomerRating, next.CustomerReview = cur.CustomerRating, cur.CustomerReview
	next.ProviderRating = cur.ProviderRating
	m.bookings[b.ID] = next
	return nil
}

func (m *MemoryStore) SaveRating(ctx context.Context, bookingID string, rater model.Role, rating int, review string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != model.StatusCompleted {
		return ErrStaleState
	}
	v := rating
	switch rater {
	case model.RoleCustomer:
		if b.CustomerRating != nil {
			return ErrStaleState
		}
		b.CustomerRating, b.CustomerReview = &v, review
	case model.RoleProvider:
		if b.ProviderRating != nil {
			return ErrStaleState
		}
		b.ProviderRating = &v
	default:
		return fmt.Errorf("save rating: unsupported role %q", rater)
	}
	b.UpdatedAt = at.UTC()
	return nil
}

func (m *MemoryStore) SaveLiveLocation(ctx context.Context, bookingID string, role model.Role, p model.GeoPoint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	switch role {
	case model.RoleCustomer:
		b.CustomerLocation, b.CustomerLocationAt = &p, &at
	case model.RoleProvider:
		b.ProviderLocation, b.ProviderLocationAt = &p, &at
	default:
		return fmt.Errorf("save live location: unsupported role %q", role)
	}
	b.UpdatedAt = at
	return nil
}

func (m *MemoryStore) SaveTracking(ctx context.Context, bookingID string, t model.Tracking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return ErrNotFound
	}
	c := (&model.Booking{Tracking: t}).Clone()
	b.DistanceApart = c.DistanceApart
	b.ProximityDetected = c.ProximityDetected
	b.ProximityDetectedAt = c.ProximityDetectedAt
	b.ProximityStartTime = c.ProximityStartTime
	b.CanStartJob = c.CanStartJob
	return nil
}

func (m *MemoryStore) AverageRating(ctx context.Context, role model.Role, userID uint64) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum, n int
	for _, b := range m.bookings {
		if b.Status != model.StatusCompleted {
			continue
		}
		var r *int
		switch {
		case role == model.RoleProvider && b.ProviderID == userID:
			r = b.CustomerRating
		case role == model.RoleCustomer && b.CustomerID == userID:
			r = b.ProviderRating
		}
		if r != nil {
			sum += *r
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}
