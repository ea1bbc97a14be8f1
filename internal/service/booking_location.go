package service

import (
	"context"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// LocationUpdate is the proximity state after a location report.
type LocationUpdate struct {
	BookingID         string   `json:"booking_id"`
	Distance          *float64 `json:"distance"` // meters, nil until both parties reported
	ProximityDetected bool     `json:"proximity_detected"`
	CanStartJob       bool     `json:"can_start_job"`
}

// UpdateLocation records a live location from the booking's customer or
// provider and re-evaluates the proximity gate.
func (s *BookingService) UpdateLocation(ctx context.Context, actor model.Actor, id string, point model.GeoPoint) (*LocationUpdate, error) {
	ctx, span := spanBooking(ctx, "BookingService.UpdateLocation", id)
	defer span.End()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var role model.Role
	switch actor.UserID {
	case b.CustomerID:
		role = model.RoleCustomer
	case b.ProviderID:
		role = model.RoleProvider
	default:
		return nil, forbidden("not a party to this booking")
	}
	if b.Status.Terminal() {
		return nil, invalidState("update_location", b, "booking is no longer active")
	}
	p, err := utils.NormalizePoint(point)
	if err != nil {
		return nil, invalidField("location", err.Error())
	}

	now := s.now().UTC()
	if err := s.bookings.SaveLiveLocation(ctx, b.ID, role, p, now); err != nil {
		return nil, mapStoreErr(err, "booking")
	}
	// re-read so the other party's latest position is used
	if b, err = s.load(ctx, b.ID); err != nil {
		return nil, err
	}
	t, _ := s.proximity.Evaluate(b.Tracking, now)
	if err := s.bookings.SaveTracking(ctx, b.ID, t); err != nil {
		return nil, mapStoreErr(err, "booking")
	}

	out := &LocationUpdate{
		BookingID:         b.ID,
		Distance:          t.DistanceApart,
		ProximityDetected: t.ProximityDetected,
		CanStartJob:       t.CanStartJob,
	}
	s.emitBoth(ctx, b, "location-updated", out)
	return out, nil
}
