package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
)

// RateBooking records the customer's rating of the provider and recomputes
// the provider's average.
func (s *BookingService) RateBooking(ctx context.Context, actor model.Actor, id string, rating int, review string) (*BookingView, error) {
	ctx, span := spanBooking(ctx, "BookingService.RateBooking", id)
	defer span.End()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleCustomer || b.CustomerID != actor.UserID {
		return nil, forbidden("only the booking's customer can rate the provider")
	}
	if err := checkRatable(b, rating, b.CustomerRating); err != nil {
		return nil, err
	}
	review = strings.TrimSpace(review)
	if err := s.saveRating(ctx, b, model.RoleCustomer, rating, review); err != nil {
		return nil, err
	}
	b.CustomerRating = &rating
	b.CustomerReview = review
	s.recomputeRating(ctx, model.RoleProvider, b.ProviderID)
	s.logActivity(ctx, actor.UserID, "provider_rated", b.ID, map[string]any{"rating": rating})
	return s.view(ctx, b, actor), nil
}

// RateCustomer records the provider's rating of the customer and recomputes
// the customer's average.
func (s *BookingService) RateCustomer(ctx context.Context, actor model.Actor, id string, rating int) (*BookingView, error) {
	ctx, span := spanBooking(ctx, "BookingService.RateCustomer", id)
	defer span.End()

	b, err := s.loadForProvider(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := checkRatable(b, rating, b.ProviderRating); err != nil {
		return nil, err
	}
	if err := s.saveRating(ctx, b, model.RoleProvider, rating, ""); err != nil {
		return nil, err
	}
	b.ProviderRating = &rating
	s.recomputeRating(ctx, model.RoleCustomer, b.CustomerID)
	s.logActivity(ctx, actor.UserID, "customer_rated", b.ID, map[string]any{"rating": rating})
	return s.view(ctx, b, actor), nil
}

func checkRatable(b *model.Booking, rating int, existing *int) error {
	if b.Status != model.StatusCompleted {
		return invalidState("rate", b, "only completed bookings can be rated")
	}
	if existing != nil {
		return invalidState("rate", b, "already rated")
	}
	if rating < 1 || rating > 5 {
		return invalidField("rating", "must be between 1 and 5")
	}
	return nil
}

// saveRating writes the rater's side of b. Losing a race against another
// rating of the same side is reported like rating twice.
func (s *BookingService) saveRating(ctx context.Context, b *model.Booking, rater model.Role, rating int, review string) error {
	err := s.bookings.SaveRating(ctx, b.ID, rater, rating, review, s.now().UTC())
	if errors.Is(err, repository.ErrStaleState) {
		cur, gerr := s.bookings.GetBooking(ctx, b.ID)
		if gerr != nil {
			cur = b
		}
		return invalidState("rate", cur, "already rated")
	}
	if err != nil {
		return mapStoreErr(err, "booking")
	}
	return nil
}

// recomputeRating averages every rating the user received on completed
// bookings. The booking write has already succeeded, so a failure here is
// only logged.
func (s *BookingService) recomputeRating(ctx context.Context, role model.Role, userID uint64) {
	avg, n, err := s.bookings.AverageRating(ctx, role, userID)
	if err != nil {
		slog.WarnContext(ctx, "rating_recompute_failed", "user_id", userID, "error", err)
		return
	}
	if err := s.users.SetRating(ctx, userID, avg, n); err != nil {
		slog.WarnContext(ctx, "rating_save_failed", "user_id", userID, "error", err)
	}
}
