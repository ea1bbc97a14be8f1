package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// BookingRepo persists bookings in the `bookings` table.
type BookingRepo struct{ DB *sql.DB }

func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{DB: db} }

const bookingColumns = `id, reference, customer_id, service_id, provider_id, payment_id,
	status, request_status, payment_status,
	booking_date, booking_time, scheduled_at, lat, lng, notes, estimated_duration_minutes,
	job_size, job_size_multiplier, base_price, calculated_price, location_multiplier, provider_distance_km,
	escrow_amount, commission_amount, provider_payout_amount, sla_breached, sla_penalty_amount,
	started_at, completed_at, actual_duration_minutes,
	customer_lat, customer_lng, customer_location_at, provider_lat, provider_lng, provider_location_at,
	distance_apart, proximity_detected, proximity_detected_at, proximity_start_time, can_start_job,
	customer_chat_token, provider_chat_token, chat_active, chat_terminated_at,
	decline_reason, cancel_reason, cancelled_by, cancelled_at,
	customer_rating, customer_review, provider_rating,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                                   model.Booking
		paymentID                           sql.NullString
		startedAt, completedAt              sql.NullTime
		custLat, custLng, provLat, provLng  sql.NullFloat64
		custAt, provAt                      sql.NullTime
		distance                            sql.NullFloat64
		detectedAt, startTime, terminatedAt sql.NullTime
		custToken, provToken                sql.NullString
		declineReason, cancelReason, review sql.NullString
		cancelledBy                         sql.NullInt64
		cancelledAt                         sql.NullTime
		custRating, provRating              sql.NullInt64
		notes                               sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.Reference, &b.CustomerID, &b.ServiceID, &b.ProviderID, &paymentID,
		&b.Status, &b.RequestStatus, &b.PaymentStatus,
		&b.Date, &b.Time, &b.ScheduledAt, &b.Location.Lat, &b.Location.Lng, &notes, &b.EstimatedDurationMinutes,
		&b.JobSize, &b.JobSizeMultiplier, &b.BasePrice, &b.CalculatedPrice, &b.LocationMultiplier, &b.ProviderDistance,
		&b.EscrowAmount, &b.CommissionAmount, &b.ProviderPayoutAmount, &b.SLABreached, &b.SLAPenaltyAmount,
		&startedAt, &completedAt, &b.ActualDurationMinutes,
		&custLat, &custLng, &custAt, &provLat, &provLng, &provAt,
		&distance, &b.ProximityDetected, &detectedAt, &startTime, &b.CanStartJob,
		&custToken, &provToken, &b.ChatActive, &terminatedAt,
		&declineReason, &cancelReason, &cancelledBy, &cancelledAt,
		&custRating, &review, &provRating,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.PaymentID = stringPtr(paymentID)
	b.Notes = notes.String
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	b.CustomerLocation = pointPtr(custLat, custLng)
	b.CustomerLocationAt = timePtr(custAt)
	b.ProviderLocation = pointPtr(provLat, provLng)
	b.ProviderLocationAt = timePtr(provAt)
	b.DistanceApart = floatPtr(distance)
	b.ProximityDetectedAt = timePtr(detectedAt)
	b.ProximityStartTime = timePtr(startTime)
	b.CustomerChatToken = custToken.String
	b.ProviderChatToken = provToken.String
	b.ChatTerminatedAt = timePtr(terminatedAt)
	b.DeclineReason = declineReason.String
	b.CancelReason = cancelReason.String
	b.CancelledBy = uintPtr(cancelledBy)
	b.CancelledAt = timePtr(cancelledAt)
	b.CustomerRating = intPtr(custRating)
	b.CustomerReview = review.String
	b.ProviderRating = intPtr(provRating)
	b.ScheduledAt = b.ScheduledAt.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

// CreateBooking inserts b after locking the provider's profile row and
// checking that the provider holds no other occupying booking. Concurrent
// creations for the same provider serialize on that lock.
func (r *BookingRepo) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var locked uint64
	err = tx.QueryRowContext(ctx,
		"SELECT user_id FROM provider_profiles WHERE user_id=? FOR UPDATE", b.ProviderID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("lock provider: %w", err)
	}
	busy, err := providerBusy(ctx, tx, b.ProviderID)
	if err != nil {
		return err
	}
	if busy {
		return ErrProviderBusy
	}

	cLat, cLng := pointArgs(b.CustomerLocation)
	pLat, pLng := pointArgs(b.ProviderLocation)
	_, err = tx.ExecContext(ctx, "INSERT INTO bookings ("+bookingColumns+") VALUES ("+placeholders(54)+")",
		b.ID, b.Reference, b.CustomerID, b.ServiceID, b.ProviderID, nullString(b.PaymentID),
		b.Status, b.RequestStatus, b.PaymentStatus,
		b.Date, b.Time, b.ScheduledAt.UTC(), b.Location.Lat, b.Location.Lng, b.Notes, b.EstimatedDurationMinutes,
		b.JobSize, b.JobSizeMultiplier, b.BasePrice, b.CalculatedPrice, b.LocationMultiplier, b.ProviderDistance,
		b.EscrowAmount, b.CommissionAmount, b.ProviderPayoutAmount, b.SLABreached, b.SLAPenaltyAmount,
		nullTime(b.StartedAt), nullTime(b.CompletedAt), b.ActualDurationMinutes,
		cLat, cLng, nullTime(b.CustomerLocationAt), pLat, pLng, nullTime(b.ProviderLocationAt),
		nullFloat(b.DistanceApart), b.ProximityDetected, nullTime(b.ProximityDetectedAt), nullTime(b.ProximityStartTime), b.CanStartJob,
		b.CustomerChatToken, b.ProviderChatToken, b.ChatActive, nullTime(b.ChatTerminatedAt),
		b.DeclineReason, b.CancelReason, nullUint(b.CancelledBy), nullTime(b.CancelledAt),
		nullInt(b.CustomerRating), b.CustomerReview, nullInt(b.ProviderRating),
		b.CreatedAt.UTC(), b.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// GetBooking loads a booking by id.
func (r *BookingRepo) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id=? LIMIT 1", id)
	return scanBooking(row)
}

// UpdateBooking writes the mutable lifecycle columns of b, provided the
// stored state vector still equals expected. Live-location columns are
// owned by SaveLiveLocation/SaveTracking and are not touched here.
func (r *BookingRepo) UpdateBooking(ctx context.Context, b *model.Booking, expected model.StateVector) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE bookings SET
		status=?, request_status=?, payment_status=?, payment_id=?,
		sla_breached=?, sla_penalty_amount=?,
		started_at=?, completed_at=?, actual_duration_minutes=?,
		provider_chat_token=?, chat_active=?, chat_terminated_at=?,
		decline_reason=?, cancel_reason=?, cancelled_by=?, cancelled_at=?,
		updated_at=?
		WHERE id=? AND status=? AND request_status=? AND payment_status=?`,
		b.Status, b.RequestStatus, b.PaymentStatus, nullString(b.PaymentID),
		b.SLABreached, b.SLAPenaltyAmount,
		nullTime(b.StartedAt), nullTime(b.CompletedAt), b.ActualDurationMinutes,
		b.ProviderChatToken, b.ChatActive, nullTime(b.ChatTerminatedAt),
		b.DeclineReason, b.CancelReason, nullUint(b.CancelledBy), nullTime(b.CancelledAt),
		b.UpdatedAt.UTC(),
		b.ID, expected.Status, expected.Request, expected.Payment,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	return r.matchedOne(ctx, res, b.ID)
}

// matchedOne turns a conditional update that matched nothing into
// ErrNotFound or ErrStaleState.
func (r *BookingRepo) matchedOne(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.DB.QueryRowContext(ctx, "SELECT 1 FROM bookings WHERE id=?", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return ErrStaleState
}

// SaveRating records one side's rating. The IS NULL condition makes the
// first writer win; a second rating of the same side is ErrStaleState.
func (r *BookingRepo) SaveRating(ctx context.Context, bookingID string, rater model.Role, rating int, review string, at time.Time) error {
	var (
		q    string
		args []any
	)
	switch rater {
	case model.RoleCustomer:
		q = `UPDATE bookings SET customer_rating=?, customer_review=?, updated_at=?
			WHERE id=? AND status='completed' AND customer_rating IS NULL`
		args = []any{rating, review, at.UTC(), bookingID}
	case model.RoleProvider:
		q = `UPDATE bookings SET provider_rating=?, updated_at=?
			WHERE id=? AND status='completed' AND provider_rating IS NULL`
		args = []any{rating, at.UTC(), bookingID}
	default:
		return fmt.Errorf("save rating: unsupported role %q", rater)
	}
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("save rating: %w", err)
	}
	return r.matchedOne(ctx, res, bookingID)
}

// SaveLiveLocation stores one party's position.
func (r *BookingRepo) SaveLiveLocation(ctx context.Context, bookingID string, role model.Role, p model.GeoPoint, at time.Time) error {
	var q string
	switch role {
	case model.RoleCustomer:
		q = "UPDATE bookings SET customer_lat=?, customer_lng=?, customer_location_at=?, updated_at=? WHERE id=?"
	case model.RoleProvider:
		q = "UPDATE bookings SET provider_lat=?, provider_lng=?, provider_location_at=?, updated_at=? WHERE id=?"
	default:
		return fmt.Errorf("save live location: unsupported role %q", role)
	}
	res, err := r.DB.ExecContext(ctx, q, p.Lat, p.Lng, at.UTC(), at.UTC(), bookingID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveTracking stores the derived proximity fields.
func (r *BookingRepo) SaveTracking(ctx context.Context, bookingID string, t model.Tracking) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE bookings SET
		distance_apart=?, proximity_detected=?, proximity_detected_at=?, proximity_start_time=?, can_start_job=?
		WHERE id=?`,
		nullFloat(t.DistanceApart), t.ProximityDetected, nullTime(t.ProximityDetectedAt),
		nullTime(t.ProximityStartTime), t.CanStartJob, bookingID)
	return err
}

// AverageRating averages the ratings a user received on completed bookings.
// For providers that is customer_rating; for customers, provider_rating.
func (r *BookingRepo) AverageRating(ctx context.Context, role model.Role, userID uint64) (float64, int, error) {
	var q string
	switch role {
	case model.RoleProvider:
		q = "SELECT COALESCE(AVG(customer_rating),0), COUNT(customer_rating) FROM bookings WHERE provider_id=? AND status='completed' AND customer_rating IS NOT NULL"
	case model.RoleCustomer:
		q = "SELECT COALESCE(AVG(provider_rating),0), COUNT(provider_rating) FROM bookings WHERE customer_id=? AND status='completed' AND provider_rating IS NOT NULL"
	default:
		return 0, 0, fmt.Errorf("average rating: unsupported role %q", role)
	}
	var (
		avg float64
		n   int
	)
	if err := r.DB.QueryRowContext(ctx, q, userID).Scan(&avg, &n); err != nil {
		return 0, 0, err
	}
	return avg, n, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func providerBusy(ctx context.Context, q queryer, providerID uint64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookings WHERE provider_id=? AND status IN ("+occupyingList()+")",
		providerID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count active bookings: %w", err)
	}
	return n > 0, nil
}

func occupyingList() string {
	parts := make([]string, len(model.OccupyingStatuses))
	for i, s := range model.OccupyingStatuses {
		parts[i] = "'" + string(s) + "'"
	}
	return strings.Join(parts, ",")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
