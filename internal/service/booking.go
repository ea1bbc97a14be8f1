package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// Deps are the collaborators of BookingService. Notifier, Workflow and
// Activity may be nil; their calls are then dropped.
type Deps struct {
	Bookings  BookingStore
	Payments  PaymentStore
	Users     UserStore
	Directory ProviderDirectory
	Sequence  Sequence
	Gateway   PaymentGateway
	Notifier  Notifier
	Workflow  WorkflowRecorder
	Activity  ActivityLogger
}

// Options tune BookingService behaviour.
type Options struct {
	Pricing              PricingEngine
	Proximity            ProximityTracker
	MatchRadiusKm        float64
	ProfileRefreshMeters float64
	Currency             string
	BookingRefPrefix     string
	PaymentRefPrefix     string
	Location             *time.Location
	Now                  func() time.Time
}

// BookingService is the booking lifecycle state machine.
type BookingService struct {
	bookings  BookingStore
	payments  PaymentStore
	users     UserStore
	dir       ProviderDirectory
	seq       Sequence
	gateway   PaymentGateway
	notifier  Notifier
	workflow  WorkflowRecorder
	activity  ActivityLogger
	ledger    *EscrowLedger
	matcher   *ProviderMatcher
	pricing   PricingEngine
	proximity ProximityTracker

	refreshMeters float64
	currency      string
	bookingPrefix string
	paymentPrefix string
	loc           *time.Location
	now           func() time.Time
}

// NewBookingService wires the state machine.
func NewBookingService(d Deps, o Options) *BookingService {
	if d.Bookings == nil || d.Payments == nil || d.Users == nil || d.Directory == nil || d.Sequence == nil {
		panic("nil store passed to NewBookingService")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Pricing.CommissionRate.IsZero() || o.Pricing.SLAPenaltyRate.IsZero() {
		o.Pricing = NewPricingEngine(o.Pricing.CommissionRate, o.Pricing.SLAPenaltyRate)
	}
	if o.Proximity.DetectMeters <= 0 {
		o.Proximity = NewProximityTracker(0, 0, 0)
	}
	if o.ProfileRefreshMeters <= 0 {
		o.ProfileRefreshMeters = 50
	}
	if o.Currency == "" {
		o.Currency = "ZAR"
	}
	if o.BookingRefPrefix == "" {
		o.BookingRefPrefix = "BK"
	}
	if o.PaymentRefPrefix == "" {
		o.PaymentRefPrefix = "PAY"
	}
	s := &BookingService{
		bookings:      d.Bookings,
		payments:      d.Payments,
		users:         d.Users,
		dir:           d.Directory,
		seq:           d.Sequence,
		gateway:       d.Gateway,
		notifier:      d.Notifier,
		workflow:      d.Workflow,
		activity:      d.Activity,
		pricing:       o.Pricing,
		proximity:     o.Proximity,
		refreshMeters: o.ProfileRefreshMeters,
		currency:      strings.ToUpper(o.Currency),
		bookingPrefix: o.BookingRefPrefix,
		paymentPrefix: o.PaymentRefPrefix,
		loc:           o.Location,
		now:           o.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.workflow == nil {
		s.workflow = nopWorkflow{}
	}
	if s.activity == nil {
		s.activity = nopActivity{}
	}
	s.ledger = NewEscrowLedger(d.Payments, d.Bookings, o.Pricing, o.Now)
	s.matcher = NewProviderMatcher(d.Directory, o.MatchRadiusKm)
	return s
}

// Ledger exposes the escrow ledger the service settles through.
func (s *BookingService) Ledger() *EscrowLedger { return s.ledger }

// CreateBookingRequest is the customer's booking request. Exactly one of
// ServiceID or ServiceTitle+RequiredSkills identifies the work.
type CreateBookingRequest struct {
	ServiceID                uint64
	ServiceTitle             string
	RequiredSkills           []string
	Date                     string // YYYY-MM-DD
	Time                     string // HH:MM
	Location                 *model.GeoPoint
	Notes                    string
	EstimatedDurationMinutes int
	JobSize                  model.JobSize
	CustomPrice              *decimal.Decimal
}

// CreateResult is either a created booking or a queued request. Queued
// means no provider is available right now and nothing was persisted.
type CreateResult struct {
	Booking *BookingView
	Match   *MatchResult
	Queued  bool
}

// CreateBooking validates the request, resolves a provider, prices the job
// and persists a booking awaiting payment.
func (s *BookingService) CreateBooking(ctx context.Context, actor model.Actor, req CreateBookingRequest) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "BookingService.CreateBooking")
	defer span.End()

	if actor.Role != model.RoleCustomer {
		return nil, forbidden("only customers can create bookings")
	}
	if req.Location == nil {
		return nil, invalidField("location", "device location is required")
	}
	loc, err := utils.NormalizePoint(*req.Location)
	if err != nil {
		return nil, invalidField("location", err.Error())
	}

	title := strings.TrimSpace(req.ServiceTitle)
	skills := model.NormalizeSkills(req.RequiredSkills)
	switch {
	case req.ServiceID != 0 && title != "":
		return nil, invalidField("service_id", "provide either service_id or service_title, not both")
	case req.ServiceID == 0 && title == "":
		return nil, invalidField("service_title", "service_id or service_title is required")
	case req.ServiceID == 0 && len(skills) == 0:
		return nil, invalidField("required_skills", "required when booking by service_title")
	}

	size := model.JobSize(strings.ToLower(strings.TrimSpace(string(req.JobSize))))
	if size == "" {
		size = model.JobSmall
	}
	if _, ok := size.Multiplier(); !ok {
		return nil, invalidField("job_size", "must be one of small, medium, large, custom")
	}
	if size == model.JobCustom && (req.CustomPrice == nil || !req.CustomPrice.IsPositive()) {
		return nil, invalidField("custom_price", "required and positive when job_size is custom")
	}
	if req.EstimatedDurationMinutes < 0 {
		return nil, invalidField("estimated_duration_minutes", "must not be negative")
	}
	scheduledAt, err := s.validateSchedule(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	s.refreshProfileLocation(ctx, actor.UserID, loc)

	match, err := s.resolveProvider(ctx, req.ServiceID, title, skills, loc)
	if err != nil {
		return nil, err
	}
	if match == nil {
		slog.InfoContext(ctx, "booking_queued", "customer_id", actor.UserID, "service_id", req.ServiceID, "title", title)
		return &CreateResult{Queued: true}, nil
	}
	span.SetAttributes(attribute.Int64("provider.id", int64(match.Provider.UserID)))

	quote, err := s.pricing.Price(match.AdjustedPrice, size, req.CustomPrice)
	if err != nil {
		return nil, err
	}

	n, err := s.seq.Next(ctx, "booking")
	if err != nil {
		return nil, err
	}
	estimated := req.EstimatedDurationMinutes
	if estimated == 0 {
		estimated = match.Service.DurationMinutes
	}
	now := s.now().UTC()
	b := &model.Booking{
		ID:                       uuid.NewString(),
		Reference:                utils.FormatReference(s.bookingPrefix, n),
		CustomerID:               actor.UserID,
		ServiceID:                match.Service.ID,
		ProviderID:               match.Provider.UserID,
		Status:                   model.StatusPendingPayment,
		RequestStatus:            model.RequestPending,
		PaymentStatus:            model.PaymentPending,
		Date:                     req.Date,
		Time:                     req.Time,
		ScheduledAt:              scheduledAt,
		Location:                 loc,
		Notes:                    strings.TrimSpace(req.Notes),
		EstimatedDurationMinutes: estimated,
		JobSize:                  size,
		JobSizeMultiplier:        quote.Multiplier,
		BasePrice:                match.AdjustedPrice,
		CalculatedPrice:          quote.CalculatedPrice,
		LocationMultiplier:       match.LocationMultiplier,
		ProviderDistance:         match.Distance,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := s.bookings.CreateBooking(ctx, b); err != nil {
		if errors.Is(err, repository.ErrProviderBusy) {
			slog.InfoContext(ctx, "booking_queued", "customer_id", actor.UserID, "reason", "provider_taken")
			return &CreateResult{Queued: true}, nil
		}
		return nil, err
	}

	s.startWorkflow(ctx, model.NewBookingWorkflow(b.ID, now))
	s.emit(ctx, b.ProviderID, "new-booking-request", map[string]any{
		"booking_id":       b.ID,
		"reference":        b.Reference,
		"service_title":    match.Service.Title,
		"calculated_price": b.CalculatedPrice,
		"date":             b.Date,
		"time":             b.Time,
	})
	s.logActivity(ctx, actor.UserID, "booking_created", b.ID, map[string]any{"reference": b.Reference})

	view := s.present(b, actor, &match.Service, &match.Provider)
	view.ProviderMatch = match
	return &CreateResult{Booking: view, Match: match}, nil
}

// GetBooking returns a booking to its customer or provider.
func (s *BookingService) GetBooking(ctx context.Context, actor model.Actor, id string) (*BookingView, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isParty(b, actor) {
		return nil, forbidden("not a party to this booking")
	}
	return s.view(ctx, b, actor), nil
}

// validateSchedule enforces same-day booking: the date must be today in the
// service's time zone and the time, when given, not already past.
func (s *BookingService) validateSchedule(date, clock string) (time.Time, error) {
	now := s.now().In(s.loc)
	date = strings.TrimSpace(date)
	d, err := time.ParseInLocation("2006-01-02", date, s.loc)
	if err != nil {
		return time.Time{}, invalidField("date", "must be formatted YYYY-MM-DD")
	}
	if d.Format("2006-01-02") != now.Format("2006-01-02") {
		return time.Time{}, invalidField("date", "bookings can only be made for today")
	}
	clock = strings.TrimSpace(clock)
	if clock == "" {
		return now.Truncate(time.Minute).UTC(), nil
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, invalidField("time", "must be formatted HH:MM")
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, s.loc)
	if at.Before(now.Truncate(time.Minute)) {
		return time.Time{}, invalidField("time", "is already in the past")
	}
	return at.UTC(), nil
}

// refreshProfileLocation keeps the customer's stored location current. It
// never fails the booking.
func (s *BookingService) refreshProfileLocation(ctx context.Context, userID uint64, loc model.GeoPoint) {
	u, err := s.users.GetUser(ctx, userID)
	if err != nil {
		slog.WarnContext(ctx, "profile_location_lookup_failed", "user_id", userID, "error", err)
		return
	}
	if u.Location != nil && utils.HaversineMeters(*u.Location, loc) <= s.refreshMeters {
		return
	}
	if err := s.users.UpdateUserLocation(ctx, userID, loc); err != nil {
		slog.WarnContext(ctx, "profile_location_update_failed", "user_id", userID, "error", err)
	}
}

// resolveProvider uses a service's assigned provider when they are online
// and free, and falls back to matching otherwise.
func (s *BookingService) resolveProvider(ctx context.Context, serviceID uint64, title string, skills []string, loc model.GeoPoint) (*MatchResult, error) {
	if serviceID == 0 {
		return s.matcher.Match(ctx, MatchRequest{Title: title, Skills: skills, Location: loc})
	}

	svc, err := s.dir.GetService(ctx, serviceID)
	if err != nil {
		return nil, mapStoreErr(err, "service")
	}
	if !svc.Bookable() {
		return nil, invalidField("service_id", "service is not available for booking")
	}
	exclude := map[uint64]bool{}
	if svc.ProviderID != nil {
		p, err := s.dir.GetProvider(ctx, *svc.ProviderID)
		switch {
		case err == nil && p.Online:
			busy, err := s.dir.IsProviderBusy(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			if !busy {
				return &MatchResult{
					Provider:           *p,
					Service:            *svc,
					Distance:           0,
					LocationMultiplier: decimal.NewFromInt(1),
					AdjustedPrice:      svc.BasePrice,
				}, nil
			}
			exclude[p.UserID] = true
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
	}
	return s.matcher.Match(ctx, MatchRequest{
		Title:     svc.Title,
		Skills:    svc.Skills,
		Location:  loc,
		BasePrice: svc.BasePrice,
		Exclude:   exclude,
	})
}

func (s *BookingService) load(ctx context.Context, id string) (*model.Booking, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidField("booking_id", "is required")
	}
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, mapStoreErr(err, "booking")
	}
	return b, nil
}

func (s *BookingService) loadForProvider(ctx context.Context, actor model.Actor, id string) (*model.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleProvider || b.ProviderID != actor.UserID {
		return nil, forbidden("booking belongs to another provider")
	}
	return b, nil
}

// commit writes b if nobody changed its state since expected was read.
func (s *BookingService) commit(ctx context.Context, op string, b *model.Booking, expected model.StateVector) error {
	b.UpdatedAt = s.now().UTC()
	err := s.bookings.UpdateBooking(ctx, b, expected)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStaleState) {
		if cur, gerr := s.bookings.GetBooking(ctx, b.ID); gerr == nil {
			return invalidState(op, cur, "already processed")
		}
		return &StateError{Op: op, State: expected, Reason: "already processed"}
	}
	return mapStoreErr(err, "booking")
}

func isParty(b *model.Booking, actor model.Actor) bool {
	return actor.UserID == b.CustomerID || actor.UserID == b.ProviderID
}

func spanBooking(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("booking.id", id)))
}
