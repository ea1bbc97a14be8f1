package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
)

var (
	ctx   = context.Background()
	today = "2026-03-10"
	home  = model.GeoPoint{Lat: -26.0, Lng: 28.0}
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeGateway struct {
	mu      sync.Mutex
	intents []IntentRequest
	events  map[string]*GatewayEvent
	succeed bool
	err     error
	n       int
}

func (g *fakeGateway) CreateIntent(_ context.Context, in IntentRequest) (*Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.n++
	g.intents = append(g.intents, in)
	status := "pending"
	if g.succeed {
		status = "successful"
	}
	return &Intent{ExternalID: "chrg_test_" + in.PaymentID[:8], Status: status, Succeeded: g.succeed}, nil
}

func (g *fakeGateway) VerifyEvent(_ context.Context, id string) (*GatewayEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ev, ok := g.events[id]
	if !ok {
		return nil, errors.New("event not found")
	}
	c := *ev
	return &c, nil
}

func (g *fakeGateway) addEvent(id string, ev GatewayEvent) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.events == nil {
		g.events = map[string]*GatewayEvent{}
	}
	g.events[id] = &ev
}

type sentEvent struct {
	UserID uint64
	Event  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (r *recordingNotifier) Emit(_ context.Context, userID uint64, event string, _ any) error {
	r.mu.Lock()
	r.sent = append(r.sent, sentEvent{UserID: userID, Event: event})
	r.mu.Unlock()
	return nil
}

func (r *recordingNotifier) count(userID uint64, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.UserID == userID && s.Event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *testClock
	gateway  *fakeGateway
	notifier *recordingNotifier
	svc      *BookingService

	customer  model.Actor
	provider  model.Actor
	serviceID uint64
}

// newFixture seeds one customer and one online, verified plumber standing
// exactly at the customer's home, with a 1000.00 two-hour service.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		clock:    &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		gateway:  &fakeGateway{},
		notifier: &recordingNotifier{},
	}
	f.store.SetClock(f.clock.Now)

	cid := f.store.AddUser(model.User{Email: "thandi@example.com", Name: "Thandi", Role: model.RoleCustomer, IsActive: true})
	f.customer = model.Actor{UserID: cid, Role: model.RoleCustomer}

	loc := home
	pid := f.store.AddProvider(model.Provider{
		Name: "Sipho", Skills: []string{"plumbing"}, Online: true, Verified: true, ProfileComplete: true,
		Location: &loc, Rating: 4.5,
	})
	f.provider = model.Actor{UserID: pid, Role: model.RoleProvider}
	f.serviceID = f.store.AddService(model.Service{
		ProviderID: &pid, Title: "Leak repair", Skills: []string{"plumbing"},
		BasePrice: dec("1000"), DurationMinutes: 120, AdminApproved: true, Active: true,
	})

	f.svc = NewBookingService(Deps{
		Bookings:  f.store,
		Payments:  f.store,
		Users:     f.store,
		Directory: f.store,
		Sequence:  f.store,
		Gateway:   f.gateway,
		Notifier:  f.notifier,
		Workflow:  f.store,
		Activity:  f.store,
	}, Options{Now: f.clock.Now})
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func (f *fixture) request() CreateBookingRequest {
	loc := home
	return CreateBookingRequest{ServiceID: f.serviceID, Date: today, Location: &loc}
}

// book creates a booking with the seeded service and returns its id.
func (f *fixture) book(t *testing.T) string {
	t.Helper()
	res, err := f.svc.CreateBooking(ctx, f.customer, f.request())
	require.NoError(t, err)
	require.False(t, res.Queued)
	return res.Booking.ID
}

// pay initiates a payment and delivers the gateway's success webhook.
func (f *fixture) pay(t *testing.T, id string) *model.Payment {
	t.Helper()
	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_test"})
	require.NoError(t, err)
	evID := "evnt_" + res.Payment.ID
	f.gateway.addEvent(evID, GatewayEvent{
		Relevant: true, Succeeded: true,
		BookingID: id, PaymentID: res.Payment.ID, ExternalID: res.Intent.ExternalID,
	})
	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, evID))
	return res.Payment
}

// meet reports both parties at the booking location and waits out the
// dwell time so the provider may start.
func (f *fixture) meet(t *testing.T, id string) {
	t.Helper()
	_, err := f.svc.UpdateLocation(ctx, f.customer, id, home)
	require.NoError(t, err)
	_, err = f.svc.UpdateLocation(ctx, f.provider, id, home)
	require.NoError(t, err)
	f.clock.Advance(5 * time.Minute)
	u, err := f.svc.UpdateLocation(ctx, f.provider, id, home)
	require.NoError(t, err)
	require.True(t, u.CanStartJob)
}

// started returns a booking that is paid, accepted and in progress.
func (f *fixture) started(t *testing.T) string {
	t.Helper()
	id := f.book(t)
	f.pay(t, id)
	_, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
	require.NoError(t, err)
	f.meet(t, id)
	_, err = f.svc.StartBooking(ctx, f.provider, id)
	require.NoError(t, err)
	return id
}

func (f *fixture) booking(t *testing.T, id string) *model.Booking {
	t.Helper()
	b, err := f.store.GetBooking(ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) txTypes(t *testing.T, id string) []model.WalletTxType {
	t.Helper()
	txs, err := f.svc.Ledger().Transactions(ctx, id)
	require.NoError(t, err)
	out := make([]model.WalletTxType, len(txs))
	for i, tx := range txs {
		out[i] = tx.Type
	}
	return out
}
