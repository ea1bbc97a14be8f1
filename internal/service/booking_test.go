package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

func TestCreateBookingWithAssignedProvider(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.CreateBooking(ctx, f.customer, f.request())
	require.NoError(t, err)
	require.False(t, res.Queued)
	v := res.Booking

	assert.Equal(t, "BK-000001", v.Reference)
	assert.Equal(t, model.StatusPendingPayment, v.Status)
	assert.Equal(t, model.RequestPending, v.RequestStatus)
	assert.Equal(t, model.PaymentPending, v.PaymentStatus)
	assert.Zero(t, res.Match.Distance)
	assertDec(t, "1", res.Match.LocationMultiplier)
	assertDec(t, "1000", v.CalculatedPrice)
	assert.Equal(t, 120, v.EstimatedDurationMinutes)
	assert.Equal(t, f.clock.Now(), v.ScheduledAt)

	// the customer does not learn who the provider is yet
	assert.Nil(t, v.ProviderID)
	require.NotNil(t, v.Service)
	assert.Nil(t, v.Service.Provider)

	assert.Equal(t, 1, f.notifier.count(f.provider.UserID, "new-booking-request"))

	wf, err := f.store.GetWorkflow(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 6)
	assert.Equal(t, model.StepCompleted, wf.Steps[0].Status)
	assert.Equal(t, model.StepPending, wf.Steps[1].Status)

	u, err := f.store.GetUser(ctx, f.customer.UserID)
	require.NoError(t, err)
	require.NotNil(t, u.Location)
	assert.Equal(t, home, *u.Location)
}

func TestCreateBookingJobSizes(t *testing.T) {
	custom := dec("2500")
	tests := []struct {
		size  model.JobSize
		price string
	}{
		{"", "1000"},
		{model.JobMedium, "1500"},
		{model.JobLarge, "2000"},
		{model.JobCustom, "2500"},
	}
	for _, tc := range tests {
		t.Run(string(tc.size), func(t *testing.T) {
			f := newFixture(t)
			req := f.request()
			req.JobSize = tc.size
			if tc.size == model.JobCustom {
				req.CustomPrice = &custom
			}
			res, err := f.svc.CreateBooking(ctx, f.customer, req)
			require.NoError(t, err)
			assertDec(t, tc.price, res.Booking.CalculatedPrice)
		})
	}
}

func TestCreateBookingSameDayOnly(t *testing.T) {
	tests := []struct {
		name  string
		date  string
		time  string
		field string
	}{
		{"yesterday", "2026-03-09", "", "date"},
		{"tomorrow", "2026-03-11", "", "date"},
		{"bad date", "10/03/2026", "", "date"},
		{"earlier today", today, "08:30", "time"},
		{"bad time", today, "9am", "time"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := f.request()
			req.Date, req.Time = tc.date, tc.time
			_, err := f.svc.CreateBooking(ctx, f.customer, req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	f := newFixture(t)
	req := f.request()
	req.Time = "15:30"
	res, err := f.svc.CreateBooking(ctx, f.customer, req)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC), res.Booking.ScheduledAt)
}

func TestCreateBookingValidation(t *testing.T) {
	f := newFixture(t)
	null := model.GeoPoint{}

	tests := []struct {
		name   string
		mutate func(*CreateBookingRequest)
		field  string
	}{
		{"no location", func(r *CreateBookingRequest) { r.Location = nil }, "location"},
		{"null island", func(r *CreateBookingRequest) { r.Location = &null }, "location"},
		{"both ids", func(r *CreateBookingRequest) { r.ServiceTitle = "Leak" }, "service_id"},
		{"neither", func(r *CreateBookingRequest) { r.ServiceID = 0 }, "service_title"},
		{"title without skills", func(r *CreateBookingRequest) { r.ServiceID, r.ServiceTitle = 0, "Leak" }, "required_skills"},
		{"custom without price", func(r *CreateBookingRequest) { r.JobSize = model.JobCustom }, "custom_price"},
		{"unknown size", func(r *CreateBookingRequest) { r.JobSize = "huge" }, "job_size"},
		{"negative duration", func(r *CreateBookingRequest) { r.EstimatedDurationMinutes = -5 }, "estimated_duration_minutes"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request()
			tc.mutate(&req)
			_, err := f.svc.CreateBooking(ctx, f.customer, req)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
		})
	}

	_, err := f.svc.CreateBooking(ctx, f.provider, f.request())
	assert.ErrorIs(t, err, ErrForbidden)

	req := f.request()
	req.ServiceID = 999
	_, err = f.svc.CreateBooking(ctx, f.customer, req)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBookingFallsBackWhenProviderBusy(t *testing.T) {
	f := newFixture(t)
	f.book(t)

	other := f.store.AddUser(model.User{Name: "Lerato", Role: model.RoleCustomer, IsActive: true})
	second := model.Actor{UserID: other, Role: model.RoleCustomer}

	// nobody else can do the job
	res, err := f.svc.CreateBooking(ctx, second, f.request())
	require.NoError(t, err)
	assert.True(t, res.Queued)
	assert.Nil(t, res.Booking)

	loc := *offset(10000)
	backup := f.store.AddProvider(model.Provider{
		Name: "Backup", Skills: []string{"plumbing"}, Online: true, Verified: true, ProfileComplete: true,
		Location: &loc, Rating: 3,
	})
	f.store.AddService(model.Service{
		ProviderID: &backup, Title: "Plumbing call-out", Skills: []string{"plumbing"},
		BasePrice: dec("700"), DurationMinutes: 60, AdminApproved: true, Active: true,
	})

	res, err = f.svc.CreateBooking(ctx, second, f.request())
	require.NoError(t, err)
	require.False(t, res.Queued)
	assert.Equal(t, backup, res.Match.Provider.UserID)
	assert.InDelta(t, 10.0, res.Match.Distance, 0.05)
	// the requested service's price is carried over and surcharged
	assertDec(t, "1.1", res.Booking.LocationMultiplier)
	assertDec(t, "1100", res.Booking.CalculatedPrice)
	assert.Equal(t, "BK-000002", res.Booking.Reference)
}

func TestCreateBookingByTitle(t *testing.T) {
	f := newFixture(t)
	loc := home
	res, err := f.svc.CreateBooking(ctx, f.customer, CreateBookingRequest{
		ServiceTitle: "Leak repair", RequiredSkills: []string{"Plumbing"}, Date: today, Location: &loc,
	})
	require.NoError(t, err)
	require.False(t, res.Queued)
	assert.Equal(t, f.provider.UserID, res.Match.Provider.UserID)
	assert.Equal(t, f.serviceID, res.Booking.ServiceID)
}

func TestWebhookDeliveredTwiceDepositsOnce(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)

	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_test", Tip: dec("50")})
	require.NoError(t, err)
	assertDec(t, "1050", res.Payment.Amount)
	assert.Equal(t, "PAY-000001", res.Payment.Reference)
	assert.Equal(t, "ZAR", res.Payment.Currency)
	require.Len(t, f.gateway.intents, 1)
	assertDec(t, "1050", f.gateway.intents[0].Amount)

	// still awaiting the gateway
	b := f.booking(t, id)
	assert.Equal(t, model.StatusPendingPayment, b.Status)

	f.gateway.addEvent("evnt_1", GatewayEvent{
		Relevant: true, Succeeded: true, BookingID: id, PaymentID: res.Payment.ID, ExternalID: res.Intent.ExternalID,
	})
	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, "evnt_1"))
	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, "evnt_1"))

	b = f.booking(t, id)
	assert.Equal(t, model.StatusPendingAcceptance, b.Status)
	assert.Equal(t, model.PaymentPaidToEscrow, b.PaymentStatus)
	assert.NotEmpty(t, b.CustomerChatToken)
	assertDec(t, "1050", b.EscrowAmount)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit}, f.txTypes(t, id))

	w, err := f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, "1050", w.TotalHeld)

	assert.Equal(t, 1, f.notifier.count(f.provider.UserID, "new-paid-booking"))

	wf, err := f.store.GetWorkflow(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StepCompleted, wf.Steps[2].Status)
}

func TestInitiatePaymentReusesPendingPayment(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)

	a, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{SourceID: "src_1"})
	require.NoError(t, err)
	b, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{SourceID: "src_2"})
	require.NoError(t, err)
	assert.Equal(t, a.Payment.ID, b.Payment.ID)
	assert.Len(t, f.gateway.intents, 2)
}

func TestInitiatePaymentImmediateSuccess(t *testing.T) {
	f := newFixture(t)
	f.gateway.succeed = true
	id := f.book(t)

	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_test"})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, model.EscrowHeld, res.Payment.EscrowStatus)
	assert.Equal(t, model.StatusPendingAcceptance, f.booking(t, id).Status)

	_, err = f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_test"})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestInitiatePaymentFailures(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)

	_, err := f.svc.InitiatePayment(ctx, f.provider, id, PaymentInput{CardToken: "tokn"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn", Tip: dec("-1")})
	assert.ErrorIs(t, err, ErrValidation)

	f.gateway.err = errors.New("card declined")
	_, err = f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn"})
	assert.ErrorIs(t, err, ErrUpstream)

	f.svc.gateway = nil
	_, err = f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn"})
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestWebhookFailureAndIrrelevantEvents(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn"})
	require.NoError(t, err)

	f.gateway.addEvent("evnt_fail", GatewayEvent{Relevant: true, BookingID: id, PaymentID: res.Payment.ID, FailureReason: "insufficient_fund"})
	f.gateway.addEvent("evnt_other", GatewayEvent{Relevant: false})

	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, "evnt_fail"))
	require.NoError(t, f.svc.HandlePaymentWebhook(ctx, "evnt_other"))
	assert.Equal(t, 1, f.notifier.count(f.customer.UserID, "payment-failed"))
	assert.Equal(t, model.StatusPendingPayment, f.booking(t, id).Status)

	assert.ErrorIs(t, f.svc.HandlePaymentWebhook(ctx, "evnt_unknown"), ErrUpstream)
	assert.ErrorIs(t, f.svc.HandlePaymentWebhook(ctx, " "), ErrValidation)
}

func TestAcceptBeforePaymentIsRejected(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)

	_, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
	var se *StateError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, model.RequestPending, se.State.Request)
	assert.Equal(t, model.RequestPending, f.booking(t, id).RequestStatus)
}

func TestAcceptTwiceOnlyOnce(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)

	v, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, v.Status)
	assert.True(t, v.ChatActive)
	assert.NotEmpty(t, v.ProviderChatToken)
	assert.Empty(t, v.CustomerChatToken)

	_, err = f.svc.AcceptBookingRequest(ctx, f.provider, id)
	assert.ErrorIs(t, err, ErrInvalidState)

	// once accepted the customer sees the provider
	cv, err := f.svc.GetBooking(ctx, f.customer, id)
	require.NoError(t, err)
	require.NotNil(t, cv.ProviderID)
	assert.Equal(t, f.provider.UserID, *cv.ProviderID)
	require.NotNil(t, cv.Service.Provider)
	assert.Equal(t, "Sipho", cv.Service.Provider.Name)
	assert.Empty(t, cv.ProviderChatToken)
	assert.NotEmpty(t, cv.CustomerChatToken)

	assert.Equal(t, 2, f.notifier.count(f.customer.UserID, "booking-accepted")+f.notifier.count(f.customer.UserID, "chat-ready"))
}

func TestConcurrentAcceptsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		conflict int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInvalidState):
				conflict++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, n-1, conflict)
	assert.Equal(t, model.StatusConfirmed, f.booking(t, id).Status)
}

func TestOnlyPartiesSeeBooking(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	stranger := model.Actor{UserID: f.store.AddUser(model.User{Name: "X", Role: model.RoleCustomer}), Role: model.RoleCustomer}

	_, err := f.svc.GetBooking(ctx, stranger, id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.AcceptBookingRequest(ctx, model.Actor{UserID: stranger.UserID, Role: model.RoleProvider}, id)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.CancelBooking(ctx, stranger, id, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.UpdateLocation(ctx, stranger, id, home)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.GetBooking(ctx, f.customer, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	pv, err := f.svc.GetBooking(ctx, f.provider, id)
	require.NoError(t, err)
	require.NotNil(t, pv.ProviderID)
}

func TestStartRequiresProximityDwell(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)
	_, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
	require.NoError(t, err)

	_, err = f.svc.StartBooking(ctx, f.provider, id)
	assert.ErrorIs(t, err, ErrInvalidState)

	u, err := f.svc.UpdateLocation(ctx, f.customer, id, home)
	require.NoError(t, err)
	assert.Nil(t, u.Distance)

	u, err = f.svc.UpdateLocation(ctx, f.provider, id, *offset(1))
	require.NoError(t, err)
	require.NotNil(t, u.Distance)
	assert.True(t, u.ProximityDetected)
	assert.False(t, u.CanStartJob)

	_, err = f.svc.StartBooking(ctx, f.provider, id)
	assert.ErrorIs(t, err, ErrInvalidState)

	f.clock.Advance(5 * time.Minute)
	u, err = f.svc.UpdateLocation(ctx, f.customer, id, home)
	require.NoError(t, err)
	assert.True(t, u.CanStartJob)

	v, err := f.svc.StartBooking(ctx, f.provider, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, v.Status)
	require.NotNil(t, v.StartedAt)

	_, err = f.svc.UpdateLocation(ctx, f.customer, id, model.GeoPoint{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCompleteWithSLAPenaltyReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.started(t)

	f.clock.Advance(3 * time.Hour)
	v, err := f.svc.CompleteBooking(ctx, f.provider, id)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, v.Status)
	assert.Equal(t, model.PaymentReleasedToProvider, v.PaymentStatus)
	assert.Equal(t, 180, v.ActualDurationMinutes)
	assert.True(t, v.SLABreached)
	assertDec(t, "100", v.SLAPenaltyAmount)
	assertDec(t, "150", v.CommissionAmount)
	assertDec(t, "750", v.ProviderPayoutAmount)
	assert.False(t, v.ChatActive)
	require.NotNil(t, v.Payment)
	assert.Equal(t, model.EscrowReleased, v.Payment.EscrowStatus)

	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxRelease, model.TxCommission, model.TxSLAPenalty}, f.txTypes(t, id))

	w, err := f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, "0", w.TotalHeld)
	assertDec(t, "750", w.TotalReleased)
	assertDec(t, "150", w.TotalCommission)

	p, err := f.store.GetProvider(ctx, f.provider.UserID)
	require.NoError(t, err)
	assertDec(t, "750", p.WalletBalance)
	assert.Equal(t, 1, f.notifier.count(f.provider.UserID, "payment-released"))

	// nothing more to do
	_, err = f.svc.CompleteBooking(ctx, f.provider, id)
	assert.ErrorIs(t, err, ErrInvalidState)
	s, err := f.svc.Ledger().Release(ctx, *v.PaymentID, id)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.Len(t, f.txTypes(t, id), 4)
}

func TestCompleteOnTimeHasNoPenalty(t *testing.T) {
	f := newFixture(t)
	id := f.started(t)

	f.clock.Advance(90*time.Minute + 10*time.Second)
	v, err := f.svc.CompleteBooking(ctx, f.provider, id)
	require.NoError(t, err)
	assert.Equal(t, 91, v.ActualDurationMinutes)
	assert.False(t, v.SLABreached)
	assertDec(t, "850", v.ProviderPayoutAmount)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxRelease, model.TxCommission}, f.txTypes(t, id))
}

func TestCompleteRequiresStart(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)
	_, err := f.svc.AcceptBookingRequest(ctx, f.provider, id)
	require.NoError(t, err)

	_, err = f.svc.CompleteBooking(ctx, f.provider, id)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelRefundsEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)

	v, err := f.svc.CancelBooking(ctx, f.customer, id, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, v.Status)
	assert.Equal(t, model.PaymentRefunded, v.PaymentStatus)
	assert.Equal(t, "changed my mind", v.CancelReason)
	require.NotNil(t, v.CancelledBy)
	assert.Equal(t, f.customer.UserID, *v.CancelledBy)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxRefund}, f.txTypes(t, id))

	w, err := f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, "0", w.TotalHeld)

	_, err = f.svc.CancelBooking(ctx, f.customer, id, "")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1, f.notifier.count(f.provider.UserID, "booking-cancelled"))

	// the provider is free again
	busy, err := f.store.IsProviderBusy(ctx, f.provider.UserID)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestCancelCompletedIsRejected(t *testing.T) {
	f := newFixture(t)
	id := f.started(t)
	_, err := f.svc.CompleteBooking(ctx, f.provider, id)
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, f.customer, id, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestDeclineThenCancelRefunds(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)

	v, err := f.svc.DeclineBookingRequest(ctx, f.provider, id, "too far")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, v.Status)
	assert.Equal(t, model.RequestDeclined, v.RequestStatus)
	assert.Equal(t, model.PaymentPaidToEscrow, v.PaymentStatus)
	assert.Equal(t, "too far", v.DeclineReason)

	_, err = f.svc.DeclineBookingRequest(ctx, f.provider, id, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	v, err = f.svc.CancelBooking(ctx, f.customer, id, "")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentRefunded, v.PaymentStatus)
	assert.Equal(t, model.RequestDeclined, v.RequestStatus)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxRefund}, f.txTypes(t, id))
}

func TestPaymentAfterCancellationIsRefunded(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn"})
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, f.customer, id, "")
	require.NoError(t, err)

	b, err := f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: id, PaymentID: res.Payment.ID, ExternalID: "chrg_late"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, b.Status)
	assert.Equal(t, model.PaymentRefunded, b.PaymentStatus)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxRefund}, f.txTypes(t, id))
	assert.Equal(t, 1, f.notifier.count(f.customer.UserID, "payment-refunded"))
}

func TestConfirmPaymentRejectsMismatchedBooking(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	res, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn"})
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: "other", PaymentID: res.Payment.ID})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmation{PaymentID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRatings(t *testing.T) {
	f := newFixture(t)
	first := f.started(t)

	_, err := f.svc.RateBooking(ctx, f.customer, first, 5, "")
	assert.ErrorIs(t, err, ErrInvalidState, "in-progress bookings cannot be rated")

	_, err = f.svc.CompleteBooking(ctx, f.provider, first)
	require.NoError(t, err)

	_, err = f.svc.RateBooking(ctx, f.customer, first, 6, "")
	assert.ErrorIs(t, err, ErrValidation)

	v, err := f.svc.RateBooking(ctx, f.customer, first, 5, "  great work ")
	require.NoError(t, err)
	assert.Equal(t, "great work", v.CustomerReview)

	_, err = f.svc.RateBooking(ctx, f.customer, first, 4, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	second := f.started(t)
	_, err = f.svc.CompleteBooking(ctx, f.provider, second)
	require.NoError(t, err)
	_, err = f.svc.RateBooking(ctx, f.customer, second, 2, "")
	require.NoError(t, err)

	u, err := f.store.GetUser(ctx, f.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, u.Rating)
	assert.Equal(t, 2, u.RatingCount)

	_, err = f.svc.RateCustomer(ctx, f.customer, first, 5)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.RateCustomer(ctx, f.provider, first, 4)
	require.NoError(t, err)
	c, err := f.store.GetUser(ctx, f.customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, c.Rating)
}

func TestActivityIsRecorded(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	f.pay(t, id)

	var actions []string
	for _, a := range f.store.Activities() {
		if a.BookingID == id {
			actions = append(actions, a.Action)
		}
	}
	assert.Equal(t, []string{"booking_created", "payment_initiated", "payment_confirmed"}, actions)
}

func TestDefaultsApplied(t *testing.T) {
	f := newFixture(t)
	assertDec(t, "0.15", f.svc.pricing.CommissionRate)
	assertDec(t, "0.1", f.svc.pricing.SLAPenaltyRate)
	assert.Equal(t, "ZAR", f.svc.currency)
	assert.Equal(t, time.UTC, f.svc.loc)
	assert.Equal(t, "BK", f.svc.bookingPrefix)
	assert.Equal(t, 2.0, f.svc.proximity.DetectMeters)
}

func TestConcurrentRatingsKeepTheFirst(t *testing.T) {
	f := newFixture(t)
	id := f.started(t)
	_, err := f.svc.CompleteBooking(ctx, f.provider, id)
	require.NoError(t, err)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    []int
		stale  int
		others []error
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, err := f.svc.RateBooking(ctx, f.customer, id, rating, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, rating)
			case errors.Is(err, ErrInvalidState):
				stale++
			default:
				others = append(others, err)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	require.Empty(t, others)
	require.Len(t, won, 1)
	assert.Equal(t, 7, stale)
	b := f.booking(t, id)
	require.NotNil(t, b.CustomerRating)
	assert.Equal(t, won[0], *b.CustomerRating)

	// the provider's side is independent and leaves the customer's intact
	_, err = f.svc.RateCustomer(ctx, f.provider, id, 3)
	require.NoError(t, err)
	b = f.booking(t, id)
	require.NotNil(t, b.ProviderRating)
	assert.Equal(t, 3, *b.ProviderRating)
	assert.Equal(t, won[0], *b.CustomerRating)
}

func TestCreateBookingRefreshesProfileLocation(t *testing.T) {
	tests := []struct {
		name   string
		stored *model.GeoPoint
		want   model.GeoPoint
	}{
		{"no stored location", nil, home},
		{"moved far away", offset(200), home},
		{"within refresh distance", offset(30), *offset(30)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.stored != nil {
				require.NoError(t, f.store.UpdateUserLocation(ctx, f.customer.UserID, *tc.stored))
			}
			f.book(t)

			u, err := f.store.GetUser(ctx, f.customer.UserID)
			require.NoError(t, err)
			require.NotNil(t, u.Location)
			assert.Equal(t, tc.want, *u.Location)
		})
	}
}
