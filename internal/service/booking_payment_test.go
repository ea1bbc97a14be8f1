package service

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// twoPendingPayments leaves a booking with two live payments, the second
// one carrying a tip.
func twoPendingPayments(t *testing.T, f *fixture, id string) (*model.Payment, *model.Payment) {
	t.Helper()
	a, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_a"})
	require.NoError(t, err)
	b, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_b", Tip: dec("50")})
	require.NoError(t, err)
	require.NotEqual(t, a.Payment.ID, b.Payment.ID)
	return a.Payment, b.Payment
}

func (f *fixture) payment(t *testing.T, id string) *model.Payment {
	t.Helper()
	p, err := f.store.GetPayment(ctx, id)
	require.NoError(t, err)
	return p
}

func TestInitiatePaymentWithNewTipReplacesPendingPayment(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)

	a, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_a", Tip: dec("20")})
	require.NoError(t, err)
	again, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_a", Tip: dec("20.00")})
	require.NoError(t, err)
	assert.Equal(t, a.Payment.ID, again.Payment.ID, "same tip reuses the payment")

	b, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_a", Tip: dec("75")})
	require.NoError(t, err)
	assert.NotEqual(t, a.Payment.ID, b.Payment.ID)
	assertDec(t, "1075", b.Payment.Amount)
	assertDec(t, "75", b.Payment.TipAmount)

	require.Len(t, f.gateway.intents, 3)
	assertDec(t, "1075", f.gateway.intents[2].Amount)

	// the latest payment is the one reused from now on
	c, err := f.svc.InitiatePayment(ctx, f.customer, id, PaymentInput{CardToken: "tokn_a", Tip: dec("75")})
	require.NoError(t, err)
	assert.Equal(t, b.Payment.ID, c.Payment.ID)
}

func TestSecondConfirmedPaymentIsRefunded(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	first, second := twoPendingPayments(t, f, id)

	_, err := f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: id, PaymentID: first.ID})
	require.NoError(t, err)
	b, err := f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: id, PaymentID: second.ID})
	require.NoError(t, err)

	require.NotNil(t, b.PaymentID)
	assert.Equal(t, first.ID, *b.PaymentID)
	assert.Equal(t, model.PaymentPaidToEscrow, b.PaymentStatus)
	assert.Equal(t, model.StatusPendingAcceptance, b.Status)
	assertDec(t, "1000", b.EscrowAmount)

	assert.Equal(t, model.EscrowHeld, f.payment(t, first.ID).EscrowStatus)
	assert.Equal(t, model.EscrowRefunded, f.payment(t, second.ID).EscrowStatus)
	assert.Equal(t, 1, f.notifier.count(f.customer.UserID, "payment-refunded"))

	w, err := f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, "1000", w.TotalHeld)
	assert.Equal(t, []model.WalletTxType{model.TxDeposit, model.TxDeposit, model.TxRefund}, f.txTypes(t, id))

	// redelivery of the refunded confirmation moves nothing
	_, err = f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: id, PaymentID: second.ID})
	require.NoError(t, err)
	assert.Len(t, f.txTypes(t, id), 3)

	_, err = f.svc.AcceptBookingRequest(ctx, f.provider, id)
	require.NoError(t, err)
	f.meet(t, id)
	_, err = f.svc.StartBooking(ctx, f.provider, id)
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	_, err = f.svc.CompleteBooking(ctx, f.provider, id)
	require.NoError(t, err)

	assert.Equal(t, model.EscrowReleased, f.payment(t, first.ID).EscrowStatus)
	assert.Equal(t, model.EscrowRefunded, f.payment(t, second.ID).EscrowStatus)
	assert.Equal(t, model.PaymentReleasedToProvider, f.booking(t, id).PaymentStatus)
	w, err = f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, "0", w.TotalHeld)
}

func TestConcurrentConfirmationsHoldOnePayment(t *testing.T) {
	f := newFixture(t)
	id := f.book(t)
	first, second := twoPendingPayments(t, f, id)

	var wg sync.WaitGroup
	for _, p := range []*model.Payment{first, second} {
		wg.Add(1)
		go func(pid string) {
			defer wg.Done()
			_, err := f.svc.ConfirmPayment(ctx, PaymentConfirmation{BookingID: id, PaymentID: pid})
			assert.NoError(t, err)
		}(p.ID)
	}
	wg.Wait()

	b := f.booking(t, id)
	require.NotNil(t, b.PaymentID)
	winner, loser := f.payment(t, first.ID), f.payment(t, second.ID)
	if *b.PaymentID == second.ID {
		winner, loser = loser, winner
	}
	assert.Equal(t, model.EscrowHeld, winner.EscrowStatus)
	assert.Equal(t, model.EscrowRefunded, loser.EscrowStatus)
	assertDec(t, winner.Amount.String(), b.EscrowAmount)

	w, err := f.svc.Ledger().Wallet(ctx)
	require.NoError(t, err)
	assertDec(t, winner.Amount.String(), w.TotalHeld)
}
