package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

func TestPriceJobSizes(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)
	custom := dec("799.999")

	tests := []struct {
		size   model.JobSize
		custom *decimal.Decimal
		multi  string
		price  string
	}{
		{model.JobSmall, nil, "1", "400"},
		{model.JobMedium, nil, "1.5", "600"},
		{model.JobLarge, nil, "2", "800"},
		{model.JobCustom, &custom, "1", "800"},
	}
	for _, tc := range tests {
		t.Run(string(tc.size), func(t *testing.T) {
			q, err := e.Price(dec("400"), tc.size, tc.custom)
			require.NoError(t, err)
			assertDec(t, tc.multi, q.Multiplier)
			assertDec(t, tc.price, q.CalculatedPrice)
		})
	}
}

func TestPriceRejectsBadInput(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)
	zero := decimal.Zero

	_, err := e.Price(dec("100"), model.JobCustom, nil)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "custom_price", ve.Field)

	_, err = e.Price(dec("100"), model.JobCustom, &zero)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.Price(dec("100"), model.JobSize("huge"), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCommissionExcludesTip(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)
	assertDec(t, "150", e.Commission(dec("1100"), dec("100"), e.CommissionRate))
	assertDec(t, "0", e.Commission(dec("50"), dec("80"), e.CommissionRate))
}

func TestSLAPenalty(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)

	tests := []struct {
		name      string
		est, act  int
		breached  bool
		penalty   string
	}{
		{"one hour over", 120, 180, true, "100"},
		{"half hour over", 60, 90, true, "50"},
		{"on time", 120, 120, false, "0"},
		{"early", 120, 30, false, "0"},
		{"no estimate", 0, 500, false, "0"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			breached, penalty := e.SLAPenalty(dec("1000"), tc.est, tc.act)
			assert.Equal(t, tc.breached, breached)
			assertDec(t, tc.penalty, penalty)
		})
	}
}

func TestSettle(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)
	p := &model.Payment{ID: "p1", BookingID: "b1", ProviderID: 9, Amount: dec("1100"), TipAmount: dec("100")}

	s := e.Settle(p, dec("100"))
	assertDec(t, "150", s.CommissionAmount)
	assertDec(t, "850", s.ProviderPayout)
	assertDec(t, "1000", s.BaseAmount)
	assertDec(t, "0.15", s.CommissionRate)

	// a penalty larger than the payout floors at zero
	s = e.Settle(p, dec("5000"))
	assertDec(t, "0", s.ProviderPayout)
}

func TestSettleUsesRateRecordedOnPayment(t *testing.T) {
	e := NewPricingEngine(decimal.Zero, decimal.Zero)
	p := &model.Payment{Amount: dec("200"), TipAmount: decimal.Zero, CommissionRate: dec("0.2")}
	assertDec(t, "40", e.Settle(p, decimal.Zero).CommissionAmount)
}
