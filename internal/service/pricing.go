package service

import (
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

var (
	// DefaultCommissionRate is the platform's share of the non-tip amount.
	DefaultCommissionRate = decimal.RequireFromString("0.15")
	// DefaultSLAPenaltyRate is charged per hour over the estimate, as a
	// fraction of the calculated price.
	DefaultSLAPenaltyRate = decimal.RequireFromString("0.10")

	sixty = decimal.NewFromInt(60)
)

// PricingEngine holds the marketplace's money rules. All methods are pure.
type PricingEngine struct {
	CommissionRate decimal.Decimal
	SLAPenaltyRate decimal.Decimal
}

// NewPricingEngine returns an engine with the given rates; zero rates fall
// back to the defaults.
func NewPricingEngine(commission, slaPenalty decimal.Decimal) PricingEngine {
	if commission.IsZero() {
		commission = DefaultCommissionRate
	}
	if slaPenalty.IsZero() {
		slaPenalty = DefaultSLAPenaltyRate
	}
	return PricingEngine{CommissionRate: commission, SLAPenaltyRate: slaPenalty}
}

// Quote is the outcome of pricing a booking.
type Quote struct {
	Multiplier      decimal.Decimal
	CalculatedPrice decimal.Decimal
}

// Price applies the job-size multiplier to basePrice. For custom jobs the
// customer's price replaces the computed one and must be positive.
func (PricingEngine) Price(basePrice decimal.Decimal, size model.JobSize, customPrice *decimal.Decimal) (Quote, error) {
	m, ok := size.Multiplier()
	if !ok {
		return Quote{}, invalidField("job_size", "must be one of small, medium, large, custom")
	}
	if size == model.JobCustom {
		if customPrice == nil || !customPrice.IsPositive() {
			return Quote{}, invalidField("custom_price", "required and positive when job_size is custom")
		}
		return Quote{Multiplier: m, CalculatedPrice: customPrice.Round(2)}, nil
	}
	if basePrice.IsNegative() {
		return Quote{}, invalidField("base_price", "must not be negative")
	}
	return Quote{Multiplier: m, CalculatedPrice: basePrice.Mul(m).Round(2)}, nil
}

// Commission is rate × (amount − tip). The tip is never commissioned.
func (PricingEngine) Commission(amount, tip, rate decimal.Decimal) decimal.Decimal {
	base := amount.Sub(tip)
	if base.IsNegative() {
		base = decimal.Zero
	}
	return base.Mul(rate).Round(2)
}

// SLAPenalty returns whether the estimate was exceeded and the resulting
// penalty: price × rate × hoursOver, with fractional hours allowed. An
// estimate of zero means no SLA was agreed.
func (e PricingEngine) SLAPenalty(price decimal.Decimal, estimatedMin, actualMin int) (bool, decimal.Decimal) {
	if estimatedMin <= 0 || actualMin <= estimatedMin {
		return false, decimal.Zero
	}
	hoursOver := decimal.NewFromInt(int64(actualMin - estimatedMin)).Div(sixty)
	return true, price.Mul(e.SLAPenaltyRate).Mul(hoursOver).Round(2)
}

// Settle computes the escrow split for a payment. Payout is floored at zero
// so a large SLA penalty can absorb the commission margin but never charge
// the provider.
func (e PricingEngine) Settle(p *model.Payment, slaPenalty decimal.Decimal) model.Settlement {
	rate := p.CommissionRate
	if rate.IsZero() {
		rate = e.CommissionRate
	}
	commission := e.Commission(p.Amount, p.TipAmount, rate)
	payout := p.Amount.Sub(commission).Sub(slaPenalty)
	if payout.IsNegative() {
		payout = decimal.Zero
	}
	return model.Settlement{
		PaymentID:        p.ID,
		BookingID:        p.BookingID,
		ProviderID:       p.ProviderID,
		Amount:           p.Amount,
		TipAmount:        p.TipAmount,
		BaseAmount:       p.Amount.Sub(p.TipAmount),
		CommissionRate:   rate,
		CommissionAmount: commission,
		SLAPenalty:       slaPenalty,
		ProviderPayout:   payout,
	}
}
