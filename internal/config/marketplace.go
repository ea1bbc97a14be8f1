package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Marketplace holds the booking, pricing and integration settings.
type Marketplace struct {
	CommissionRate   decimal.Decimal `envconfig:"COMMISSION_RATE" default:"0.15"`
	SLAPenaltyRate   decimal.Decimal `envconfig:"SLA_PENALTY_RATE" default:"0.10"`
	ProximityRadiusM float64         `envconfig:"PROXIMITY_RADIUS_M" default:"2"`
	ProximityResetM  float64         `envconfig:"PROXIMITY_RESET_M" default:"5"`
	ProximityDwell   time.Duration   `envconfig:"PROXIMITY_DWELL" default:"5m"`
	ProfileRefreshM  float64         `envconfig:"PROFILE_REFRESH_M" default:"50"`
	MatchRadiusKm    float64         `envconfig:"MATCH_RADIUS_KM" default:"50"`
	Currency         string          `envconfig:"CURRENCY" default:"ZAR"`
	Timezone         string          `envconfig:"TIMEZONE" default:"UTC"`
	BookingRefPrefix string          `envconfig:"BOOKING_REF_PREFIX" default:"BK"`
	PaymentRefPrefix string          `envconfig:"PAYMENT_REF_PREFIX" default:"PAY"`

	OmisePublicKey string `envconfig:"OMISE_PUBLIC_KEY"`
	OmiseSecretKey string `envconfig:"OMISE_SECRET_KEY"`

	RabbitURL        string `envconfig:"RABBITMQ_URL"`
	ActivityExchange string `envconfig:"ACTIVITY_EXCHANGE" default:"marketplace.events"`
	ActivityQueue    string `envconfig:"ACTIVITY_QUEUE" default:"marketplace.activity"`

	MigrateOnStart bool `envconfig:"MIGRATE_ON_START" default:"false"`
}

// LoadMarketplace reads Marketplace from the environment and checks the
// values that would otherwise fail deep inside a request.
func LoadMarketplace() (Marketplace, error) {
	var m Marketplace
	if err := envconfig.Process("", &m); err != nil {
		return m, fmt.Errorf("marketplace config: %w", err)
	}
	if m.CommissionRate.IsNegative() || m.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return m, fmt.Errorf("marketplace config: COMMISSION_RATE must be in [0,1), got %s", m.CommissionRate)
	}
	if m.SLAPenaltyRate.IsNegative() {
		return m, fmt.Errorf("marketplace config: SLA_PENALTY_RATE must not be negative")
	}
	if m.ProximityRadiusM <= 0 || m.ProximityResetM < m.ProximityRadiusM {
		return m, fmt.Errorf("marketplace config: need 0 < PROXIMITY_RADIUS_M <= PROXIMITY_RESET_M")
	}
	if _, err := m.Location(); err != nil {
		return m, fmt.Errorf("marketplace config: TIMEZONE: %w", err)
	}
	return m, nil
}

// Location resolves Timezone.
func (m Marketplace) Location() (*time.Location, error) {
	return time.LoadLocation(m.Timezone)
}
