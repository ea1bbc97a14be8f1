// Package payment adapts the Omise API to the booking service's payment
// gateway port.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

const chargeComplete = "charge.complete"

var hundred = decimal.NewFromInt(100)

// OmiseGateway creates charges and verifies webhook events with Omise.
type OmiseGateway struct {
	client *omise.Client
}

// NewOmiseClient builds an Omise client with debug output disabled.
func NewOmiseClient(publicKey, secretKey string) (*omise.Client, error) {
	c, err := omise.NewClient(publicKey, secretKey)
	if err != nil {
		return nil, err
	}
	c.SetDebug(false)
	return c, nil
}

func NewOmiseGateway(c *omise.Client) *OmiseGateway { return &OmiseGateway{client: c} }

// CreateIntent charges the card token or source. Amounts go to Omise in
// the currency's minor unit.
func (g *OmiseGateway) CreateIntent(ctx context.Context, in service.IntentRequest) (*service.Intent, error) {
	if !in.Amount.IsPositive() {
		return nil, errors.New("omise: amount must be positive")
	}
	req := &operations.CreateCharge{
		Amount:   in.Amount.Mul(hundred).Round(0).IntPart(),
		Currency: strings.ToLower(in.Currency),
		Metadata: map[string]interface{}{
			"booking_id": in.BookingID,
			"payment_id": in.PaymentID,
		},
	}
	switch {
	case in.CardToken != "":
		req.Card = in.CardToken
	case in.SourceID != "":
		req.Source = in.SourceID
	default:
		return nil, errors.New("omise: card token or source id required")
	}

	ch := &omise.Charge{}
	if err := g.client.Do(ch, req); err != nil {
		return nil, fmt.Errorf("omise create charge: %w", err)
	}
	status := string(ch.Status)
	log.Printf("omise: charge %s for booking %s is %s", ch.ID, in.BookingID, status)
	if status == "failed" {
		reason := "charge failed"
		if ch.FailureCode != nil {
			reason = *ch.FailureCode
		}
		return nil, fmt.Errorf("omise: %s", reason)
	}
	return &service.Intent{
		ExternalID: ch.ID,
		Status:     status,
		Succeeded:  status == "successful",
	}, nil
}

// VerifyEvent re-fetches the event from Omise so that only events Omise
// actually emitted are acted on.
func (g *OmiseGateway) VerifyEvent(ctx context.Context, eventID string) (*service.GatewayEvent, error) {
	ev := &omise.Event{}
	if err := g.client.Do(ev, &operations.RetrieveEvent{EventID: eventID}); err != nil {
		return nil, fmt.Errorf("omise retrieve event: %w", err)
	}
	if ev.Key != chargeComplete {
		return &service.GatewayEvent{Relevant: false}, nil
	}
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("omise event data: %w", err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("omise event charge: %w", err)
	}
	out := &service.GatewayEvent{
		Relevant:   true,
		Succeeded:  string(ch.Status) == "successful",
		ExternalID: ch.ID,
	}
	out.BookingID, _ = ch.Metadata["booking_id"].(string)
	out.PaymentID, _ = ch.Metadata["payment_id"].(string)
	if !out.Succeeded && ch.FailureCode != nil {
		out.FailureReason = *ch.FailureCode
	}
	return out, nil
}
