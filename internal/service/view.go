package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// ProviderSummary is the public face of a provider.
type ProviderSummary struct {
	ID     uint64  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
}

// ServiceSummary is the service payload attached to a booking response.
type ServiceSummary struct {
	ID              uint64           `json:"id"`
	Title           string           `json:"title"`
	BasePrice       decimal.Decimal  `json:"base_price"`
	DurationMinutes int              `json:"duration_minutes"`
	Provider        *ProviderSummary `json:"provider,omitempty"`
}

// BookingView is a booking as one party sees it. The top-level fields
// shadow the embedded booking's so that identity and the counterparty's
// chat token can be withheld.
type BookingView struct {
	*model.Booking
	ProviderID        *uint64         `json:"provider_id,omitempty"`
	CustomerChatToken string          `json:"customer_chat_token,omitempty"`
	ProviderChatToken string          `json:"provider_chat_token,omitempty"`
	Service           *ServiceSummary `json:"service,omitempty"`
	ProviderMatch     *MatchResult    `json:"provider_match,omitempty"`
	Payment           *model.Payment  `json:"payment,omitempty"`
}

// present builds the view for actor. Customers do not learn who the
// provider is until the request has been accepted.
func (s *BookingService) present(b *model.Booking, actor model.Actor, svc *model.Service, p *model.Provider) *BookingView {
	v := &BookingView{Booking: b}
	revealProvider := actor.Role != model.RoleCustomer || b.RequestStatus == model.RequestAccepted

	if revealProvider {
		id := b.ProviderID
		v.ProviderID = &id
	}
	switch actor.UserID {
	case b.CustomerID:
		v.CustomerChatToken = b.CustomerChatToken
	case b.ProviderID:
		v.ProviderChatToken = b.ProviderChatToken
	}
	if svc != nil {
		v.Service = &ServiceSummary{
			ID:              svc.ID,
			Title:           svc.Title,
			BasePrice:       svc.BasePrice,
			DurationMinutes: svc.DurationMinutes,
		}
		if revealProvider && p != nil {
			v.Service.Provider = &ProviderSummary{ID: p.UserID, Name: p.Name, Rating: p.Rating}
		}
	}
	return v
}

// view loads the service and provider for b. Lookup failures only shrink
// the response.
func (s *BookingService) view(ctx context.Context, b *model.Booking, actor model.Actor) *BookingView {
	var (
		svc *model.Service
		p   *model.Provider
	)
	if v, err := s.dir.GetService(ctx, b.ServiceID); err == nil {
		svc = v
	}
	if v, err := s.dir.GetProvider(ctx, b.ProviderID); err == nil {
		p = v
	}
	return s.present(b, actor, svc, p)
}
