package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/handler"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// Limits are the rate-limit middlewares applied to booking routes. Nil
// entries are skipped.
type Limits struct {
	API      echo.MiddlewareFunc
	Location echo.MiddlewareFunc
}

func (l Limits) api() []echo.MiddlewareFunc      { return nonNil(l.API) }
func (l Limits) location() []echo.MiddlewareFunc { return nonNil(l.Location) }

func nonNil(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}

// RegisterBookings registers the booking lifecycle under /v1/bookings for
// customers and providers. Which party may call what is decided per
// booking by the service. The gateway webhook is public.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, jwtSecret string, lim Limits) {
	g := e.Group(
		"/v1/bookings",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCustomer, model.RoleProvider),
	)
	api := lim.api()

	g.POST("", b.Create, api...)
	g.GET("/:id", b.Get, api...)
	g.GET("/:id/workflow", b.Workflow, api...)

	g.POST("/:id/accept", b.Accept, api...)
	g.POST("/:id/decline", b.Decline, api...)
	g.POST("/:id/start", b.Start, api...)
	g.POST("/:id/complete", b.Complete, api...)
	g.POST("/:id/cancel", b.Cancel, api...)

	// Pings arrive every few seconds while a job is live.
	g.POST("/:id/location", b.Location, lim.location()...)

	g.POST("/:id/rate", b.Rate, api...)
	g.POST("/:id/rate-customer", b.RateCustomer, api...)

	g.POST("/:id/payments", p.Initiate, api...)

	e.POST("/v1/payments/webhook", p.Webhook)
}
