package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

// WorkflowReader loads a booking's progress checklist.
type WorkflowReader interface {
	GetWorkflow(ctx context.Context, bookingID string) (*model.ServiceWorkflow, error)
}

// BookingHandler exposes the booking lifecycle to customers and providers.
type BookingHandler struct {
	Svc       *service.BookingService
	Workflows WorkflowReader
}

func NewBookingHandler(svc *service.BookingService, wf WorkflowReader) *BookingHandler {
	return &BookingHandler{Svc: svc, Workflows: wf}
}

type createBookingReq struct {
	ServiceID                uint64           `json:"service_id"`
	ServiceTitle             string           `json:"service_title"`
	RequiredSkills           []string         `json:"required_skills"`
	Date                     string           `json:"date"`
	Time                     string           `json:"time"`
	Location                 *model.GeoPoint  `json:"location"`
	Notes                    string           `json:"notes"`
	EstimatedDurationMinutes int              `json:"estimated_duration_minutes"`
	JobSize                  string           `json:"job_size"`
	CustomPrice              *decimal.Decimal `json:"custom_price"`
}

type reasonReq struct {
	Reason string `json:"reason"`
}

type locationReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

type rateReq struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// Create answers 201 with the booking, or 202 when the request was queued
// because no provider is free.
func (h *BookingHandler) Create(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	res, err := h.Svc.CreateBooking(c.Request().Context(), actor, service.CreateBookingRequest{
		ServiceID:                req.ServiceID,
		ServiceTitle:             req.ServiceTitle,
		RequiredSkills:           req.RequiredSkills,
		Date:                     strings.TrimSpace(req.Date),
		Time:                     strings.TrimSpace(req.Time),
		Location:                 req.Location,
		Notes:                    req.Notes,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
		JobSize:                  model.JobSize(req.JobSize),
		CustomPrice:              req.CustomPrice,
	})
	if err != nil {
		return writeError(c, err)
	}
	if res.Queued {
		return c.JSON(http.StatusAccepted, echo.Map{
			"queued":  true,
			"message": "no provider is available right now; your request has been queued",
		})
	}
	return c.JSON(http.StatusCreated, res.Booking)
}

func (h *BookingHandler) Get(c echo.Context) error {
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.GetBooking(ctx, a, id)
	})
}

func (h *BookingHandler) Accept(c echo.Context) error {
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.AcceptBookingRequest(ctx, a, id)
	})
}

func (h *BookingHandler) Decline(c echo.Context) error {
	var req reasonReq
	_ = c.Bind(&req)
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.DeclineBookingRequest(ctx, a, id, req.Reason)
	})
}

func (h *BookingHandler) Start(c echo.Context) error {
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.StartBooking(ctx, a, id)
	})
}

func (h *BookingHandler) Complete(c echo.Context) error {
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.CompleteBooking(ctx, a, id)
	})
}

func (h *BookingHandler) Cancel(c echo.Context) error {
	var req reasonReq
	_ = c.Bind(&req)
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.CancelBooking(ctx, a, id, req.Reason)
	})
}

// Location takes a live location ping from either party.
func (h *BookingHandler) Location(c echo.Context) error {
	var req locationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Lat == nil || req.Lng == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "lat and lng are required", "field": "location"})
	}
	p := model.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.UpdateLocation(ctx, a, id, p)
	})
}

// Rate is the customer's rating of the provider.
func (h *BookingHandler) Rate(c echo.Context) error {
	var req rateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.RateBooking(ctx, a, id, req.Rating, req.Review)
	})
}

// RateCustomer is the provider's rating of the customer.
func (h *BookingHandler) RateCustomer(c echo.Context) error {
	var req rateReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		return h.Svc.RateCustomer(ctx, a, id, req.Rating)
	})
}

// Workflow returns the progress checklist to either party.
func (h *BookingHandler) Workflow(c echo.Context) error {
	return h.do(c, func(ctx context.Context, a model.Actor, id string) (any, error) {
		if _, err := h.Svc.GetBooking(ctx, a, id); err != nil {
			return nil, err
		}
		wf, err := h.Workflows.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		return wf, nil
	})
}

// do runs fn for the authenticated actor and the :id path parameter and
// writes its result as 200 JSON.
func (h *BookingHandler) do(c echo.Context, fn func(ctx context.Context, a model.Actor, id string) (any, error)) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	out, err := fn(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
