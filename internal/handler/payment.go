package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

// PaymentHandler starts payments and receives gateway webhooks.
type PaymentHandler struct {
	Svc *service.BookingService
}

func NewPaymentHandler(svc *service.BookingService) *PaymentHandler {
	return &PaymentHandler{Svc: svc}
}

type initiatePaymentReq struct {
	Tip       decimal.Decimal `json:"tip"`
	CardToken string          `json:"card_token"`
	SourceID  string          `json:"source_id"`
}

// Initiate creates the booking's payment and the gateway charge.
func (h *PaymentHandler) Initiate(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req initiatePaymentReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Tip.IsNegative() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tip must not be negative", "field": "tip"})
	}
	res, err := h.Svc.InitiatePayment(c.Request().Context(), actor, c.Param("id"), service.PaymentInput{
		Tip:       req.Tip,
		CardToken: strings.TrimSpace(req.CardToken),
		SourceID:  strings.TrimSpace(req.SourceID),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, res)
}

type webhookReq struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// Webhook accepts a gateway event notification. Only the event id is read
// from the body; the event itself is fetched back from the gateway.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	var req webhookReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.ID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "event id required"})
	}
	if err := h.Svc.HandlePaymentWebhook(c.Request().Context(), strings.TrimSpace(req.ID)); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}
