package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

// CacheInvalidator drops cached catalog responses.
type CacheInvalidator interface {
	Invalidate(ctx context.Context)
}

// AdminHandler covers provider vetting, service approval and escrow
// reporting.
type AdminHandler struct {
	Store  Catalog
	Cache  CacheInvalidator
	Ledger *service.EscrowLedger
}

func NewAdminHandler(store Catalog, cache CacheInvalidator, ledger *service.EscrowLedger) *AdminHandler {
	return &AdminHandler{Store: store, Cache: cache, Ledger: ledger}
}

func (h *AdminHandler) invalidate(ctx context.Context) {
	if h.Cache != nil {
		h.Cache.Invalidate(ctx)
	}
}

// ApproveService publishes a service to the catalog.
func (h *AdminHandler) ApproveService(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid service id"})
	}
	if err := h.Store.ApproveService(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	h.invalidate(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// VerifyProvider marks a provider as vetted, which makes them matchable.
func (h *AdminHandler) VerifyProvider(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid provider id"})
	}
	if err := h.Store.VerifyProvider(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// EscrowWallet reports platform escrow totals.
func (h *AdminHandler) EscrowWallet(c echo.Context) error {
	w, err := h.Ledger.Wallet(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, w)
}

// WalletTransactions lists ledger entries, optionally for ?booking_id=.
func (h *AdminHandler) WalletTransactions(c echo.Context) error {
	txs, err := h.Ledger.Transactions(c.Request().Context(), strings.TrimSpace(c.QueryParam("booking_id")))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transactions": txs})
}
