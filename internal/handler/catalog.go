package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

// Catalog is the provider/service directory as the HTTP layer edits it.
type Catalog interface {
	ListServices(ctx context.Context) ([]model.Service, error)
	CreateService(ctx context.Context, s *model.Service) error
	ApproveService(ctx context.Context, id uint64) error
	UpdateProviderProfile(ctx context.Context, userID uint64, u model.ProfileUpdate) (*model.Provider, error)
	VerifyProvider(ctx context.Context, userID uint64) error
}

// CatalogHandler serves the public service list and the provider
// endpoints that feed it.
type CatalogHandler struct {
	Store Catalog
}

func NewCatalogHandler(store Catalog) *CatalogHandler {
	return &CatalogHandler{Store: store}
}

// ListServices is public and served through the response cache.
func (h *CatalogHandler) ListServices(c echo.Context) error {
	out, err := h.Store.ListServices(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"services": out})
}

type profileReq struct {
	Skills   []string        `json:"skills"`
	Online   *bool           `json:"online"`
	Location *model.GeoPoint `json:"location"`
}

// UpdateProfile lets a provider edit skills, availability and location.
func (h *CatalogHandler) UpdateProfile(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	upd := model.ProfileUpdate{Online: req.Online}
	if req.Skills != nil {
		upd.Skills = model.NormalizeSkills(req.Skills)
	}
	if req.Location != nil {
		p, err := utils.NormalizePoint(*req.Location)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error(), "field": "location"})
		}
		upd.Location = &p
	}
	p, err := h.Store.UpdateProviderProfile(c.Request().Context(), actor.UserID, upd)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type serviceReq struct {
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Skills          []string        `json:"skills"`
	BasePrice       decimal.Decimal `json:"base_price"`
	DurationMinutes int             `json:"duration_minutes"`
}

// CreateService registers a provider's own service. It stays hidden from
// the catalog until an admin approves it.
func (h *CatalogHandler) CreateService(c echo.Context) error {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req serviceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	switch {
	case strings.TrimSpace(req.Title) == "":
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title required", "field": "title"})
	case !req.BasePrice.IsPositive():
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "base_price must be positive", "field": "base_price"})
	case req.DurationMinutes <= 0:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "duration_minutes must be positive", "field": "duration_minutes"})
	}
	pid := actor.UserID
	s := &model.Service{
		ProviderID:      &pid,
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Skills:          model.NormalizeSkills(req.Skills),
		BasePrice:       req.BasePrice.Round(2),
		DurationMinutes: req.DurationMinutes,
		Active:          true,
	}
	if err := h.Store.CreateService(c.Request().Context(), s); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}
