package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/repository"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/service"
)

// writeError maps service failures onto HTTP responses. Unknown errors are
// logged and reported as 500 without detail.
func writeError(c echo.Context, err error) error {
	var (
		verr *service.ValidationError
		serr *service.StateError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": verr.Reason, "field": verr.Field})
	case errors.As(err, &serr):
		return c.JSON(http.StatusConflict, echo.Map{"error": serr.Reason, "state": serr.State})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUpstream):
		log.Printf("handler: upstream failure on %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	log.Printf("handler: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
