package middleware

import (
	"net/http" // status codes

	"github.com/labstack/echo/v4" // Echo middleware types

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// RequireRole returns a middleware that allows the request only when the
// role stored by JWTAuth is one of roles.  It must be registered after
// JWTAuth; on its own every request is rejected with 403.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	// Build the lookup once, at registration time.
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(model.Role)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
