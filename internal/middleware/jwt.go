package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // HTTP status codes for responses
	"strings"  // prefix checking and trimming of the Authorization header

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model" // Actor and Role types
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils" // access token parsing
)

// Context keys set by JWTAuth.
const (
	CtxUserID = "user_id" // uint64 subject of the token
	CtxRole   = "role"    // model.Role claim
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the caller's id (uint64) and role (model.Role) in the echo
// context.  The secret must match the one used when issuing tokens.  Wrap
// protected routes with it so handlers can read the caller with ActorFrom.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A valid header is "Bearer " followed by the JWT; anything
			// else is answered with 401.
			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			// ParseAccessToken checks the HMAC signature, the expiry and
			// the presence of a subject.
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			uid, _ := claims.UserID()
			c.Set(CtxUserID, uid)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}

// ActorFrom returns the authenticated caller.  ok is false on routes that
// are not guarded by JWTAuth, or when the stored id is missing.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	uid, ok := c.Get(CtxUserID).(uint64)
	if !ok || uid == 0 {
		return model.Actor{}, false
	}
	role, _ := c.Get(CtxRole).(model.Role)
	return model.Actor{UserID: uid, Role: role}, true
}
