package router

import (
	"github.com/labstack/echo/v4"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/handler"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/middleware"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
)

// RegisterCatalog exposes the public service list behind the response
// cache, plus the provider self-service endpoints.
func RegisterCatalog(e *echo.Echo, c *handler.CatalogHandler, cache echo.MiddlewareFunc, jwtSecret string) {
	if cache != nil {
		e.GET("/v1/services", c.ListServices, cache)
	} else {
		e.GET("/v1/services", c.ListServices)
	}

	g := e.Group(
		"/v1/provider",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleProvider),
	)
	g.PUT("/profile", c.UpdateProfile)
	g.PATCH("/profile", c.UpdateProfile)
	g.POST("/services", c.CreateService)
}

// RegisterAdmin registers ADMIN-scoped endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/services/:id/approve", a.ApproveService)
	g.POST("/providers/:id/verify", a.VerifyProvider)
	g.GET("/escrow/wallet", a.EscrowWallet)
	g.GET("/escrow/transactions", a.WalletTransactions)
}
