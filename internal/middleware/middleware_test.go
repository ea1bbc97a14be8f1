package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spana-App/SPANA-SERVER-sub001/internal/config"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/model"
	"github.com/Spana-App/SPANA-SERVER-sub001/internal/utils"
)

const secret = "mw-secret"

func serve(t *testing.T, e *echo.Echo, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func whoami(c echo.Context) error {
	a, ok := ActorFrom(c)
	if !ok {
		return c.NoContent(http.StatusTeapot)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": a.UserID, "role": a.Role})
}

func TestJWTAuthAndRoles(t *testing.T) {
	e := echo.New()
	e.GET("/x", whoami, JWTAuth(secret), RequireRole(model.RoleProvider))

	provider, err := utils.NewAccessToken(secret, 7, model.RoleProvider, 5)
	require.NoError(t, err)
	customer, err := utils.NewAccessToken(secret, 8, model.RoleCustomer, 5)
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", 7, model.RoleProvider, 5)
	require.NoError(t, err)

	rec := serve(t, e, provider.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":7,"role":"PROVIDER"}`, rec.Body.String())

	assert.Equal(t, http.StatusForbidden, serve(t, e, customer.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, e, forged.Token).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, e, "").Code)
}

func TestActorFromWithoutAuth(t *testing.T) {
	e := echo.New()
	e.GET("/x", whoami)
	assert.Equal(t, http.StatusTeapot, serve(t, e, "").Code)
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/abc/location", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/bookings/:id/location")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
	assert.Equal(t, "rl:loc:user:anon:route:POST /v1/bookings/:id/location", buildRateKey(cfg, "loc", c))

	c.Set(CtxUserID, uint64(42))
	c.Set(CtxRole, model.RoleCustomer)
	assert.Equal(t, "rl:loc:user:42:route:POST /v1/bookings/:id/location", buildRateKey(cfg, "loc", c))

	cfg.KeyStrategy = "ip"
	assert.Equal(t, "rl:api:ip:10.0.0.9", buildRateKey(cfg, "api", c))

	cfg.KeyStrategy = ""
	assert.Equal(t, "rl:api:ip:10.0.0.9:user:42:route:POST /v1/bookings/:id/location", buildRateKey(cfg, "api", c))
}

func TestTokenBucketFailsOpen(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute, Prefix: "rl"}
	e := echo.New()
	e.GET("/x", whoami, JWTAuth(secret), NewTokenBucket(cfg, rdb))

	tok, err := utils.NewAccessToken(secret, 1, model.RoleCustomer, 5)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(t, e, tok.Token).Code)
	}
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	e := echo.New()
	var rc *ResponseCache
	e.GET("/x", whoami,
		NewLocationBucket(config.RateLimitConfig{Enabled: false}, nil),
		NewResponseCache(config.CacheConfig{Enabled: true}, nil).Middleware(),
	)
	rec := serve(t, e, "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))

	// Invalidate on a nil cache is a no-op
	rc.Invalidate(context.Background())
}
