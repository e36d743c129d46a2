// Package router wires handlers and middleware onto echo routes.
package router

import (
    "database/sql"

    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/config"
    "github.com/iliyamo/market-stall-booking/internal/handler"
    "github.com/iliyamo/market-stall-booking/internal/middleware"
    "github.com/iliyamo/market-stall-booking/internal/model"
)

// Deps is everything New needs to build the HTTP surface.
type Deps struct {
    DB        *sql.DB
    Redis     *redis.Client // nil disables rate limiting and caching
    JWTSecret string
    RateLimit config.RateLimitConfig
    Cache     config.CacheConfig
    Log       *zap.Logger

    Auth    *handler.AuthHandler
    Stalls  *handler.StallHandler
    Account *handler.AccountHandler
    Reviews *handler.ReviewHandler
    Admin   *handler.AdminHandler
}

// New returns an echo instance with every route registered.
func New(d Deps) *echo.Echo {
    e := echo.New()
    e.HideBanner = true
    e.HidePort = true
    e.Use(echomw.Recover())
    e.Use(echomw.RequestID())
    e.Use(middleware.RequestLogger(d.Log))

    RegisterRoutes(e, d.DB)

    v1 := e.Group("/v1", middleware.RateLimit(d.RateLimit, d.Redis))
    RegisterAuth(v1, d.Auth, d.JWTSecret)
    RegisterPublic(v1, d.Stalls, d.Reviews, middleware.ResponseCache(d.Cache, d.Redis))
    RegisterTrader(v1, d.Stalls, d.Account, d.JWTSecret)
    RegisterAdmin(v1, d.Admin, d.JWTSecret)
    return e
}

// RegisterRoutes registers the unauthenticated health checks.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
    e.GET("/healthz", handler.Health)
    if db != nil {
        e.GET("/readyz", handler.Ready(db))
    }
}

// RegisterAuth registers the token endpoints under /v1/auth and the
// profile endpoint.  Logout accepts either a refresh token in the body or
// a bearer token, so it sits outside the JWT group.
func RegisterAuth(v1 *echo.Group, a *handler.AuthHandler, jwtSecret string) {
    g := v1.Group("/auth")
    g.POST("/register", a.Register)
    g.POST("/login", a.Login)
    g.POST("/refresh", a.Refresh)
    g.POST("/logout", a.Logout)

    v1.GET("/me", a.Me,
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleUser, model.RoleAdmin))
}

// RegisterPublic registers the read-only board, market status and review
// endpoints.  Review reads go through the response cache.
func RegisterPublic(v1 *echo.Group, s *handler.StallHandler, r *handler.ReviewHandler, cache echo.MiddlewareFunc) {
    v1.GET("/market", s.Market)
    v1.GET("/stalls", s.Board)
    v1.GET("/stalls/:id", s.Get)

    v1.GET("/reviews", r.List, cache)
    v1.GET("/reviews/summary", r.Summary, cache)
    v1.POST("/reviews", r.Create)
}
