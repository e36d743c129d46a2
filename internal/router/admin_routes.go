package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/market-stall-booking/internal/handler"
    "github.com/iliyamo/market-stall-booking/internal/middleware"
    "github.com/iliyamo/market-stall-booking/internal/model"
)

// RegisterAdmin registers the admin-only endpoints under /v1/admin.
func RegisterAdmin(v1 *echo.Group, h *handler.AdminHandler, jwtSecret string) {
    g := v1.Group("/admin",
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleAdmin),
    )
    g.GET("/dashboard", h.Dashboard)
    g.PUT("/users/:id/credit", h.SetCredit)
    g.POST("/rollover", h.Rollover)
}
