package router

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/market-stall-booking/internal/handler"
    "github.com/iliyamo/market-stall-booking/internal/middleware"
    "github.com/iliyamo/market-stall-booking/internal/model"
)

// RegisterTrader registers booking and account endpoints.  Every route
// requires a valid JWT; admins can use them too.
func RegisterTrader(v1 *echo.Group, s *handler.StallHandler, a *handler.AccountHandler, jwtSecret string) {
    auth := []echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(model.RoleUser, model.RoleAdmin),
    }
    v1.POST("/stalls/:id/book", s.Book, auth...)
    v1.DELETE("/stalls/:id/booking", s.Cancel, auth...)

    me := v1.Group("/me", auth...)
    me.POST("/topup", a.TopUp)
    me.GET("/ledger", a.History)
}
