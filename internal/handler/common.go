package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/middleware"
    "github.com/iliyamo/market-stall-booking/internal/repository"
    "github.com/iliyamo/market-stall-booking/internal/service"
)

// requestTimeout bounds the database work of one request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, error) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    if err != nil || id == 0 {
        return 0, errors.New("invalid " + name)
    }
    return id, nil
}

// currentUser reads the caller set by middleware.JWTAuth.
func currentUser(c echo.Context) (uint64, string, bool) {
    id, ok := middleware.UserID(c)
    return id, middleware.Role(c), ok
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// errorStatus maps the domain error kinds to HTTP status codes.
func errorStatus(err error) int {
    switch {
    case errors.Is(err, service.ErrInvalidInput):
        return http.StatusBadRequest
    case errors.Is(err, repository.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, repository.ErrConflict):
        return http.StatusConflict
    case errors.Is(err, repository.ErrInsufficientFunds):
        return http.StatusPaymentRequired
    case errors.Is(err, repository.ErrForbidden):
        return http.StatusForbidden
    case errors.Is(err, context.DeadlineExceeded):
        return http.StatusGatewayTimeout
    default:
        return http.StatusInternalServerError
    }
}

// respondError writes err as {"error": ...}.  Unexpected errors are logged
// and hidden behind a generic message.
func respondError(c echo.Context, err error) error {
    status := errorStatus(err)
    if status >= http.StatusInternalServerError {
        zap.L().Error("request failed",
            zap.String("route", c.Path()),
            zap.Error(err))
        return c.JSON(status, echo.Map{"error": "internal error"})
    }
    return c.JSON(status, echo.Map{"error": err.Error()})
}
