package middleware

import (
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// RequestLogger writes one structured line per request.  5xx responses
// are logged at error level, 4xx at warn.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
    if log == nil {
        log = zap.L()
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            start := time.Now()
            err := next(c)
            if err != nil {
                c.Error(err)
            }
            status := c.Response().Status
            fields := []zap.Field{
                zap.String("method", c.Request().Method),
                zap.String("path", c.Request().URL.Path),
                zap.String("route", c.Path()),
                zap.Int("status", status),
                zap.Duration("latency", time.Since(start)),
                zap.String("ip", c.RealIP()),
                zap.String("user", subject(c)),
            }
            if rid := c.Response().Header().Get(echo.HeaderXRequestID); rid != "" {
                fields = append(fields, zap.String("request_id", rid))
            }
            switch {
            case status >= 500:
                log.Error("request", append(fields, zap.Error(err))...)
            case status >= 400:
                log.Warn("request", fields...)
            default:
                log.Info("request", fields...)
            }
            return nil
        }
    }
}
