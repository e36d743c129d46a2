package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// UserID returns the authenticated user's id, if any.
func UserID(c echo.Context) (uint64, bool) {
    switch v := c.Get(CtxUserID).(type) {
    case uint64:
        return v, v != 0
    case int64:
        return uint64(v), v > 0
    case int:
        return uint64(v), v > 0
    case float64:
        return uint64(v), v > 0
    case string:
        id, err := strconv.ParseUint(v, 10, 64)
        return id, err == nil && id != 0
    }
    return 0, false
}

// Role returns the authenticated user's role or "" for guests.
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}

// subject names the caller for rate limiting and logs: the user id when
// authenticated, "anon" otherwise.
func subject(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
