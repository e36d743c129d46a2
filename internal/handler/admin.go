package handler

import (
    "net/http"

    validation "github.com/go-ozzo/ozzo-validation"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/repository"
    "github.com/iliyamo/market-stall-booking/internal/service"
)

// AdminHandler serves the admin dashboard and overrides.  Routes are
// expected behind RequireRole(admin).
type AdminHandler struct {
    Booking *service.BookingService
    Users   *repository.UserRepo
    Stalls  *repository.StallRepo
}

func NewAdminHandler(b *service.BookingService, u *repository.UserRepo, s *repository.StallRepo) *AdminHandler {
    if b == nil || u == nil || s == nil {
        panic("nil dependency passed to NewAdminHandler")
    }
    return &AdminHandler{Booking: b, Users: u, Stalls: s}
}

type dashboard struct {
    TotalSales  int64               `json:"total_sales"`
    TotalBooked int64               `json:"total_booked"`
    TotalUsers  int64               `json:"total_users"`
    Bookings    []model.BookedStall `json:"bookings"`
    Users       []model.User        `json:"users"`
}

// Dashboard returns sales totals, current bookings and all users.
func (h *AdminHandler) Dashboard(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    if _, err := h.Booking.Rollover(ctx); err != nil {
        return respondError(c, err)
    }
    var (
        d   dashboard
        err error
    )
    if d.TotalBooked, d.TotalSales, err = h.Stalls.BookedTotals(ctx); err != nil {
        return respondError(c, err)
    }
    if d.TotalUsers, err = h.Users.Count(ctx); err != nil {
        return respondError(c, err)
    }
    if d.Bookings, err = h.Stalls.ListBooked(ctx); err != nil {
        return respondError(c, err)
    }
    if d.Users, err = h.Users.List(ctx); err != nil {
        return respondError(c, err)
    }
    if d.Bookings == nil {
        d.Bookings = []model.BookedStall{}
    }
    if d.Users == nil {
        d.Users = []model.User{}
    }
    return c.JSON(http.StatusOK, d)
}

type setCreditReq struct {
    Credit *int64 `json:"credit"`
}

func (r setCreditReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.Credit, validation.NotNil, validation.Min(int64(0))),
    )
}

// SetCredit overwrites a user's balance.
func (h *AdminHandler) SetCredit(c echo.Context) error {
    actor, _, ok := currentUser(c)
    if !ok {
        return unauthorized(c)
    }
    id, err := parseID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req setCreditReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := req.Validate(); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    u, err := h.Booking.AdminSetCredit(ctx, actor, id, *req.Credit)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, u)
}

// Rollover forfeits stale bookings now and reports how many were released.
func (h *AdminHandler) Rollover(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    n, err := h.Booking.Rollover(ctx)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"date": h.Booking.Today(), "released": n})
}
