package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/service"
)

// StallHandler serves the booking board and the booking actions.
type StallHandler struct {
    Booking *service.BookingService
}

func NewStallHandler(b *service.BookingService) *StallHandler {
    if b == nil {
        panic("nil service passed to NewStallHandler")
    }
    return &StallHandler{Booking: b}
}

// Market returns the open/closed status and the cancellation deadline.
func (h *StallHandler) Market(c echo.Context) error {
    return c.JSON(http.StatusOK, h.Booking.MarketInfo())
}

// Board lists stalls grouped by zone.  ?q= filters by shop name and
// ?zone= picks the active zone.
func (h *StallHandler) Board(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    b, err := h.Booking.Board(ctx, c.QueryParam("q"), c.QueryParam("zone"))
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, b)
}

// Get returns one stall.
func (h *StallHandler) Get(c echo.Context) error {
    id, err := parseID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    st, err := h.Booking.Stall(ctx, id)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, st)
}

type bookReq struct {
    ShopName        string `json:"shop_name"`
    Phone           string `json:"phone"`
    ProductCategory string `json:"product_category"`
    PaymentMethod   string `json:"payment_method"`
    PaymentRef      string `json:"payment_ref"`
}

// Book reserves the stall for today on behalf of the caller.  A stale
// booking left from an earlier day is forfeited first, so it never blocks.
func (h *StallHandler) Book(c echo.Context) error {
    uid, _, ok := currentUser(c)
    if !ok {
        return unauthorized(c)
    }
    id, err := parseID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    var req bookReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    st, err := h.Booking.Book(ctx, service.BookRequest{
        UserID:  uid,
        StallID: id,
        Details: model.ShopDetails{
            ShopName:        req.ShopName,
            Phone:           req.Phone,
            ProductCategory: req.ProductCategory,
        },
        Method:     model.PaymentMethod(req.PaymentMethod),
        PaymentRef: req.PaymentRef,
    })
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusCreated, st)
}

// Cancel releases the caller's booking (any booking for admins) and
// refunds the booker.
func (h *StallHandler) Cancel(c echo.Context) error {
    uid, role, ok := currentUser(c)
    if !ok {
        return unauthorized(c)
    }
    id, err := parseID(c, "id")
    if err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    res, err := h.Booking.Cancel(ctx, uid, role, id)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}
