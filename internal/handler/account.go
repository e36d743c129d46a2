package handler

import (
    "net/http"
    "strconv"

    validation "github.com/go-ozzo/ozzo-validation"
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/repository"
    "github.com/iliyamo/market-stall-booking/internal/service"
)

// maxTopUp caps a single self-service top-up.
const maxTopUp = 1_000_000

// AccountHandler serves the caller's credit and ledger history.
type AccountHandler struct {
    Ledger *service.Ledger
    Events *repository.LedgerRepo
}

func NewAccountHandler(l *service.Ledger, events *repository.LedgerRepo) *AccountHandler {
    if l == nil || events == nil {
        panic("nil dependency passed to NewAccountHandler")
    }
    return &AccountHandler{Ledger: l, Events: events}
}

type topUpReq struct {
    Amount int64 `json:"amount"`
}

func (r topUpReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.Amount, validation.Required, validation.Min(int64(1)), validation.Max(int64(maxTopUp))),
    )
}

// TopUp adds credit to the caller's own balance.
func (h *AccountHandler) TopUp(c echo.Context) error {
    uid, _, ok := currentUser(c)
    if !ok {
        return unauthorized(c)
    }
    var req topUpReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    if err := req.Validate(); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    balance, err := h.Ledger.Credit(ctx, uid, req.Amount, "top-up")
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"credit": balance})
}

// History lists the caller's ledger events, newest first.  ?limit=
// defaults to 50 and is capped at 200.
func (h *AccountHandler) History(c echo.Context) error {
    uid, _, ok := currentUser(c)
    if !ok {
        return unauthorized(c)
    }
    limit := 50
    if s := c.QueryParam("limit"); s != "" {
        n, err := strconv.Atoi(s)
        if err != nil || n < 1 {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
        }
        limit = min(n, 200)
    }
    ctx, cancel := requestCtx(c)
    defer cancel()

    events, err := h.Events.ListByUser(ctx, uid, limit)
    if err != nil {
        return respondError(c, err)
    }
    if events == nil {
        events = []model.LedgerEvent{}
    }
    return c.JSON(http.StatusOK, echo.Map{"events": events})
}
