package handler

import (
    "net/http"
    "strconv"
    "strings"

    validation "github.com/go-ozzo/ozzo-validation"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/market-stall-booking/internal/middleware"
    "github.com/iliyamo/market-stall-booking/internal/model"
    "github.com/iliyamo/market-stall-booking/internal/repository"
)

// ReviewHandler serves shop reviews.  Reads are cached by the response
// cache middleware under CachePrefix; Create purges that prefix.
type ReviewHandler struct {
    Reviews     *repository.ReviewRepo
    Redis       *redis.Client // may be nil
    CachePrefix string
}

func NewReviewHandler(r *repository.ReviewRepo, rdb *redis.Client, cachePrefix string) *ReviewHandler {
    if r == nil {
        panic("nil repository passed to NewReviewHandler")
    }
    return &ReviewHandler{Reviews: r, Redis: rdb, CachePrefix: cachePrefix}
}

type reviewReq struct {
    ShopName     string `json:"shop_name"`
    Rating       int    `json:"rating"`
    Comment      string `json:"comment"`
    ReviewerName string `json:"reviewer_name"`
}

func (r reviewReq) Validate() error {
    return validation.ValidateStruct(&r,
        validation.Field(&r.ShopName, validation.Required, validation.Length(1, 128)),
        validation.Field(&r.Rating, validation.Required, validation.Min(1), validation.Max(5)),
        validation.Field(&r.Comment, validation.Length(0, 2000)),
        validation.Field(&r.ReviewerName, validation.Required, validation.Length(1, 64)),
    )
}

// List returns recent reviews; ?limit= defaults to 50.
func (h *ReviewHandler) List(c echo.Context) error {
    limit, _ := strconv.Atoi(c.QueryParam("limit"))
    ctx, cancel := requestCtx(c)
    defer cancel()

    reviews, err := h.Reviews.ListRecent(ctx, limit)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"reviews": reviews})
}

// Summary returns the review count and average rating.
func (h *ReviewHandler) Summary(c echo.Context) error {
    ctx, cancel := requestCtx(c)
    defer cancel()

    s, err := h.Reviews.Summary(ctx)
    if err != nil {
        return respondError(c, err)
    }
    return c.JSON(http.StatusOK, s)
}

// Create appends a review.
func (h *ReviewHandler) Create(c echo.Context) error {
    var req reviewReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.ShopName = strings.TrimSpace(req.ShopName)
    req.Comment = strings.TrimSpace(req.Comment)
    req.ReviewerName = strings.TrimSpace(req.ReviewerName)
    if err := req.Validate(); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
    }

    ctx, cancel := requestCtx(c)
    defer cancel()

    rv := model.Review{ShopName: req.ShopName, Rating: req.Rating, Comment: req.Comment, ReviewerName: req.ReviewerName}
    if err := h.Reviews.Create(ctx, &rv); err != nil {
        return respondError(c, err)
    }
    if err := middleware.PurgeCache(ctx, h.Redis, h.CachePrefix); err != nil {
        zap.L().Warn("purge review cache failed", zap.Error(err))
    }
    return c.JSON(http.StatusCreated, rv)
}
