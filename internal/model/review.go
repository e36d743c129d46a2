package model

// Review is an append-only shop review.
type Review struct {
    ID           uint64 `json:"id"`
    ShopName     string `json:"shop_name"`
    Rating       int    `json:"rating"`
    Comment      string `json:"comment"`
    ReviewerName string `json:"reviewer_name"`
    CreatedAt    string `json:"created_at"`
}

// ReviewSummary is the aggregate shown next to the review list.
type ReviewSummary struct {
    Count         int64   `json:"count"`
    AverageRating float64 `json:"average_rating"`
}
