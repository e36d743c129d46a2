package repository

import (
	"context"
	"database/sql"
	"math"

	"github.com/iliyamo/market-stall-booking/internal/model"
)

// ReviewRepo appends and lists shop reviews.
type ReviewRepo struct{ db *sql.DB }

func NewReviewRepo(db *sql.DB) *ReviewRepo { return &ReviewRepo{db: db} }

// Create inserts a review and fills in its id.
func (r *ReviewRepo) Create(ctx context.Context, rv *model.Review) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO reviews (shop_name, rating, comment, reviewer_name) VALUES (?, ?, ?, ?)",
		rv.ShopName, rv.Rating, rv.Comment, rv.ReviewerName)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rv.ID = uint64(id)
	return nil
}

// ListRecent returns up to limit reviews, newest first.
func (r *ReviewRepo) ListRecent(ctx context.Context, limit int) ([]model.Review, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, shop_name, rating, comment, reviewer_name, created_at FROM reviews ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Review{}
	for rows.Next() {
		var rv model.Review
		if err := rows.Scan(&rv.ID, &rv.ShopName, &rv.Rating, &rv.Comment, &rv.ReviewerName, &rv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// Summary returns the review count and the average rating rounded to one
// decimal place (0 when there are no reviews).
func (r *ReviewRepo) Summary(ctx context.Context) (model.ReviewSummary, error) {
	var (
		s   model.ReviewSummary
		avg sql.NullFloat64
	)
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*), AVG(rating) FROM reviews").Scan(&s.Count, &avg)
	if err != nil {
		return s, err
	}
	if avg.Valid {
		s.AverageRating = math.Round(avg.Float64*10) / 10
	}
	return s, nil
}
