package repository

import (
	"context"
	"database/sql"

	"github.com/motorbid/vehicle-auction/internal/model"
)

// PhotoRepo manages auction photo records. Photos reference vendor-hosted
// URLs; imports replace the whole set so vendor ordering is preserved.
type PhotoRepo struct {
	db *sql.DB
}

func NewPhotoRepo(db *sql.DB) *PhotoRepo { return &PhotoRepo{db: db} }

// ListByAuction returns an auction's photos in sort order.
func (r *PhotoRepo) ListByAuction(ctx context.Context, auctionID uint64) ([]model.AuctionPhoto, error) {
	const q = `SELECT id, auction_id, url, sort, created_at
	           FROM auction_photos WHERE auction_id = ? ORDER BY sort ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	photos := make([]model.AuctionPhoto, 0, 8)
	for rows.Next() {
		var p model.AuctionPhoto
		if err := rows.Scan(&p.ID, &p.AuctionID, &p.URL, &p.Sort, &p.CreatedAt); err != nil {
			return nil, err
		}
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

// CoverURL returns the first photo URL for a listing thumbnail, or "" when
// the auction has no photos.
func (r *PhotoRepo) CoverURL(ctx context.Context, auctionID uint64) (string, error) {
	var url string
	err := r.db.QueryRowContext(ctx,
		`SELECT url FROM auction_photos WHERE auction_id = ? ORDER BY sort ASC, id ASC LIMIT 1`,
		auctionID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return url, err
}

// Replace deletes the auction's photos and inserts the given URLs in order.
func (r *PhotoRepo) Replace(ctx context.Context, auctionID uint64, urls []string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM auction_photos WHERE auction_id = ?`, auctionID); err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}
	query := `INSERT INTO auction_photos (auction_id, url, sort) VALUES `
	args := make([]any, 0, len(urls)*3)
	for i, u := range urls {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, auctionID, u, i)
	}
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}
