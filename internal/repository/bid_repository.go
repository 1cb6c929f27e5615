package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/motorbid/vehicle-auction/internal/model"
)

// BidRepo provides data access to the bids table. Bids are append-only;
// there are no update or delete operations here.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo bound to the provided database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

// InsertTx records a bid within the caller's transaction and populates the
// generated ID and CreatedAt on the passed struct.
func (r *BidRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Bid) error {
	const q = `INSERT INTO bids (auction_id, user_id, amount, created_at) VALUES (?, ?, ?, ?)`
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, q, b.AuctionID, b.UserID, b.Amount, b.CreatedAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// ListByAuction returns all bids for an auction, newest first, with the
// bidder identity subset attached. Sensitive user columns are never selected.
func (r *BidRepo) ListByAuction(ctx context.Context, auctionID uint64) ([]model.Bid, error) {
	const q = `SELECT b.id, b.auction_id, b.user_id, b.amount, b.created_at,
	                  u.id, u.email, COALESCE(u.name, '')
	           FROM bids b
	           JOIN users u ON u.id = b.user_id
	           WHERE b.auction_id = ?
	           ORDER BY b.created_at DESC, b.id DESC`
	rows, err := r.db.QueryContext(ctx, q, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	bids := make([]model.Bid, 0, 16)
	for rows.Next() {
		var b model.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.UserID, &b.Amount, &b.CreatedAt,
			&b.Bidder.ID, &b.Bidder.Email, &b.Bidder.Name); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// CountByAuction reports how many bids an auction has received. Used by the
// delete policy check before removing a listing.
func (r *BidRepo) CountByAuction(ctx context.Context, auctionID uint64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bids WHERE auction_id = ?`, auctionID).Scan(&n)
	return n, err
}
