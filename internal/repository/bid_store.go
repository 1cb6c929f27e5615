package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/motorbid/vehicle-auction/internal/model"
)

type txKey struct{}

// BidStore bundles the repositories the bid engine touches and runs them
// under one transaction. The transaction rides on the context so the
// service layer stays free of database/sql types.
type BidStore struct {
	db       *sql.DB
	users    *UserRepo
	auctions *AuctionRepo
	bids     *BidRepo
}

// NewBidStore wires a BidStore over existing repositories.
func NewBidStore(db *sql.DB, users *UserRepo, auctions *AuctionRepo, bids *BidRepo) *BidStore {
	return &BidStore{db: db, users: users, auctions: auctions, bids: bids}
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// otherwise. Nested calls reuse the outer transaction.
func (s *BidStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

var errNoTx = errors.New("repository: operation requires a transaction")

func mustTx(ctx context.Context) (*sql.Tx, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx, nil
	}
	return nil, errNoTx
}

// UserRef resolves the bidder identity inside the current transaction.
func (s *BidStore) UserRef(ctx context.Context, id uint64) (model.UserRef, error) {
	tx, err := mustTx(ctx)
	if err != nil {
		return model.UserRef{}, err
	}
	return s.users.RefTx(ctx, tx, id)
}

// AuctionForUpdate locks and reads the auction snapshot.
func (s *BidStore) AuctionForUpdate(ctx context.Context, id uint64) (model.AuctionSnapshot, error) {
	tx, err := mustTx(ctx)
	if err != nil {
		return model.AuctionSnapshot{}, err
	}
	return s.auctions.SnapshotForUpdateTx(ctx, tx, id)
}

// InsertBid appends the bid record.
func (s *BidStore) InsertBid(ctx context.Context, b *model.Bid) error {
	tx, err := mustTx(ctx)
	if err != nil {
		return err
	}
	return s.bids.InsertTx(ctx, tx, b)
}

// UpdateAuctionPrice overwrites the auction's current price.
func (s *BidStore) UpdateAuctionPrice(ctx context.Context, id uint64, price int64) error {
	tx, err := mustTx(ctx)
	if err != nil {
		return err
	}
	return s.auctions.UpdatePriceTx(ctx, tx, id, price)
}

// UpdateAuctionEndsAt persists a soft-close extension.
func (s *BidStore) UpdateAuctionEndsAt(ctx context.Context, id uint64, endsAt time.Time) error {
	tx, err := mustTx(ctx)
	if err != nil {
		return err
	}
	return s.auctions.UpdateEndsAtTx(ctx, tx, id, endsAt)
}
