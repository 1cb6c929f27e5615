// Package service implements the auction core: the transactional bid
// engine and the periodic status reconciler.
package service

import (
	"context"
	"log"
	"time"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/realtime"
)

// BidStore is the transactional persistence surface the bid engine needs.
// All methods except WithTx must be called inside a WithTx callback; the
// store guarantees the auction snapshot is read under a lock that
// serializes concurrent bid transactions on the same auction.
type BidStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	UserRef(ctx context.Context, id uint64) (model.UserRef, error)
	AuctionForUpdate(ctx context.Context, id uint64) (model.AuctionSnapshot, error)
	InsertBid(ctx context.Context, b *model.Bid) error
	UpdateAuctionPrice(ctx context.Context, auctionID uint64, price int64) error
	UpdateAuctionEndsAt(ctx context.Context, auctionID uint64, endsAt time.Time) error
}

// Broadcaster publishes realtime events to auction rooms. Emits are
// best-effort and never fail the caller.
type Broadcaster interface {
	EmitBidCreated(realtime.BidCreated)
	EmitAuctionExtended(realtime.AuctionExtended)
	EmitAuctionStatus(realtime.AuctionStatus)
}

// BidService validates and commits bids atomically against auction state.
type BidService struct {
	store  BidStore
	events Broadcaster
	clock  clock.Clock
}

// NewBidService constructs the bid engine. All dependencies must be non-nil.
func NewBidService(store BidStore, events Broadcaster, clk clock.Clock) *BidService {
	if store == nil || events == nil || clk == nil {
		panic("nil dependency passed to NewBidService")
	}
	return &BidService{store: store, events: events, clock: clk}
}

// PlaceBid validates a bid against the current auction state and commits it
// in a single transaction: user lookup, auction snapshot under row lock,
// phase check, minimum-increment check, bid insert, price overwrite and the
// soft-close extension. On success the bid.created event (and, when the
// extension fired, auction.extended) is broadcast after the commit;
// broadcast problems never undo a committed bid.
//
// Failures are typed: model.ErrUserNotFound, model.ErrAuctionNotFound,
// *model.InvalidStateError and *model.InvalidAmountError. Any failure
// aborts the transaction with no partial writes.
//
// The second return value reports whether this bid triggered a soft-close
// extension.
func (s *BidService) PlaceBid(ctx context.Context, auctionID, userID uint64, amount int64) (model.Bid, bool, error) {
	now := s.clock.Now()

	var (
		bid      model.Bid
		extended bool
		newEnds  time.Time
		softSec  int
	)
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		bidder, err := s.store.UserRef(ctx, userID)
		if err != nil {
			return err
		}
		snap, err := s.store.AuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}

		// Prefer the persisted LIVE status; fall back to the time window
		// when the reconciler has not caught up yet.
		liveByStatus := snap.Status == model.StatusLive
		// The engine's window is inclusive of endsAt while the derived
		// status flips to ENDED at exactly endsAt; the reconciler settles
		// the difference within one sweep.
		liveByTime := snap.Status != model.StatusCancelled &&
			!now.Before(snap.StartsAt) && !now.After(snap.EndsAt)
		if !(liveByStatus || liveByTime) {
			switch {
			case snap.Status != model.StatusCancelled && now.Before(snap.StartsAt):
				return &model.InvalidStateError{Reason: model.ReasonNotStarted, StartsAt: snap.StartsAt}
			case snap.Status != model.StatusCancelled && now.After(snap.EndsAt):
				return &model.InvalidStateError{Reason: model.ReasonAlreadyEnded}
			default:
				return &model.InvalidStateError{Reason: model.ReasonNotLive}
			}
		}

		minRequired := snap.CurrentPrice + model.MinIncrement
		if amount < minRequired {
			return &model.InvalidAmountError{MinRequired: minRequired}
		}

		bid = model.Bid{
			AuctionID: auctionID,
			UserID:    userID,
			Amount:    amount,
			CreatedAt: now,
			Bidder:    bidder,
		}
		if err := s.store.InsertBid(ctx, &bid); err != nil {
			return err
		}
		if err := s.store.UpdateAuctionPrice(ctx, auctionID, amount); err != nil {
			return err
		}

		// Soft close: a bid landing inside the trailing grace window pushes
		// the end time out by the same window, so snipers always leave at
		// least softCloseSec for a counter-bid.
		softSec = snap.SoftCloseSec
		if softSec > 0 {
			remaining := snap.EndsAt.Sub(now)
			if remaining <= time.Duration(softSec)*time.Second {
				newEnds = snap.EndsAt.Add(time.Duration(softSec) * time.Second)
				if err := s.store.UpdateAuctionEndsAt(ctx, auctionID, newEnds); err != nil {
					return err
				}
				extended = true
			}
		}
		return nil
	})
	if err != nil {
		return model.Bid{}, false, err
	}

	if extended {
		s.emit(func() {
			s.events.EmitAuctionExtended(realtime.AuctionExtended{
				AuctionID:     auctionID,
				EndsAt:        newEnds.UTC().Format(time.RFC3339),
				ExtendedBySec: softSec,
			})
		})
	}
	s.emit(func() {
		s.events.EmitBidCreated(realtime.BidCreated{
			AuctionID: auctionID,
			BidID:     bid.ID,
			Amount:    bid.Amount,
			User:      bid.Bidder,
			At:        bid.CreatedAt,
		})
	})
	return bid, extended, nil
}

// emit shields the request path from a misbehaving Broadcaster: a committed
// bid must be returned to the caller even if broadcasting fails.
func (s *BidService) emit(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bid-service: realtime emit failed: %v", r)
		}
	}()
	fn()
}
