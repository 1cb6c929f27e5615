package service

import (
	"context"
	"log"
	"time"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/realtime"
)

// ReconcilerStore is the persistence surface of the status reconciler.
// Both Find queries must exclude CANCELLED auctions.
type ReconcilerStore interface {
	FindDueForLive(ctx context.Context, now time.Time) ([]uint64, error)
	FindDueForEnd(ctx context.Context, now time.Time) ([]uint64, error)
	BulkUpdateStatus(ctx context.Context, ids []uint64, status model.AuctionStatus) error
}

// Reconciler periodically re-derives persisted auction statuses from
// wall-clock time: SCHEDULED auctions whose window opened go LIVE, LIVE
// auctions whose window closed go ENDED. Reads between sweeps may observe a
// stale persisted status; that divergence is an accepted tradeoff and
// callers that care use the derived status instead.
type Reconciler struct {
	store    ReconcilerStore
	events   Broadcaster
	clock    clock.Clock
	interval time.Duration
}

// NewReconciler constructs a reconciler sweeping at the given interval
// (30s when interval is zero or negative).
func NewReconciler(store ReconcilerStore, events Broadcaster, clk clock.Clock, interval time.Duration) *Reconciler {
	if store == nil || events == nil || clk == nil {
		panic("nil dependency passed to NewReconciler")
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{store: store, events: events, clock: clk, interval: interval}
}

// Run sweeps on a fixed ticker until ctx is cancelled. A failed sweep is
// logged and retried on the next tick; the loop never exits on store errors.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("reconciler: sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs both promotion phases once: promote-to-LIVE first, then
// LIVE-to-ENDED. An auction whose whole window fits between two ticks is
// never promoted (FindDueForLive requires the window to still be open) and
// keeps its persisted SCHEDULED status; readers see the correct terminal
// state through model.DeriveStatus. Sweep is idempotent: a second run with
// no time passing finds nothing to update and emits nothing.
func (r *Reconciler) Sweep(ctx context.Context) error {
	now := r.clock.Now()

	toLive, err := r.store.FindDueForLive(ctx, now)
	if err != nil {
		return err
	}
	if len(toLive) > 0 {
		if err := r.store.BulkUpdateStatus(ctx, toLive, model.StatusLive); err != nil {
			return err
		}
		for _, id := range toLive {
			r.events.EmitAuctionStatus(realtime.AuctionStatus{AuctionID: id, Status: model.StatusLive})
		}
	}

	toEnd, err := r.store.FindDueForEnd(ctx, now)
	if err != nil {
		return err
	}
	if len(toEnd) > 0 {
		if err := r.store.BulkUpdateStatus(ctx, toEnd, model.StatusEnded); err != nil {
			return err
		}
		for _, id := range toEnd {
			r.events.EmitAuctionStatus(realtime.AuctionStatus{AuctionID: id, Status: model.StatusEnded})
		}
	}
	return nil
}
