package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/realtime"
)

// fakeBidStore keeps a single auction in memory and mimics the real store's
// transaction contract: mutations stage inside WithTx and commit only when
// the callback returns nil. The mutex stands in for the row lock, so
// concurrent PlaceBid calls serialize the same way they do against MySQL.
type fakeBidStore struct {
	mu      sync.Mutex
	users   map[uint64]model.UserRef
	auction model.AuctionSnapshot
	bids    []model.Bid
	nextID  uint64

	tx *fakeTx
}

type fakeTx struct {
	snap model.AuctionSnapshot
	bids []model.Bid
}

func newFakeBidStore(snap model.AuctionSnapshot) *fakeBidStore {
	return &fakeBidStore{
		users: map[uint64]model.UserRef{
			7: {ID: 7, Email: "alice@example.com", Name: "Alice"},
			8: {ID: 8, Email: "bob@example.com", Name: "Bob"},
		},
		auction: snap,
	}
}

func (f *fakeBidStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tx = &fakeTx{snap: f.auction}
	err := fn(ctx)
	if err == nil {
		f.auction = f.tx.snap
		f.bids = append(f.bids, f.tx.bids...)
	}
	f.tx = nil
	return err
}

func (f *fakeBidStore) UserRef(_ context.Context, id uint64) (model.UserRef, error) {
	u, ok := f.users[id]
	if !ok {
		return model.UserRef{}, model.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeBidStore) AuctionForUpdate(_ context.Context, id uint64) (model.AuctionSnapshot, error) {
	if id != f.tx.snap.ID {
		return model.AuctionSnapshot{}, model.ErrAuctionNotFound
	}
	return f.tx.snap, nil
}

func (f *fakeBidStore) InsertBid(_ context.Context, b *model.Bid) error {
	f.nextID++
	b.ID = f.nextID
	f.tx.bids = append(f.tx.bids, *b)
	return nil
}

func (f *fakeBidStore) UpdateAuctionPrice(_ context.Context, _ uint64, price int64) error {
	f.tx.snap.CurrentPrice = price
	return nil
}

func (f *fakeBidStore) UpdateAuctionEndsAt(_ context.Context, _ uint64, endsAt time.Time) error {
	f.tx.snap.EndsAt = endsAt
	return nil
}

// committedBids returns a copy of the committed bid log.
func (f *fakeBidStore) committedBids() []model.Bid {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Bid, len(f.bids))
	copy(out, f.bids)
	return out
}

func (f *fakeBidStore) price() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auction.CurrentPrice
}

// fakeEvents records emitted realtime events in order.
type fakeEvents struct {
	mu    sync.Mutex
	order []string
	bids  []realtime.BidCreated
	exts  []realtime.AuctionExtended
	stats []realtime.AuctionStatus
}

func (f *fakeEvents) EmitBidCreated(ev realtime.BidCreated) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, realtime.EventBid)
	f.bids = append(f.bids, ev)
}

func (f *fakeEvents) EmitAuctionExtended(ev realtime.AuctionExtended) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, realtime.EventExtended)
	f.exts = append(f.exts, ev)
}

func (f *fakeEvents) EmitAuctionStatus(ev realtime.AuctionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order = append(f.order, realtime.EventStatus)
	f.stats = append(f.stats, ev)
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func liveSnapshot(price int64) model.AuctionSnapshot {
	return model.AuctionSnapshot{
		ID:           1,
		Status:       model.StatusLive,
		StartsAt:     baseTime.Add(-time.Hour),
		EndsAt:       baseTime.Add(time.Hour),
		CurrentPrice: price,
		SoftCloseSec: 120,
	}
}

func TestPlaceBidMinimumIncrement(t *testing.T) {
	store := newFakeBidStore(liveSnapshot(12000))
	events := &fakeEvents{}
	svc := NewBidService(store, events, clock.NewFixed(baseTime))
	ctx := context.Background()

	// 50 over the current price is below the 100 minimum increment.
	_, _, err := svc.PlaceBid(ctx, 1, 7, 12050)
	var amountErr *model.InvalidAmountError
	if !errors.As(err, &amountErr) {
		t.Fatalf("PlaceBid(12050) error = %v, want InvalidAmountError", err)
	}
	if amountErr.MinRequired != 12100 {
		t.Fatalf("MinRequired = %d, want 12100", amountErr.MinRequired)
	}
	if got := store.committedBids(); len(got) != 0 {
		t.Fatalf("rejected bid left %d rows behind", len(got))
	}
	if store.price() != 12000 {
		t.Fatalf("rejected bid moved price to %d", store.price())
	}
	if len(events.order) != 0 {
		t.Fatalf("rejected bid emitted events: %v", events.order)
	}

	bid, extended, err := svc.PlaceBid(ctx, 1, 7, 12100)
	if err != nil {
		t.Fatalf("PlaceBid(12100) failed: %v", err)
	}
	if extended {
		t.Fatal("bid an hour before close must not extend")
	}
	if bid.Amount != 12100 || bid.AuctionID != 1 || bid.UserID != 7 {
		t.Fatalf("unexpected bid: %+v", bid)
	}
	if !bid.CreatedAt.Equal(baseTime) {
		t.Fatalf("CreatedAt = %s, want %s", bid.CreatedAt, baseTime)
	}
	if bid.Bidder.Email != "alice@example.com" {
		t.Fatalf("Bidder = %+v", bid.Bidder)
	}
	if store.price() != 12100 {
		t.Fatalf("price = %d, want 12100", store.price())
	}
	if len(events.bids) != 1 || events.bids[0].BidID != bid.ID || events.bids[0].Amount != 12100 {
		t.Fatalf("bid.created payloads = %+v", events.bids)
	}
}

func TestPlaceBidPhaseChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("before start", func(t *testing.T) {
		snap := liveSnapshot(0)
		snap.Status = model.StatusScheduled
		snap.StartsAt = baseTime.Add(30 * time.Minute)
		store := newFakeBidStore(snap)
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

		_, _, err := svc.PlaceBid(ctx, 1, 7, 1000)
		var stateErr *model.InvalidStateError
		if !errors.As(err, &stateErr) || stateErr.Reason != model.ReasonNotStarted {
			t.Fatalf("error = %v, want not-started state error", err)
		}
		if !stateErr.StartsAt.Equal(snap.StartsAt) {
			t.Fatalf("StartsAt = %s, want %s", stateErr.StartsAt, snap.StartsAt)
		}
	})

	t.Run("after close", func(t *testing.T) {
		snap := liveSnapshot(0)
		snap.Status = model.StatusScheduled
		snap.EndsAt = baseTime.Add(-time.Second)
		store := newFakeBidStore(snap)
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

		_, _, err := svc.PlaceBid(ctx, 1, 7, 1000)
		var stateErr *model.InvalidStateError
		if !errors.As(err, &stateErr) || stateErr.Reason != model.ReasonAlreadyEnded {
			t.Fatalf("error = %v, want already-ended state error", err)
		}
	})

	t.Run("at exact close still accepted", func(t *testing.T) {
		snap := liveSnapshot(0)
		snap.Status = model.StatusScheduled
		snap.EndsAt = baseTime
		store := newFakeBidStore(snap)
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

		// The engine window includes endsAt itself; the last instant bid
		// lands and triggers the soft close.
		_, extended, err := svc.PlaceBid(ctx, 1, 7, 1000)
		if err != nil {
			t.Fatalf("PlaceBid at endsAt failed: %v", err)
		}
		if !extended {
			t.Fatal("last-instant bid must trigger the soft close")
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		snap := liveSnapshot(0)
		snap.Status = model.StatusCancelled
		store := newFakeBidStore(snap)
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

		_, _, err := svc.PlaceBid(ctx, 1, 7, 1000)
		var stateErr *model.InvalidStateError
		if !errors.As(err, &stateErr) || stateErr.Reason != model.ReasonNotLive {
			t.Fatalf("error = %v, want not-live state error", err)
		}
	})

	t.Run("time window live before reconciler catches up", func(t *testing.T) {
		snap := liveSnapshot(500)
		snap.Status = model.StatusScheduled // stale column, window already open
		store := newFakeBidStore(snap)
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

		if _, _, err := svc.PlaceBid(ctx, 1, 7, 600); err != nil {
			t.Fatalf("bid inside open window rejected: %v", err)
		}
	})

	t.Run("unknown auction", func(t *testing.T) {
		store := newFakeBidStore(liveSnapshot(0))
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))
		if _, _, err := svc.PlaceBid(ctx, 99, 7, 1000); !errors.Is(err, model.ErrAuctionNotFound) {
			t.Fatalf("error = %v, want ErrAuctionNotFound", err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		store := newFakeBidStore(liveSnapshot(0))
		svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))
		if _, _, err := svc.PlaceBid(ctx, 1, 404, 1000); !errors.Is(err, model.ErrUserNotFound) {
			t.Fatalf("error = %v, want ErrUserNotFound", err)
		}
		if got := store.committedBids(); len(got) != 0 {
			t.Fatalf("failed bid committed %d rows", len(got))
		}
	})
}

func TestPlaceBidSoftClose(t *testing.T) {
	snap := liveSnapshot(12000)
	snap.EndsAt = baseTime.Add(60 * time.Second) // inside the 120s window
	store := newFakeBidStore(snap)
	events := &fakeEvents{}
	svc := NewBidService(store, events, clock.NewFixed(baseTime))

	_, extended, err := svc.PlaceBid(context.Background(), 1, 7, 12100)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if !extended {
		t.Fatal("bid inside the soft-close window must extend")
	}

	wantEnds := snap.EndsAt.Add(120 * time.Second)
	store.mu.Lock()
	gotEnds := store.auction.EndsAt
	store.mu.Unlock()
	if !gotEnds.Equal(wantEnds) {
		t.Fatalf("EndsAt = %s, want %s", gotEnds, wantEnds)
	}

	if len(events.exts) != 1 {
		t.Fatalf("auction.extended emitted %d times", len(events.exts))
	}
	ext := events.exts[0]
	if ext.AuctionID != 1 || ext.ExtendedBySec != 120 {
		t.Fatalf("auction.extended payload = %+v", ext)
	}
	if ext.EndsAt != wantEnds.Format(time.RFC3339) {
		t.Fatalf("auction.extended EndsAt = %q, want %q", ext.EndsAt, wantEnds.Format(time.RFC3339))
	}
	if len(events.order) != 2 || events.order[0] != realtime.EventExtended || events.order[1] != realtime.EventBid {
		t.Fatalf("event order = %v, want extended before bid.created", events.order)
	}
}

func TestPlaceBidNoExtensionOutsideWindow(t *testing.T) {
	snap := liveSnapshot(12000)
	snap.EndsAt = baseTime.Add(121 * time.Second) // one second past the window
	store := newFakeBidStore(snap)
	events := &fakeEvents{}
	svc := NewBidService(store, events, clock.NewFixed(baseTime))

	_, extended, err := svc.PlaceBid(context.Background(), 1, 7, 12100)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if extended || len(events.exts) != 0 {
		t.Fatal("bid outside the soft-close window must not extend")
	}
}

// Concurrent bids serialize on the row lock: every accepted bid clears the
// minimum increment against the price the previous commit left behind, so
// the committed amounts are strictly increasing.
func TestPlaceBidConcurrentSerialization(t *testing.T) {
	store := newFakeBidStore(liveSnapshot(1000))
	events := &fakeEvents{}
	svc := NewBidService(store, events, clock.NewFixed(baseTime))

	const n = 24
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		amount := int64(1100 + i*37) // deliberately messy spacing
		go func(amount int64) {
			defer wg.Done()
			_, _, err := svc.PlaceBid(context.Background(), 1, 8, amount)
			if err != nil {
				var amountErr *model.InvalidAmountError
				if !errors.As(err, &amountErr) {
					t.Errorf("unexpected error type: %v", err)
				}
			}
		}(amount)
	}
	wg.Wait()

	bids := store.committedBids()
	if len(bids) == 0 {
		t.Fatal("no bid was accepted")
	}
	prev := int64(1000)
	for i, b := range bids {
		if b.Amount < prev+model.MinIncrement {
			t.Fatalf("bid %d amount %d violates increment over %d", i, b.Amount, prev)
		}
		prev = b.Amount
	}
	if store.price() != prev {
		t.Fatalf("final price %d, want %d", store.price(), prev)
	}
	if len(events.bids) != len(bids) {
		t.Fatalf("emitted %d bid.created events for %d committed bids", len(events.bids), len(bids))
	}
}

// When every contender bids the exact minimum, the first commit raises the
// floor and all others fail against the updated minimum.
func TestPlaceBidExactMinimumRace(t *testing.T) {
	const startPrice = int64(12000)
	store := newFakeBidStore(liveSnapshot(startPrice))
	svc := NewBidService(store, &fakeEvents{}, clock.NewFixed(baseTime))

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _, err := svc.PlaceBid(context.Background(), 1, 7, startPrice+model.MinIncrement)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			var amountErr *model.InvalidAmountError
			if !errors.As(err, &amountErr) {
				t.Errorf("unexpected error type: %v", err)
				return
			}
			if amountErr.MinRequired != startPrice+2*model.MinIncrement {
				t.Errorf("MinRequired = %d, want %d", amountErr.MinRequired, startPrice+2*model.MinIncrement)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("%d bids at the exact minimum succeeded, want exactly 1", successes)
	}
	if store.price() != startPrice+model.MinIncrement {
		t.Fatalf("price = %d, want %d", store.price(), startPrice+model.MinIncrement)
	}
}

// panicEvents blows up on every emit.
type panicEvents struct{}

func (panicEvents) EmitBidCreated(realtime.BidCreated)           { panic("broadcast down") }
func (panicEvents) EmitAuctionExtended(realtime.AuctionExtended) { panic("broadcast down") }
func (panicEvents) EmitAuctionStatus(realtime.AuctionStatus)     { panic("broadcast down") }

func TestPlaceBidSurvivesBroadcastFailure(t *testing.T) {
	store := newFakeBidStore(liveSnapshot(1000))
	svc := NewBidService(store, panicEvents{}, clock.NewFixed(baseTime))

	bid, _, err := svc.PlaceBid(context.Background(), 1, 7, 1100)
	if err != nil {
		t.Fatalf("committed bid failed because broadcasting failed: %v", err)
	}
	if bid.ID == 0 {
		t.Fatal("bid not committed")
	}
	if store.price() != 1100 {
		t.Fatalf("price = %d, want 1100", store.price())
	}
}

// errStore wraps fakeBidStore to fail a chosen step mid-transaction.
type errStore struct {
	*fakeBidStore
	failPrice bool
}

func (e *errStore) UpdateAuctionPrice(ctx context.Context, id uint64, price int64) error {
	if e.failPrice {
		return fmt.Errorf("disk full")
	}
	return e.fakeBidStore.UpdateAuctionPrice(ctx, id, price)
}

func TestPlaceBidRollsBackOnStorageError(t *testing.T) {
	store := &errStore{fakeBidStore: newFakeBidStore(liveSnapshot(1000)), failPrice: true}
	events := &fakeEvents{}
	svc := NewBidService(store, events, clock.NewFixed(baseTime))

	if _, _, err := svc.PlaceBid(context.Background(), 1, 7, 1100); err == nil {
		t.Fatal("expected storage error")
	}
	if got := store.committedBids(); len(got) != 0 {
		t.Fatalf("aborted transaction committed %d bids", len(got))
	}
	if store.price() != 1000 {
		t.Fatalf("aborted transaction moved price to %d", store.price())
	}
	if len(events.order) != 0 {
		t.Fatalf("aborted transaction emitted events: %v", events.order)
	}
}
