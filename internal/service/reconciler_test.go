package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/model"
)

// fakeReconcilerStore holds auction rows as (status, window) tuples and
// answers the due queries the way the real SQL does: both exclude
// CANCELLED, promote-to-LIVE matches SCHEDULED rows whose window is open,
// promote-to-ENDED matches LIVE rows whose window closed.
type fakeReconcilerStore struct {
	rows    map[uint64]*reconcilerRow
	liveErr error
}

type reconcilerRow struct {
	status   model.AuctionStatus
	startsAt time.Time
	endsAt   time.Time
}

func (f *fakeReconcilerStore) FindDueForLive(_ context.Context, now time.Time) ([]uint64, error) {
	if f.liveErr != nil {
		return nil, f.liveErr
	}
	var ids []uint64
	for id, r := range f.rows {
		if r.status == model.StatusScheduled && !now.Before(r.startsAt) && now.Before(r.endsAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeReconcilerStore) FindDueForEnd(_ context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	for id, r := range f.rows {
		if r.status == model.StatusLive && !now.Before(r.endsAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeReconcilerStore) BulkUpdateStatus(_ context.Context, ids []uint64, status model.AuctionStatus) error {
	for _, id := range ids {
		f.rows[id].status = status
	}
	return nil
}

func TestSweepPromotesBothPhases(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeReconcilerStore{rows: map[uint64]*reconcilerRow{
		1: {model.StatusScheduled, now.Add(-time.Minute), now.Add(time.Hour)},  // due for LIVE
		2: {model.StatusScheduled, now.Add(time.Minute), now.Add(time.Hour)},   // not yet open
		3: {model.StatusLive, now.Add(-2 * time.Hour), now.Add(-time.Minute)},  // due for ENDED
		4: {model.StatusLive, now.Add(-time.Hour), now},                        // closes exactly now
		5: {model.StatusCancelled, now.Add(-time.Hour), now.Add(-time.Minute)}, // excluded
		6: {model.StatusEnded, now.Add(-3 * time.Hour), now.Add(-2 * time.Hour)},
	}}
	events := &fakeEvents{}
	r := NewReconciler(store, events, clock.NewFixed(now), 0)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}

	want := map[uint64]model.AuctionStatus{
		1: model.StatusLive,
		2: model.StatusScheduled,
		3: model.StatusEnded,
		4: model.StatusEnded,
		5: model.StatusCancelled,
		6: model.StatusEnded,
	}
	for id, w := range want {
		if got := store.rows[id].status; got != w {
			t.Errorf("auction %d status = %s, want %s", id, got, w)
		}
	}

	if len(events.stats) != 3 {
		t.Fatalf("emitted %d auction.status events, want 3: %+v", len(events.stats), events.stats)
	}
	byID := map[uint64]model.AuctionStatus{}
	for _, ev := range events.stats {
		byID[ev.AuctionID] = ev.Status
	}
	if byID[1] != model.StatusLive || byID[3] != model.StatusEnded || byID[4] != model.StatusEnded {
		t.Fatalf("auction.status payloads = %v", byID)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeReconcilerStore{rows: map[uint64]*reconcilerRow{
		1: {model.StatusScheduled, now.Add(-time.Minute), now.Add(time.Hour)},
	}}
	events := &fakeEvents{}
	r := NewReconciler(store, events, clock.NewFixed(now), 0)

	ctx := context.Background()
	if err := r.Sweep(ctx); err != nil {
		t.Fatalf("first sweep failed: %v", err)
	}
	if err := r.Sweep(ctx); err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if store.rows[1].status != model.StatusLive {
		t.Fatalf("status = %s, want LIVE", store.rows[1].status)
	}
	if len(events.stats) != 1 {
		t.Fatalf("second sweep re-emitted: %d events total", len(events.stats))
	}
}

// A row promoted to LIVE in phase one must not be swept to ENDED by phase
// two of the same run while its window is still open.
func TestSweepNewlyLiveNotEndedSameSweep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeReconcilerStore{rows: map[uint64]*reconcilerRow{
		1: {model.StatusScheduled, now.Add(-time.Second), now.Add(time.Hour)},
	}}
	events := &fakeEvents{}
	r := NewReconciler(store, events, clock.NewFixed(now), 0)

	if err := r.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if store.rows[1].status != model.StatusLive {
		t.Fatalf("status = %s, want LIVE", store.rows[1].status)
	}
}

func TestSweepStoreErrorPropagates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wantErr := errors.New("connection reset")
	store := &fakeReconcilerStore{rows: map[uint64]*reconcilerRow{}, liveErr: wantErr}
	r := NewReconciler(store, &fakeEvents{}, clock.NewFixed(now), 0)

	if err := r.Sweep(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("Sweep error = %v, want %v", err, wantErr)
	}
}
