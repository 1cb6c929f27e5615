package importer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/repository"
)

// Fetcher abstracts the vendor API so runs can be tested without HTTP.
type Fetcher interface {
	FetchPage(ctx context.Context, page, limit int) ([]VendorAuction, bool, error)
}

// AuctionStore is the slice of the auction repository the importer writes
// through.
type AuctionStore interface {
	FindBySource(ctx context.Context, source, sourceID string) (model.Auction, error)
	Create(ctx context.Context, a *model.Auction) error
	Update(ctx context.Context, id uint64, p repository.UpdateParams) (model.Auction, error)
}

// PhotoStore replaces an auction's photo set.
type PhotoStore interface {
	Replace(ctx context.Context, auctionID uint64, urls []string) error
}

// Service drives import runs: page through the vendor feed, validate each
// listing and upsert it by (source, source id). Existing listings keep
// their current price and bid history; only vendor-owned fields change.
type Service struct {
	auctions AuctionStore
	photos   PhotoStore
	fetch    Fetcher
	source   string
	dryRun   bool
	pageSize int
	maxPages int
}

// RunResult summarizes one import run. ID tags the run's log lines so
// overlapping runs can be told apart.
type RunResult struct {
	ID      string `json:"id"`
	Pages   int    `json:"pages"`
	Seen    int    `json:"seen"`
	Created int    `json:"created"`
	Updated int    `json:"updated"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

// NewService wires an import service. source labels rows created by this
// feed; maxPages caps a single run so a misbehaving feed cannot spin
// forever.
func NewService(a AuctionStore, p PhotoStore, fetch Fetcher, source string, dryRun bool) *Service {
	if a == nil || p == nil || fetch == nil {
		panic("nil dependency passed to importer.NewService")
	}
	if source == "" {
		source = "vendor"
	}
	return &Service{
		auctions: a,
		photos:   p,
		fetch:    fetch,
		source:   source,
		dryRun:   dryRun,
		pageSize: defaultPageSize,
		maxPages: 100,
	}
}

// Run executes one full import pass and returns its counters. Item-level
// failures are counted and logged, not fatal; a page-level fetch failure
// aborts the run with the partial result.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{ID: uuid.NewString()}
	for page := 1; page <= s.maxPages; page++ {
		items, hasMore, err := s.fetch.FetchPage(ctx, page, s.pageSize)
		if err != nil {
			return res, fmt.Errorf("import page %d: %w", page, err)
		}
		res.Pages++
		for _, va := range items {
			res.Seen++
			switch outcome, err := s.upsert(ctx, va); {
			case err != nil:
				res.Failed++
				log.Printf("import: run=%s item %q failed: %v", res.ID, va.ID, err)
			case outcome == outcomeCreated:
				res.Created++
			case outcome == outcomeUpdated:
				res.Updated++
			default:
				res.Skipped++
			}
		}
		if !hasMore {
			break
		}
	}
	log.Printf("import: run=%s finished source=%s pages=%d seen=%d created=%d updated=%d skipped=%d failed=%d",
		res.ID, s.source, res.Pages, res.Seen, res.Created, res.Updated, res.Skipped, res.Failed)
	return res, nil
}

type upsertOutcome int

const (
	outcomeSkipped upsertOutcome = iota
	outcomeCreated
	outcomeUpdated
)

func (s *Service) upsert(ctx context.Context, va VendorAuction) (upsertOutcome, error) {
	if va.ID == "" || strings.TrimSpace(va.Title) == "" {
		return outcomeSkipped, nil
	}
	if va.StartsAt.IsZero() || va.EndsAt.IsZero() || !va.StartsAt.Before(va.EndsAt) {
		return outcomeSkipped, nil
	}
	vin := strings.ToUpper(strings.TrimSpace(va.VIN))
	if vin != "" && !model.ValidVIN(vin) {
		// Vendors ship junk VINs; keep the listing, drop the VIN.
		vin = ""
	}
	if s.dryRun {
		return outcomeSkipped, nil
	}

	existing, err := s.auctions.FindBySource(ctx, s.source, va.ID)
	switch {
	case errors.Is(err, model.ErrAuctionNotFound):
		a := model.Auction{
			Title:        strings.TrimSpace(va.Title),
			VIN:          vin,
			StartsAt:     va.StartsAt.UTC(),
			EndsAt:       va.EndsAt.UTC(),
			CurrentPrice: va.StartingPrice,
			SoftCloseSec: va.SoftCloseSec,
			Source:       s.source,
			SourceID:     va.ID,
			Raw:          va.Raw,
		}
		if a.SoftCloseSec != 0 && a.SoftCloseSec < model.MinSoftCloseSec {
			a.SoftCloseSec = model.MinSoftCloseSec
		}
		if err := s.auctions.Create(ctx, &a); err != nil {
			return outcomeSkipped, err
		}
		if err := s.replacePhotos(ctx, a.ID, va.Photos); err != nil {
			return outcomeSkipped, err
		}
		return outcomeCreated, nil
	case err != nil:
		return outcomeSkipped, err
	}

	// Existing row: refresh vendor-owned fields only. Current price belongs
	// to the bid engine once bidding has started.
	title := strings.TrimSpace(va.Title)
	startsAt := va.StartsAt.UTC()
	endsAt := va.EndsAt.UTC()
	p := repository.UpdateParams{
		Title:    &title,
		StartsAt: &startsAt,
		EndsAt:   &endsAt,
		Raw:      va.Raw,
	}
	if vin != "" {
		p.VIN = &vin
	}
	if va.SoftCloseSec >= model.MinSoftCloseSec {
		p.SoftCloseSec = &va.SoftCloseSec
	}
	if _, err := s.auctions.Update(ctx, existing.ID, p); err != nil && !errors.Is(err, repository.ErrNoChange) {
		return outcomeSkipped, err
	}
	if err := s.replacePhotos(ctx, existing.ID, va.Photos); err != nil {
		return outcomeSkipped, err
	}
	return outcomeUpdated, nil
}

func (s *Service) replacePhotos(ctx context.Context, auctionID uint64, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	return s.photos.Replace(ctx, auctionID, urls)
}
