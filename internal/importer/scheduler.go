package importer

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/motorbid/vehicle-auction/internal/repository"
)

// Options come from the environment: IMPORT_ENABLED gates the scheduler,
// IMPORT_INTERVAL sets the cadence, IMPORT_SOURCE labels imported rows,
// IMPORT_DRY_RUN validates without writing and IMPORT_MOCK substitutes a
// built-in fixture feed for local development.
type Options struct {
	Enabled  bool
	Interval time.Duration
	Source   string
	DryRun   bool
	Mock     bool
}

func OptionsFromEnv() Options {
	opts := Options{
		Enabled:  os.Getenv("IMPORT_ENABLED") == "1" || os.Getenv("IMPORT_ENABLED") == "true",
		Interval: 15 * time.Minute,
		Source:   os.Getenv("IMPORT_SOURCE"),
		DryRun:   os.Getenv("IMPORT_DRY_RUN") == "1",
		Mock:     os.Getenv("IMPORT_MOCK") == "1",
	}
	if v := os.Getenv("IMPORT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= time.Minute {
			opts.Interval = d
		}
	}
	return opts
}

// NewServiceFromEnv assembles the import service per the environment, or
// nil when imports are not configured (no vendor base URL and no mock).
func NewServiceFromEnv(a *repository.AuctionRepo, p *repository.PhotoRepo, opts Options) *Service {
	var fetch Fetcher
	if opts.Mock {
		fetch = mockFetcher{}
	} else if c := NewClientFromEnv(); c != nil {
		fetch = c
	} else {
		return nil
	}
	return NewService(a, p, fetch, opts.Source, opts.DryRun)
}

// RunPeriodic executes an import run every interval until the context is
// cancelled. The first run fires immediately so a fresh deploy does not
// wait a full interval for inventory.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	if _, err := s.Run(ctx); err != nil {
		log.Printf("import: initial run failed: %v", err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				log.Printf("import: scheduled run failed: %v", err)
			}
		}
	}
}

// mockFetcher serves two fixed listings for local development.
type mockFetcher struct{}

func (mockFetcher) FetchPage(_ context.Context, page, _ int) ([]VendorAuction, bool, error) {
	if page > 1 {
		return nil, false, nil
	}
	now := time.Now().UTC()
	items := []VendorAuction{
		{
			ID:            "mock-1",
			Title:         "2019 Toyota Corolla",
			VIN:           "5YFBURHE5KP900001",
			StartsAt:      now.Add(-time.Hour),
			EndsAt:        now.Add(24 * time.Hour),
			StartingPrice: 850000,
			SoftCloseSec:  120,
			Photos:        []string{"https://img.example.com/mock-1/front.jpg"},
		},
		{
			ID:            "mock-2",
			Title:         "2021 Ford F-150",
			VIN:           "1FTFW1E50MF000002",
			StartsAt:      now.Add(time.Hour),
			EndsAt:        now.Add(48 * time.Hour),
			StartingPrice: 2400000,
			SoftCloseSec:  180,
			Photos:        []string{"https://img.example.com/mock-2/front.jpg", "https://img.example.com/mock-2/bed.jpg"},
		},
	}
	for i := range items {
		raw, _ := json.Marshal(items[i])
		items[i].Raw = raw
	}
	return items, false, nil
}
