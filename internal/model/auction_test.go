package model

import (
	"testing"
	"time"
)

func TestDeriveStatus(t *testing.T) {
	startsAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	endsAt := startsAt.Add(2 * time.Hour)

	cases := []struct {
		name      string
		persisted AuctionStatus
		now       time.Time
		want      AuctionStatus
	}{
		{"before window", StatusScheduled, startsAt.Add(-time.Minute), StatusScheduled},
		{"at open", StatusScheduled, startsAt, StatusLive},
		{"inside window", StatusScheduled, startsAt.Add(time.Hour), StatusLive},
		{"at close", StatusLive, endsAt, StatusEnded},
		{"after close", StatusLive, endsAt.Add(time.Minute), StatusEnded},
		{"cancelled wins before start", StatusCancelled, startsAt.Add(-time.Minute), StatusCancelled},
		{"cancelled wins inside window", StatusCancelled, startsAt.Add(time.Hour), StatusCancelled},
		{"cancelled wins after close", StatusCancelled, endsAt.Add(time.Hour), StatusCancelled},
		{"stale persisted status ignored", StatusScheduled, endsAt.Add(time.Minute), StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveStatus(tc.persisted, startsAt, endsAt, tc.now)
			if got != tc.want {
				t.Fatalf("DeriveStatus(%s, now=%s) = %s, want %s", tc.persisted, tc.now, got, tc.want)
			}
			a := Auction{Status: tc.persisted, StartsAt: startsAt, EndsAt: endsAt}
			if got := a.DerivedStatus(tc.now); got != tc.want {
				t.Fatalf("DerivedStatus(now=%s) = %s, want %s", tc.now, got, tc.want)
			}
		})
	}
}

func TestValidVIN(t *testing.T) {
	valid := []string{
		"5YFBURHE5KP900001",
		"1FTFW1E50MF000002",
		"ABCDEFGH123", // 11 chars, lower bound
	}
	for _, vin := range valid {
		if !ValidVIN(vin) {
			t.Errorf("ValidVIN(%q) = false, want true", vin)
		}
	}

	invalid := []string{
		"",
		"SHORT12345",          // 10 chars
		"5YFBURHE5KP900001X7", // 18 chars
		"5YFBURHE5KP90000I",   // contains I
		"5YFBURHE5KP90000O",   // contains O
		"5YFBURHE5KP90000Q",   // contains Q
		"5yfburhe5kp900001",   // lowercase
		"5YFBURHE5KP9000-1",   // punctuation
	}
	for _, vin := range invalid {
		if ValidVIN(vin) {
			t.Errorf("ValidVIN(%q) = true, want false", vin)
		}
	}
}
