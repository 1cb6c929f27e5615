package model

import (
	"encoding/json"
	"regexp"
	"time"
)

// AuctionStatus enumerates the lifecycle phases of an auction as stored in
// the `auctions.status` column. Transitions are one-directional
// (SCHEDULED -> LIVE -> ENDED) except CANCELLED, which may be set at any
// point and overrides the time-derived phase.
type AuctionStatus string

const (
	StatusScheduled AuctionStatus = "SCHEDULED"
	StatusLive      AuctionStatus = "LIVE"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCancelled AuctionStatus = "CANCELLED"
)

// DefaultSoftCloseSec is applied when an auction is created without an
// explicit soft-close window.
const DefaultSoftCloseSec = 120

// MinSoftCloseSec is the smallest accepted soft-close window.
const MinSoftCloseSec = 30

// Auction represents a vehicle listing open for time-boxed bidding.
//
// Fields:
//
//	ID           – primary key identifier.
//	Title        – listing title, e.g. "2018 Audi A4 2.0 TFSI".
//	VIN          – optional vehicle identification number (validated format).
//	StartsAt     – when bidding opens (UTC). Must precede EndsAt.
//	EndsAt       – when bidding closes (UTC); moves forward under soft close.
//	CurrentPrice – highest accepted bid in minor units; non-decreasing once
//	               bidding starts.
//	SoftCloseSec – trailing grace window in seconds; a bid landing inside it
//	               extends EndsAt by the same amount.
//	Status       – persisted lifecycle phase, maintained by the reconciler.
//	Source       – vendor identifier for imported records ("" when created
//	               by an admin).
//	SourceID     – external identifier at the vendor.
//	Raw          – original vendor payload kept verbatim for imported rows.
type Auction struct {
	ID           uint64          `json:"id"`
	Title        string          `json:"title"`
	VIN          string          `json:"vin,omitempty"`
	StartsAt     time.Time       `json:"starts_at"`
	EndsAt       time.Time       `json:"ends_at"`
	CurrentPrice int64           `json:"current_price"`
	SoftCloseSec int             `json:"soft_close_sec"`
	Status       AuctionStatus   `json:"status"`
	Source       string          `json:"source,omitempty"`
	SourceID     string          `json:"source_id,omitempty"`
	Raw          json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// AuctionSnapshot is the subset of auction state the bid engine reads and
// validates against inside its transaction.
type AuctionSnapshot struct {
	ID           uint64
	Status       AuctionStatus
	StartsAt     time.Time
	EndsAt       time.Time
	CurrentPrice int64
	SoftCloseSec int
}

// DerivedStatus computes the lifecycle phase of an auction at the given
// instant. An explicit CANCELLED column always wins; otherwise the phase is
// derived from [StartsAt, EndsAt). The persisted Status column may lag this
// value until the reconciler catches up – callers that need real-time
// accuracy use DerivedStatus, callers that need the stored phase read
// Status directly. Both paths are intentional.
func (a *Auction) DerivedStatus(now time.Time) AuctionStatus {
	return DeriveStatus(a.Status, a.StartsAt, a.EndsAt, now)
}

// DeriveStatus is the column-free form of DerivedStatus, usable on
// snapshots and listing rows.
func DeriveStatus(persisted AuctionStatus, startsAt, endsAt, now time.Time) AuctionStatus {
	if persisted == StatusCancelled {
		return StatusCancelled
	}
	if now.Before(startsAt) {
		return StatusScheduled
	}
	if !now.Before(endsAt) {
		return StatusEnded
	}
	return StatusLive
}

// AuctionPhoto is a single image attached to an auction. Imported listings
// carry vendor-hosted URLs; Sort preserves the vendor's ordering.
type AuctionPhoto struct {
	ID        uint64    `json:"id"`
	AuctionID uint64    `json:"auction_id"`
	URL       string    `json:"url"`
	Sort      int       `json:"sort"`
	CreatedAt time.Time `json:"created_at"`
}

// vinPattern accepts the characters permitted in a VIN. The letters I, O
// and Q are excluded to avoid confusion with 1 and 0.
var vinPattern = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]+$`)

// ValidVIN reports whether s is an acceptable VIN: 11 to 17 characters
// drawn from the VIN alphabet. The empty string is not valid; callers
// treat VIN as optional and skip validation when absent.
func ValidVIN(s string) bool {
	if len(s) < 11 || len(s) > 17 {
		return false
	}
	return vinPattern.MatchString(s)
}
