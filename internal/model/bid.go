package model

import "time"

// MinIncrement is the smallest amount, in minor units, by which a new bid
// must exceed the auction's current price.
const MinIncrement int64 = 100

// Bid is an append-only fact record: it is never mutated or deleted by the
// normal flow. Bidder carries the identity subset safe for display.
type Bid struct {
	ID        uint64    `json:"id"`
	AuctionID uint64    `json:"auction_id"`
	UserID    uint64    `json:"user_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	Bidder    UserRef   `json:"user"`
}

// UserRef is the bidder identity exposed on bids and realtime events.
// It deliberately excludes the password hash and any other sensitive column.
type UserRef struct {
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
