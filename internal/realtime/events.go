// Package realtime fans auction events out to websocket viewers grouped by
// auction. Delivery is best-effort, at-most-once per connected client; a
// client that joins after an event was emitted must re-fetch current state.
package realtime

import (
	"time"

	"github.com/motorbid/vehicle-auction/internal/model"
)

// Wire event names. Client->server: auction.join, auction.leave.
// Server->client: auction.joined ack plus the three emit events.
const (
	EventJoin     = "auction.join"
	EventLeave    = "auction.leave"
	EventJoined   = "auction.joined"
	EventBid      = "bid.created"
	EventExtended = "auction.extended"
	EventStatus   = "auction.status"
)

// BidCreated announces an accepted bid to everyone watching the auction.
type BidCreated struct {
	AuctionID uint64        `json:"auctionId"`
	BidID     uint64        `json:"bidId"`
	Amount    int64         `json:"amount"`
	User      model.UserRef `json:"user"`
	At        time.Time     `json:"at"`
}

// AuctionExtended announces a soft-close extension.
type AuctionExtended struct {
	AuctionID     uint64 `json:"auctionId"`
	EndsAt        string `json:"endsAt"` // ISO 8601
	ExtendedBySec int    `json:"extendedBySec"`
}

// AuctionStatus announces a phase transition made by the reconciler or an
// admin cancellation. The optional fields let clients refresh their header
// without a re-fetch.
type AuctionStatus struct {
	AuctionID    uint64              `json:"auctionId"`
	Status       model.AuctionStatus `json:"status"`
	StartsAt     *time.Time          `json:"startsAt,omitempty"`
	EndsAt       *time.Time          `json:"endsAt,omitempty"`
	CurrentPrice *int64              `json:"currentPrice,omitempty"`
}

// envelope is the frame written to websocket clients.
type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// clientMessage is the frame read from websocket clients.
type clientMessage struct {
	Event     string `json:"event"`
	AuctionID uint64 `json:"auctionId"`
}
