package queue

// BidRecordedEvent is published after a bid transaction commits. It carries
// enough information for downstream consumers to audit, notify, or feed
// analytics without querying the primary database. No sensitive bidder
// fields are included.
type BidRecordedEvent struct {
	BidID        uint64 `json:"bid_id"`
	AuctionID    uint64 `json:"auction_id"`
	AuctionTitle string `json:"auction_title"`
	UserID       uint64 `json:"user_id"`
	UserEmail    string `json:"user_email"`
	Amount       int64  `json:"amount"`
	CurrentPrice int64  `json:"current_price"`
	Extended     bool   `json:"extended"`
	EndsAt       string `json:"ends_at"`
	PlacedAt     string `json:"placed_at"`
}
