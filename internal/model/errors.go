// Package model defines the auction domain types and the typed errors the
// bid engine surfaces. Handlers translate these into HTTP responses so the
// client always learns the specific rejection reason.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for missing aggregates.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrAuctionNotFound = errors.New("auction not found")
)

// StateReason narrows why an auction is not in a biddable phase.
type StateReason string

const (
	ReasonNotStarted   StateReason = "not_started"
	ReasonAlreadyEnded StateReason = "already_ended"
	ReasonNotLive      StateReason = "not_live"
)

// InvalidStateError rejects a bid against an auction that is not live.
// StartsAt is populated only for ReasonNotStarted so clients can display
// when bidding opens.
type InvalidStateError struct {
	Reason   StateReason
	StartsAt time.Time
}

func (e *InvalidStateError) Error() string {
	switch e.Reason {
	case ReasonNotStarted:
		return fmt.Sprintf("auction not started yet (starts at %s)", e.StartsAt.UTC().Format(time.RFC3339))
	case ReasonAlreadyEnded:
		return "auction already ended"
	default:
		return "auction is not live"
	}
}

// InvalidAmountError rejects a bid below the minimum. MinRequired carries
// the computed floor for client display.
type InvalidAmountError struct {
	MinRequired int64
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("bid too low, minimum is %d", e.MinRequired)
}
