package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/queue"
	"github.com/motorbid/vehicle-auction/internal/repository"
)

// BidPlacer is the slice of the bid engine the HTTP layer needs.
type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, userID uint64, amount int64) (model.Bid, bool, error)
}

type BidHandler struct {
	Service  BidPlacer
	Auctions *repository.AuctionRepo
	Bids     *repository.BidRepo
}

func NewBidHandler(svc BidPlacer, a *repository.AuctionRepo, b *repository.BidRepo) *BidHandler {
	if svc == nil || a == nil || b == nil {
		panic("nil dependency passed to NewBidHandler")
	}
	return &BidHandler{Service: svc, Auctions: a, Bids: b}
}

type placeBidReq struct {
	Amount int64 `json:"amount"`
}

// Place handles POST /v1/auctions/:id/bids. Domain failures map to typed
// responses so clients can tell a closed auction from a low amount.
func (h *BidHandler) Place(c echo.Context) error {
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req placeBidReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}

	ctx := c.Request().Context()
	bid, extended, err := h.Service.PlaceBid(ctx, auctionID, userID, req.Amount)
	if err != nil {
		var stateErr *model.InvalidStateError
		var amountErr *model.InvalidAmountError
		switch {
		case errors.Is(err, model.ErrAuctionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		case errors.Is(err, model.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		case errors.As(err, &stateErr):
			resp := echo.Map{"error": stateErr.Error(), "reason": string(stateErr.Reason)}
			if stateErr.Reason == model.ReasonNotStarted {
				resp["starts_at"] = stateErr.StartsAt.UTC()
			}
			return c.JSON(http.StatusBadRequest, resp)
		case errors.As(err, &amountErr):
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error":        amountErr.Error(),
				"min_required": amountErr.MinRequired,
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "place bid failed"})
	}

	h.publishRecorded(ctx, bid, extended)

	return c.JSON(http.StatusCreated, echo.Map{"item": bid, "extended": extended})
}

// publishRecorded ships the accepted bid to the audit queue. The bid is
// already committed, so a broker outage only costs the audit line.
func (h *BidHandler) publishRecorded(ctx context.Context, bid model.Bid, extended bool) {
	a, err := h.Auctions.GetByID(ctx, bid.AuctionID)
	if err != nil {
		log.Printf("bid %d: skipping audit publish, auction lookup failed: %v", bid.ID, err)
		return
	}
	ev := queue.BidRecordedEvent{
		BidID:        bid.ID,
		AuctionID:    bid.AuctionID,
		AuctionTitle: a.Title,
		UserID:       bid.UserID,
		UserEmail:    bid.Bidder.Email,
		Amount:       bid.Amount,
		CurrentPrice: a.CurrentPrice,
		Extended:     extended,
		EndsAt:       a.EndsAt.UTC().Format(time.RFC3339),
		PlacedAt:     bid.CreatedAt.UTC().Format(time.RFC3339),
	}
	if err := queue.PublishBidRecorded(ctx, ev); err != nil {
		log.Printf("bid %d: audit publish failed: %v", bid.ID, err)
	}
}

// ListForAuction handles GET /v1/auctions/:id/bids, newest first.
func (h *BidHandler) ListForAuction(c echo.Context) error {
	auctionID, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ctx := c.Request().Context()
	if _, err := h.Auctions.GetByID(ctx, auctionID); err != nil {
		if errors.Is(err, model.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	bids, err := h.Bids.ListByAuction(ctx, auctionID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load bids"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": bids, "count": len(bids)})
}
