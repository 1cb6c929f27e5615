package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/motorbid/vehicle-auction/internal/clock"
	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/realtime"
	"github.com/motorbid/vehicle-auction/internal/repository"
	"github.com/motorbid/vehicle-auction/internal/service"
)

// AuctionHandler covers listing CRUD, stats and cancellation. Admin-only
// endpoints are gated by middleware; read endpoints are public.
type AuctionHandler struct {
	Auctions *repository.AuctionRepo
	Bids     *repository.BidRepo
	Photos   *repository.PhotoRepo
	Events   service.Broadcaster
	Clock    clock.Clock
}

func NewAuctionHandler(a *repository.AuctionRepo, b *repository.BidRepo, p *repository.PhotoRepo, ev service.Broadcaster, clk clock.Clock) *AuctionHandler {
	if a == nil || b == nil || p == nil || ev == nil || clk == nil {
		panic("nil dependency passed to NewAuctionHandler")
	}
	return &AuctionHandler{Auctions: a, Bids: b, Photos: p, Events: ev, Clock: clk}
}

// auctionView decorates an auction row with its derived phase and cover
// photo for listing responses.
type auctionView struct {
	model.Auction
	DerivedStatus model.AuctionStatus `json:"derived_status"`
	CoverURL      string              `json:"cover_url,omitempty"`
}

type createAuctionReq struct {
	Title        string `json:"title"`
	VIN          string `json:"vin"`
	StartsAt     string `json:"starts_at"`
	EndsAt       string `json:"ends_at"`
	CurrentPrice int64  `json:"current_price"`
	SoftCloseSec int    `json:"soft_close_sec"`
}

// List handles GET /v1/auctions with optional status/search/sort/paging
// query parameters. The persisted status column may trail the reconciler,
// so each row also carries the derived phase computed at read time.
func (h *AuctionHandler) List(c echo.Context) error {
	now := h.Clock.Now()
	f := repository.ListFilter{
		Status:       model.AuctionStatus(strings.ToUpper(c.QueryParam("status"))),
		Search:       c.QueryParam("search"),
		Sort:         c.QueryParam("sort"),
		Order:        c.QueryParam("order"),
		ExcludeEnded: c.QueryParam("exclude_ended") == "1",
	}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	ctx := c.Request().Context()
	items, total, err := h.Auctions.List(ctx, f, now)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load auctions"})
	}

	views := make([]auctionView, 0, len(items))
	for _, a := range items {
		cover, err := h.Photos.CoverURL(ctx, a.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load photos"})
		}
		views = append(views, auctionView{Auction: a, DerivedStatus: a.DerivedStatus(now), CoverURL: cover})
	}

	limit := f.Limit
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	pages := (total + limit - 1) / limit
	page := f.Page
	if page < 1 {
		page = 1
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": views,
		"page":  page,
		"limit": limit,
		"total": total,
		"pages": pages,
	})
}

// Get handles GET /v1/auctions/:id, returning the auction with its derived
// phase and full photo set.
func (h *AuctionHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ctx := c.Request().Context()
	a, err := h.Auctions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	photos, err := h.Photos.ListByAuction(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load photos"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"item":   auctionView{Auction: a, DerivedStatus: a.DerivedStatus(h.Clock.Now())},
		"photos": photos,
	})
}

// Stats handles GET /v1/auctions/stats for the admin dashboard.
func (h *AuctionHandler) Stats(c echo.Context) error {
	s, err := h.Auctions.CountStats(c.Request().Context(), h.Clock.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to compute stats"})
	}
	return c.JSON(http.StatusOK, s)
}

// Create handles POST /v1/auctions (admin). Validates the time window, the
// optional VIN format and the soft-close floor.
func (h *AuctionHandler) Create(c echo.Context) error {
	var req createAuctionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	startsAt, err1 := time.Parse(time.RFC3339, req.StartsAt)
	endsAt, err2 := time.Parse(time.RFC3339, req.EndsAt)
	if err1 != nil || err2 != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at/ends_at must be RFC 3339 timestamps"})
	}
	if !startsAt.Before(endsAt) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be before ends_at"})
	}
	req.VIN = strings.ToUpper(strings.TrimSpace(req.VIN))
	if req.VIN != "" && !model.ValidVIN(req.VIN) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid vin format"})
	}
	if req.CurrentPrice < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "current_price must not be negative"})
	}
	if req.SoftCloseSec == 0 {
		req.SoftCloseSec = model.DefaultSoftCloseSec
	}
	if req.SoftCloseSec < model.MinSoftCloseSec {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "soft_close_sec must be at least 30"})
	}

	a := model.Auction{
		Title:        req.Title,
		VIN:          req.VIN,
		StartsAt:     startsAt.UTC(),
		EndsAt:       endsAt.UTC(),
		CurrentPrice: req.CurrentPrice,
		SoftCloseSec: req.SoftCloseSec,
	}
	if err := h.Auctions.Create(c.Request().Context(), &a); err != nil {
		if errors.Is(err, repository.ErrVINExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "vin must be unique"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create auction failed"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": a})
}

type updateAuctionReq struct {
	Title        *string `json:"title"`
	VIN          *string `json:"vin"`
	StartsAt     *string `json:"starts_at"`
	EndsAt       *string `json:"ends_at"`
	SoftCloseSec *int    `json:"soft_close_sec"`
}

// Update handles PATCH /v1/auctions/:id (admin). Only supplied fields change.
func (h *AuctionHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	var req updateAuctionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	var p repository.UpdateParams
	p.Title = req.Title
	if req.VIN != nil {
		vin := strings.ToUpper(strings.TrimSpace(*req.VIN))
		if vin != "" && !model.ValidVIN(vin) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid vin format"})
		}
		p.VIN = &vin
	}
	if req.StartsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.StartsAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "starts_at must be an RFC 3339 timestamp"})
		}
		p.StartsAt = &t
	}
	if req.EndsAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EndsAt)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "ends_at must be an RFC 3339 timestamp"})
		}
		p.EndsAt = &t
	}
	if req.SoftCloseSec != nil {
		if *req.SoftCloseSec < model.MinSoftCloseSec {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "soft_close_sec must be at least 30"})
		}
		p.SoftCloseSec = req.SoftCloseSec
	}

	a, err := h.Auctions.Update(c.Request().Context(), id, p)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrAuctionNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		case errors.Is(err, repository.ErrVINExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "vin must be unique"})
		case errors.Is(err, repository.ErrNoChange):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "no fields to update"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update auction failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"item": a})
}

// Cancel handles POST /v1/auctions/:id/cancel (admin). Cancellation wins
// over the time-derived phase immediately and is announced to the room.
func (h *AuctionHandler) Cancel(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	if err := h.Auctions.Cancel(c.Request().Context(), id); err != nil {
		if errors.Is(err, model.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cancel auction failed"})
	}
	h.Events.EmitAuctionStatus(realtime.AuctionStatus{AuctionID: id, Status: model.StatusCancelled})
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// Delete handles DELETE /v1/auctions/:id (admin). An auction with bids is
// never hard-deleted; cancel it instead.
func (h *AuctionHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid auction id"})
	}
	ctx := c.Request().Context()
	n, err := h.Bids.CountByAuction(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if n > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "auction has bids; cancel it instead"})
	}
	if err := h.Auctions.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrAuctionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "auction not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete auction failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
