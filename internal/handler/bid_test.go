package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"

	"github.com/motorbid/vehicle-auction/internal/model"
	"github.com/motorbid/vehicle-auction/internal/repository"
)

type stubPlacer struct {
	bid      model.Bid
	extended bool
	err      error

	gotAuction uint64
	gotUser    uint64
	gotAmount  int64
}

func (s *stubPlacer) PlaceBid(_ context.Context, auctionID, userID uint64, amount int64) (model.Bid, bool, error) {
	s.gotAuction, s.gotUser, s.gotAmount = auctionID, userID, amount
	return s.bid, s.extended, s.err
}

// brokenDB gives the repositories a handle whose queries fail instead of
// panicking, which is all the audit-publish path needs in these tests.
func brokenDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", "test@tcp(127.0.0.1:1)/test")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func placeRequest(t *testing.T, h *BidHandler, auctionID, body string, userID any) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/auctions/"+auctionID+"/bids", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(auctionID)
	if userID != nil {
		c.Set("user_id", userID)
	}
	return rec, h.Place(c)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
	}
	return m
}

func TestPlaceBidEndpoint(t *testing.T) {
	db := brokenDB(t)
	auctions := repository.NewAuctionRepo(db)
	bids := repository.NewBidRepo(db)

	t.Run("accepted", func(t *testing.T) {
		svc := &stubPlacer{
			bid: model.Bid{
				ID:        9,
				AuctionID: 1,
				UserID:    7,
				Amount:    12100,
				CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			},
			extended: true,
		}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":12100}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, want 201", rec.Code)
		}
		if svc.gotAuction != 1 || svc.gotUser != 7 || svc.gotAmount != 12100 {
			t.Fatalf("service called with (%d, %d, %d)", svc.gotAuction, svc.gotUser, svc.gotAmount)
		}
		body := decodeBody(t, rec)
		if body["extended"] != true {
			t.Fatalf("extended = %v", body["extended"])
		}
	})

	t.Run("below minimum", func(t *testing.T) {
		svc := &stubPlacer{err: &model.InvalidAmountError{MinRequired: 12100}}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":12050}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["min_required"] != float64(12100) {
			t.Fatalf("min_required = %v", body["min_required"])
		}
	})

	t.Run("not started carries opening time", func(t *testing.T) {
		startsAt := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		svc := &stubPlacer{err: &model.InvalidStateError{Reason: model.ReasonNotStarted, StartsAt: startsAt}}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":1000}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["reason"] != string(model.ReasonNotStarted) {
			t.Fatalf("reason = %v", body["reason"])
		}
		if body["starts_at"] == nil {
			t.Fatal("starts_at missing for not-started rejection")
		}
	})

	t.Run("already ended", func(t *testing.T) {
		svc := &stubPlacer{err: &model.InvalidStateError{Reason: model.ReasonAlreadyEnded}}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":1000}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if body := decodeBody(t, rec); body["reason"] != string(model.ReasonAlreadyEnded) {
			t.Fatalf("reason = %v", body["reason"])
		}
	})

	t.Run("auction not found", func(t *testing.T) {
		svc := &stubPlacer{err: model.ErrAuctionNotFound}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "99", `{"amount":1000}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("missing identity", func(t *testing.T) {
		h := NewBidHandler(&stubPlacer{}, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":1000}`, nil)
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("non-positive amount", func(t *testing.T) {
		svc := &stubPlacer{}
		h := NewBidHandler(svc, auctions, bids)
		rec, err := placeRequest(t, h, "1", `{"amount":0}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if svc.gotAmount != 0 && svc.gotAuction != 0 {
			t.Fatal("service called for a rejected body")
		}
	})

	t.Run("bad auction id", func(t *testing.T) {
		h := NewBidHandler(&stubPlacer{}, auctions, bids)
		rec, err := placeRequest(t, h, "abc", `{"amount":1000}`, uint64(7))
		if err != nil {
			t.Fatalf("handler error: %v", err)
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
