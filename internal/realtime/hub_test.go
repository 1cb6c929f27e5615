package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/motorbid/vehicle-auction/internal/model"
)

func drain(t *testing.T, s *session) envelope {
	t.Helper()
	select {
	case env := <-s.send:
		return env
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return envelope{}
	}
}

func expectEmpty(t *testing.T, s *session) {
	t.Helper()
	select {
	case env := <-s.send:
		t.Fatalf("unexpected event %q", env.Event)
	default:
	}
}

func TestHubJoinAckAndBroadcast(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s := newSession()
	h.register(s)
	h.join(s, 42)

	ack := drain(t, s)
	if ack.Event != EventJoined {
		t.Fatalf("ack event = %q, want %q", ack.Event, EventJoined)
	}
	if h.RoomSize(42) != 1 {
		t.Fatalf("RoomSize = %d, want 1", h.RoomSize(42))
	}

	h.EmitBidCreated(BidCreated{AuctionID: 42, BidID: 9, Amount: 12100})
	env := drain(t, s)
	if env.Event != EventBid {
		t.Fatalf("event = %q, want %q", env.Event, EventBid)
	}
	payload, ok := env.Data.(BidCreated)
	if !ok || payload.BidID != 9 || payload.Amount != 12100 {
		t.Fatalf("payload = %#v", env.Data)
	}
}

func TestHubRoomIsolation(t *testing.T) {
	h := NewHub()
	defer h.Close()

	a, b := newSession(), newSession()
	h.register(a)
	h.register(b)
	h.join(a, 1)
	h.join(b, 2)
	drain(t, a) // join acks
	drain(t, b)

	h.EmitAuctionExtended(AuctionExtended{AuctionID: 1, EndsAt: "2026-03-01T12:02:00Z", ExtendedBySec: 120})

	if env := drain(t, a); env.Event != EventExtended {
		t.Fatalf("room 1 got %q", env.Event)
	}
	expectEmpty(t, b)
}

func TestHubLeaveStopsDelivery(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s := newSession()
	h.register(s)
	h.join(s, 7)
	drain(t, s)

	h.leave(s, 7)
	if h.RoomSize(7) != 0 {
		t.Fatalf("RoomSize after leave = %d", h.RoomSize(7))
	}
	h.EmitAuctionStatus(AuctionStatus{AuctionID: 7, Status: model.StatusEnded})
	expectEmpty(t, s)
}

func TestHubDisconnectCleansAllRooms(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s := newSession()
	h.register(s)
	h.join(s, 1)
	h.join(s, 2)
	drain(t, s)
	drain(t, s)

	h.disconnect(s)
	if h.RoomSize(1) != 0 || h.RoomSize(2) != 0 {
		t.Fatal("disconnect left room membership behind")
	}
	if _, open := <-s.send; open {
		t.Fatal("send channel still open after disconnect")
	}

	// A second disconnect for the same session is a no-op, matching a
	// transport that fires the cleanup twice.
	h.disconnect(s)
}

func TestHubSlowClientDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub()
	defer h.Close()

	s := newSession()
	h.register(s)
	h.join(s, 5)
	drain(t, s)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBuffer+10; i++ {
			h.EmitBidCreated(BidCreated{AuctionID: 5, BidID: uint64(i)})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}

	if got := len(s.send); got != sendBuffer {
		t.Fatalf("queued %d events, want full buffer %d", got, sendBuffer)
	}
}

func TestHubBroadcastConcurrentWithDisconnect(t *testing.T) {
	h := NewHub()
	defer h.Close()

	sessions := make([]*session, 8)
	for i := range sessions {
		s := newSession()
		h.register(s)
		h.join(s, 11)
		drain(t, s)
		sessions[i] = s
	}

	// Broadcasters race the disconnects; a send on a closed queue would
	// panic and fail the test.
	stop := make(chan struct{})
	var emitters sync.WaitGroup
	for i := 0; i < 4; i++ {
		emitters.Add(1)
		go func() {
			defer emitters.Done()
			for {
				select {
				case <-stop:
					return
				default:
					h.EmitAuctionStatus(AuctionStatus{AuctionID: 11, Status: model.StatusLive})
				}
			}
		}()
	}

	var leavers sync.WaitGroup
	for _, s := range sessions {
		leavers.Add(1)
		go func(s *session) {
			defer leavers.Done()
			h.disconnect(s)
		}(s)
	}
	leavers.Wait()
	close(stop)
	emitters.Wait()

	if h.RoomSize(11) != 0 {
		t.Fatalf("RoomSize after disconnects = %d", h.RoomSize(11))
	}
}

func TestHubEmitAfterClose(t *testing.T) {
	h := NewHub()
	s := newSession()
	h.register(s)
	h.join(s, 3)
	drain(t, s)

	h.Close()
	h.Close() // idempotent

	// Emits after Close must not panic on the closed send channel.
	h.EmitBidCreated(BidCreated{AuctionID: 3, BidID: 1})

	// New sessions after Close get a closed queue immediately.
	late := newSession()
	h.register(late)
	if _, open := <-late.send; open {
		t.Fatal("session registered after Close has an open queue")
	}

	// Joins after Close are ignored.
	h.join(late, 3)
	if h.RoomSize(3) != 0 {
		t.Fatalf("RoomSize after Close = %d", h.RoomSize(3))
	}
}
