package realtime

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// sendBuffer bounds the per-client outbound queue. A client that cannot
// drain this many events is considered dead slow and loses messages rather
// than blocking the emitter.
const sendBuffer = 64

// session is one connected viewer. A session may join any number of
// auction rooms.
type session struct {
	id   string
	send chan envelope
}

func newSession() *session {
	return &session{id: uuid.NewString(), send: make(chan envelope, sendBuffer)}
}

// Hub owns the room registry: a mapping from auction id to the set of
// sessions watching it. It is created once at startup and torn down with
// Close on shutdown; there is no ambient global instance.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[uint64]map[*session]struct{}
	sessions map[*session]map[uint64]struct{}
	closed   bool
}

// NewHub returns an empty room registry.
func NewHub() *Hub {
	return &Hub{
		rooms:    make(map[uint64]map[*session]struct{}),
		sessions: make(map[*session]map[uint64]struct{}),
	}
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(s.send)
		return
	}
	h.sessions[s] = make(map[uint64]struct{})
}

// join adds the session to an auction room and acknowledges.
func (h *Hub) join(s *session, auctionID uint64) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	room, ok := h.rooms[auctionID]
	if !ok {
		room = make(map[*session]struct{})
		h.rooms[auctionID] = room
	}
	room[s] = struct{}{}
	if joined, ok := h.sessions[s]; ok {
		joined[auctionID] = struct{}{}
	}
	h.deliver(s, envelope{Event: EventJoined, Data: map[string]any{"ok": true, "auctionId": auctionID}})
	h.mu.Unlock()
}

// leave removes the session from one room.
func (h *Hub) leave(s *session, auctionID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoom(s, auctionID)
	if joined, ok := h.sessions[s]; ok {
		delete(joined, auctionID)
	}
}

// disconnect removes the session from every room it joined and closes its
// outbound queue. Called by the transport when the connection drops, so
// application code never tracks membership cleanup itself.
func (h *Hub) disconnect(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	joined, ok := h.sessions[s]
	if !ok {
		return
	}
	for auctionID := range joined {
		h.removeFromRoom(s, auctionID)
	}
	delete(h.sessions, s)
	close(s.send)
}

// removeFromRoom expects h.mu held.
func (h *Hub) removeFromRoom(s *session, auctionID uint64) {
	room, ok := h.rooms[auctionID]
	if !ok {
		return
	}
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, auctionID)
	}
}

// broadcast pushes an event to every session in the auction's room.
// Best-effort: sessions with a full queue miss the event.
func (h *Hub) broadcast(auctionID uint64, env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[auctionID] {
		h.deliver(s, env)
	}
}

// deliver expects h.mu held. Session queues are only closed under the write
// lock, so a send here can never race a close.
func (h *Hub) deliver(s *session, env envelope) {
	select {
	case s.send <- env:
	default:
		log.Printf("realtime: dropping %s event for slow client %s", env.Event, s.id)
	}
}

// notify sends a single out-of-band envelope to one session. Sessions no
// longer in the registry have a closed queue and are skipped.
func (h *Hub) notify(s *session, env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	h.deliver(s, env)
}

// EmitBidCreated publishes a bid.created event to the auction's room.
func (h *Hub) EmitBidCreated(ev BidCreated) {
	h.broadcast(ev.AuctionID, envelope{Event: EventBid, Data: ev})
}

// EmitAuctionExtended publishes an auction.extended event.
func (h *Hub) EmitAuctionExtended(ev AuctionExtended) {
	h.broadcast(ev.AuctionID, envelope{Event: EventExtended, Data: ev})
}

// EmitAuctionStatus publishes an auction.status event.
func (h *Hub) EmitAuctionStatus(ev AuctionStatus) {
	h.broadcast(ev.AuctionID, envelope{Event: EventStatus, Data: ev})
}

// RoomSize reports how many sessions are watching an auction.
func (h *Hub) RoomSize(auctionID uint64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[auctionID])
}

// Close tears down the registry and closes every session queue. Emits after
// Close are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for s := range h.sessions {
		close(s.send)
	}
	h.sessions = make(map[*session]map[uint64]struct{})
	h.rooms = make(map[uint64]map[*session]struct{})
}

// pingInterval keeps intermediaries from reaping idle connections.
const pingInterval = 30 * time.Second
