package realtime

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from the web app origin; auth happens at join time
	// via the HTTP session, so any origin is accepted here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	readDeadline = 60 * time.Second
	writeTimeout = 10 * time.Second
)

// ServeWS returns the echo handler for GET /ws. Each connection becomes a
// hub session; clients send auction.join / auction.leave frames and receive
// bid, extension and status events for the rooms they joined.
func ServeWS(h *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		s := newSession()
		h.register(s)

		go writeLoop(conn, s)
		readLoop(conn, h, s)
		return nil
	}
}

// writeLoop forwards hub events to the socket and keeps the connection
// alive with pings. It exits when the session queue is closed.
func writeLoop(conn *websocket.Conn, s *session) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case env, ok := <-s.send:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop consumes client frames until the connection drops, then detaches
// the session from all rooms.
func readLoop(conn *websocket.Conn, h *Hub, s *session) {
	defer h.disconnect(s)

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("realtime: bad frame from %s: %v", s.id, err)
			continue
		}
		switch msg.Event {
		case EventJoin:
			if msg.AuctionID == 0 {
				h.notify(s, envelope{Event: "error", Data: map[string]string{"message": "auctionId is required"}})
				continue
			}
			h.join(s, msg.AuctionID)
		case EventLeave:
			h.leave(s, msg.AuctionID)
		}
	}
}
