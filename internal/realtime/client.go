package realtime

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Client is one websocket connection bound to an authenticated user.
//
// Each client runs two goroutines, because gorilla/websocket allows at
// most one concurrent reader and one concurrent writer per connection:
//   - readPump (the gateway's serving goroutine) owns all reads.
//   - writePump owns all writes, including pings. Everything else reaches
//     the socket only by putting a frame on send.
type Client struct {
	conn    *websocket.Conn
	userID  uuid.UUID
	send    chan []byte
	limiter *rate.Limiter

	// chats is guarded by the hub's lock.
	chats map[uuid.UUID]struct{}
}

func newClient(conn *websocket.Conn, userID uuid.UUID, limiter *rate.Limiter) *Client {
	return &Client{
		conn:    conn,
		userID:  userID,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
		chats:   make(map[uuid.UUID]struct{}),
	}
}

// readPump hands each inbound frame to handle until the connection fails.
//
// Liveness: the read deadline is pongWait and every pong pushes it out
// again. writePump pings every pingPeriod (9/10 of pongWait), so a healthy
// peer always answers before the deadline, and a vanished one makes
// ReadMessage fail within pongWait. That failure is how a dead connection
// becomes an Unregister and, for the last connection, an offline user.
func (c *Client) readPump(handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(data)
	}
}

// writePump drains send and pings. It exits when send is closed by the
// hub or a write fails, closing the connection either way.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
