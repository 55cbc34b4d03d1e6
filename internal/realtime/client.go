package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Outbound buffer per connection. A client that cannot drain this is
	// treated as dead and disconnected.
	sendBuffer = 256
)

// Client is one authenticated websocket connection. Its identity is fixed at
// handshake time and never re-read from the socket.
//
// send is never closed: broadcasts from other connections' goroutines may
// race teardown, and a send on a closed channel would panic the process.
// Teardown is signalled through done instead; senders select on both.
type Client struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}

	// closeOnce guards teardown; read errors, dead buffers and shutdown
	// can all race to disconnect the same client.
	closeOnce sync.Once

	// rooms is owned by the Registry; see Registry for locking.
	rooms map[RoomID]struct{}
}

func newClient(identity Identity, conn *websocket.Conn) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[RoomID]struct{}),
	}
}

// Identity returns the snapshot bound at handshake.
func (c *Client) Identity() Identity {
	return c.identity
}

// readPump pumps inbound frames from the websocket to the gateway. It runs in
// a per-connection goroutine and owns all reads on the connection.
func (c *Client) readPump(g *Gateway) {
	defer func() {
		g.disconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("websocket read error", "error", err, "user_id", c.identity.ID)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			g.logger.Debug("malformed frame dropped", "user_id", c.identity.ID)
			continue
		}
		g.dispatch(c, env)
	}
}

// writePump pumps frames from the send channel to the websocket and keeps the
// connection alive with pings. It runs in a per-connection goroutine and owns
// all writes on the connection.
func (c *Client) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("websocket write error", "error", err, "user_id", c.identity.ID)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
