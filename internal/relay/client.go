package relay

import (
	"time"

	"github.com/deepakpathik/deskbridge/internal/signaling"
	"github.com/gorilla/websocket"
	"github.com/segmentio/ksuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024 // 64 KB - enough for SDP with several media sections

	// SendBufferSize is the number of outbound messages queued per connection
	// before the hub considers the connection stalled and drops it.
	SendBufferSize = 256
)

// Client is a single websocket connection to the relay.
type Client struct {
	// ID identifies the connection in logs and is the requester id used
	// when a join-room message carries none.
	ID string

	Hub  *Hub
	Conn *websocket.Conn

	// Send is the buffered outbound queue drained by WritePump.
	// Only the hub closes it.
	Send chan *signaling.Message

	// rooms maps each joined room to the requester id used for it.
	// Owned by the hub goroutine.
	rooms map[string]string
}

// NewClient wraps conn for use with hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:    ksuid.New().String(),
		Hub:   hub,
		Conn:  conn,
		Send:  make(chan *signaling.Message, SendBufferSize),
		rooms: make(map[string]string),
	}
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregisterClient(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg signaling.Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Relay read failed", "conn", c.ID, "error", err)
			}
			return
		}

		if !c.Hub.submit(&Inbound{Client: c, Message: &msg}) {
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.Hub.logger.Warn("Relay write failed", "conn", c.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
