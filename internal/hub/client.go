package hub

import "github.com/gorilla/websocket"

// Conn is the transport surface a client needs. *websocket.Conn satisfies it;
// tests substitute fakes.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

const sendBuffer = 32

// Client is one live subscriber. The hub run loop is the only writer to the
// send channel's lifecycle; the client's own write loop is the only reader.
type Client struct {
	hub  *Hub
	conn Conn
	send chan []byte
}

func newClient(h *Hub, conn Conn) *Client {
	return &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
}

// enqueue is called from the hub run loop only. A full buffer reports failure
// instead of blocking, which the hub treats as a dead subscriber.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// writeLoop drains the send channel onto the wire. It exits when the hub
// closes the channel or the first write fails.
func (c *Client) writeLoop() {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			c.detach()
			return
		}
	}
}

// readLoop discards inbound frames; traffic from the client only matters as a
// liveness signal, so the first read error tears the subscriber down.
func (c *Client) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.detach()
			return
		}
	}
}

func (c *Client) detach() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.quit:
	}
}
