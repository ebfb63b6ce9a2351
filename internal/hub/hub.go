// Package hub tracks live websocket subscribers and fans state changes out to
// them. A single run loop owns the client set, so registrations, broadcasts,
// and failure pruning never race, and every client observes messages in the
// order they were enqueued.
package hub

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Aithusa712/TwitchStonks/internal/metrics"
)

type registration struct {
	client  *Client
	welcome []Message
}

// Message pairs a serialized payload with its wire type, kept separate so the
// broadcast counter can be labelled without re-parsing JSON.
type Message struct {
	Type string
	Data []byte
}

// Hub is the subscriber registry and broadcaster.
type Hub struct {
	log        zerolog.Logger
	register   chan registration
	unregister chan *Client
	broadcast  chan Message
	quit       chan struct{}
	done       chan struct{}
	once       sync.Once

	clients map[*Client]struct{}
}

// New constructs a hub; call Run before registering clients.
func New(log zerolog.Logger) *Hub {
	return &Hub{
		log:        log,
		register:   make(chan registration),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, 64),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run processes registrations, broadcasts, and disconnects until Stop is
// called. It is the only goroutine that touches the client set.
func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			for client := range h.clients {
				h.drop(client)
			}
			return

		case reg := <-h.register:
			h.clients[reg.client] = struct{}{}
			metrics.Subscribers.Inc()
			// Welcome messages are queued before the hub can process any
			// further broadcast, so a new subscriber always sees its full
			// snapshot first.
			for _, msg := range reg.welcome {
				if !reg.client.enqueue(msg.Data) {
					h.drop(reg.client)
					break
				}
			}

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
			}

		case msg := <-h.broadcast:
			metrics.BroadcastsTotal.WithLabelValues(msg.Type).Inc()
			var failed []*Client
			for client := range h.clients {
				if !client.enqueue(msg.Data) {
					failed = append(failed, client)
				}
			}
			// Prune after the sweep; a slow subscriber is dropped, never
			// allowed to block the rest.
			for _, client := range failed {
				h.drop(client)
				metrics.SubscribersDropped.Inc()
			}
		}
	}
}

// drop must only be called from the run loop.
func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	metrics.Subscribers.Dec()
}

// Register adds a connection to the active set and queues the welcome
// messages, in order, ahead of any subsequent broadcast.
func (h *Hub) Register(conn Conn, welcome ...Message) *Client {
	client := newClient(h, conn)
	select {
	case h.register <- registration{client: client, welcome: welcome}:
		go client.writeLoop()
		go client.readLoop()
		return client
	case <-h.quit:
		conn.Close()
		return nil
	}
}

// Broadcast delivers one already-serialized message to every subscriber,
// best-effort. It never blocks the caller beyond the hub queue.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	case <-h.quit:
	}
}

// Stop closes every subscriber connection and waits for the run loop to
// finish.
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.quit) })
	<-h.done
}
