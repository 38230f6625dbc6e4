package websocket

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradewire/dexstream/pkg/model"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxMessageSize      = 512 * 1024 // 512 KB
	defaultSendBuf      = 256
	defaultCtrlCooldown = 200 * time.Millisecond
)

// Hub tracks live connections and their subscribed streams, and fans typed
// payloads out to the matching subset. Slow clients lose messages (the send
// buffer is bounded and sends never block) but are not disconnected.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	books *BookCache

	sendBuf      int
	ctrlCooldown time.Duration

	// simple metrics
	publishDrops uint64

	logger *log.Logger
}

// NewHub creates a Hub. Provide a logger or nil; ctrlCooldown <= 0 uses the
// default control-frame cooldown.
func NewHub(logger *log.Logger, ctrlCooldown time.Duration) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	if ctrlCooldown <= 0 {
		ctrlCooldown = defaultCtrlCooldown
	}
	return &Hub{
		clients:      make(map[*Client]struct{}),
		books:        NewBookCache(),
		sendBuf:      defaultSendBuf,
		ctrlCooldown: ctrlCooldown,
		logger:       logger,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// unregister drops the connection's state atomically; emits racing the close
// see either the full subscription set or nothing.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.closed = true
	close(c.send)
}

// subscribe idempotently adds topics to the connection's stream set. Any
// string is accepted; topics for symbols that do not exist yet are fine.
func (h *Hub) subscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	for _, t := range topics {
		if t == "" {
			continue
		}
		c.streams[t] = struct{}{}
	}
}

func (h *Hub) unsubscribe(c *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range topics {
		delete(c.streams, t)
	}
}

func (h *Hub) listStreams(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(c.streams))
	for t := range c.streams {
		out = append(out, t)
	}
	return out
}

func (h *Hub) sendLocked(c *Client, payload []byte) {
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		atomic.AddUint64(&h.publishDrops, 1)
	}
}

// reply queues a control-frame response for one connection.
func (h *Hub) reply(c *Client, payload []byte) {
	h.mu.RLock()
	h.sendLocked(c, payload)
	h.mu.RUnlock()
}

// Emit delivers payload to every open connection subscribed to topic.
// Per-connection delivery order follows Emit call order.
func (h *Hub) Emit(topic string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if _, ok := c.streams[topic]; ok {
			h.sendLocked(c, payload)
		}
	}
}

// EmitToUser delivers payload to every user-scoped connection whose key
// matches userID (case-insensitive). A user may hold several connections.
func (h *Hub) EmitToUser(userID string, payload []byte) {
	key := strings.ToLower(userID)
	if key == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.userKey == key {
			h.sendLocked(c, payload)
		}
	}
}

// UpdateBook refreshes the in-memory book backing the REST depth endpoint.
func (h *Hub) UpdateBook(symbol string, bids, asks []model.PriceLevel, lastUpdateID int64) {
	h.books.Apply(symbol, bids, asks, lastUpdateID)
}

// BookSnapshot serves the REST depth query from the in-memory cache.
func (h *Hub) BookSnapshot(symbol string, limit int) (model.BookSnapshot, bool) {
	return h.books.Snapshot(symbol, limit)
}

// Shutdown force-closes every connection. Call after the HTTP server stops
// accepting; upgraded connections are not covered by server.Shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.closed = true
		close(c.send)
		_ = c.conn.Close()
	}
	h.logger.Println("ws hub shut down")
}

// Stats returns simple metrics (clients count and dropped payloads).
func (h *Hub) Stats() (clients int, drops uint64) {
	h.mu.RLock()
	clients = len(h.clients)
	h.mu.RUnlock()
	drops = atomic.LoadUint64(&h.publishDrops)
	return
}
