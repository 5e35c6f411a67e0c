package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/battwatch/battwatch/internal/diagnose"
)

// EventLatest is the event name of every stream message.
const EventLatest = "latest"

// queueDepth is how many frames a client may fall behind before it is dropped.
const queueDepth = 16

// LatestReader returns the current diagnostic record.
type LatestReader interface {
	Latest() *diagnose.Record
}

// Message is the JSON envelope sent to clients.
type Message struct {
	Event string           `json:"event"`
	Data  *diagnose.Record `json:"data"`
}

// Option configures a Hub.
type Option func(*Hub)

// WithAllowedOrigins restricts which browser origins may open a stream.
// "*" or an empty list accepts every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = checkOrigin(origins)
	}
}

// Hub fans the latest diagnostic record out to every connected client once
// per interval.
type Hub struct {
	src      LatestReader
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}

	frameMu   sync.Mutex
	frameRec  *diagnose.Record
	frameData *websocket.PreparedMessage
}

// New creates a Hub that reads from src and broadcasts every interval.
func New(src LatestReader, interval time.Duration, opts ...Option) *Hub {
	h := &Hub{
		src:      src,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(nil),
		},
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Run broadcasts every interval until ctx is cancelled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return
		case <-t.C:
			h.broadcast()
		}
	}
}

// ServeHTTP upgrades the request and streams to the client until it
// disconnects. The current record, if any, is the first frame.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn)
	if pm, err := h.frame(); err == nil && pm != nil {
		c.queue <- pm
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.drop(c)

	slog.Debug("ws: client connected", "remote", c.remote, "clients", h.Count())
	go c.writeLoop()
	c.readLoop()
	slog.Debug("ws: client disconnected", "remote", c.remote)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// frame returns the prepared frame for the current record, encoding it only
// when the record has changed since the last call. It returns nil while no
// record exists.
func (h *Hub) frame() (*websocket.PreparedMessage, error) {
	rec := h.src.Latest()
	if rec == nil {
		return nil, nil
	}

	h.frameMu.Lock()
	defer h.frameMu.Unlock()
	if rec == h.frameRec {
		return h.frameData, nil
	}
	data, err := json.Marshal(Message{Event: EventLatest, Data: rec})
	if err != nil {
		return nil, fmt.Errorf("ws: encode record: %w", err)
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		return nil, fmt.Errorf("ws: prepare frame: %w", err)
	}
	h.frameRec, h.frameData = rec, pm
	return pm, nil
}

func (h *Hub) broadcast() {
	pm, err := h.frame()
	if err != nil {
		slog.Error("ws: broadcast skipped", "err", err)
		return
	}
	if pm == nil {
		return
	}

	// Enqueue under the read lock so drop cannot close a queue mid-send.
	var lagging []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.queue <- pm:
		default:
			lagging = append(lagging, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range lagging {
		slog.Warn("ws: client fell behind, disconnecting", "remote", c.remote)
		h.drop(c)
	}
}

// drop removes c and closes its queue, which ends its write loop.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.queue)
	}
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.queue)
	}
}
