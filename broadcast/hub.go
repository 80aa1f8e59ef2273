// Package broadcast fans out topic messages to websocket subscribers.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("peerlink/broadcast")

const (
	// DefaultSendQueueSize is the per-subscriber buffer of pending messages.
	DefaultSendQueueSize = 32
	// DefaultPingInterval is the keep-alive ping period.
	DefaultPingInterval = 30 * time.Second
	// DefaultPongTimeout bounds the wait for any inbound frame, pongs included.
	DefaultPongTimeout = 60 * time.Second
	// DefaultWriteTimeout bounds a single websocket write.
	DefaultWriteTimeout = 10 * time.Second

	maxInboundMessageSize = 4096
)

// ErrHubClosed indicates the hub no longer accepts messages.
var ErrHubClosed = errors.New("broadcast: hub closed")

// Options controls hub runtime behavior.
type Options struct {
	SendQueueSize int
	PingInterval  time.Duration
	PongTimeout   time.Duration
	WriteTimeout  time.Duration
	// CheckOrigin overrides the upgrader's origin check. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// Envelope is the frame delivered to subscribers.
type Envelope struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

// Hub accepts websocket subscribers and delivers published messages to the
// ones subscribed to the message topic.
type Hub struct {
	upgrader websocket.Upgrader
	options  Options

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub with defaults applied to unset options.
func NewHub(options Options) *Hub {
	if options.SendQueueSize <= 0 {
		options.SendQueueSize = DefaultSendQueueSize
	}
	if options.PingInterval <= 0 {
		options.PingInterval = DefaultPingInterval
	}
	if options.PongTimeout <= 0 {
		options.PongTimeout = DefaultPongTimeout
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = DefaultWriteTimeout
	}

	checkOrigin := options.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		options: options,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and serves the subscriber until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.isClosed() {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugw("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := newClient(conn, h.options)
	if !h.register(c) {
		c.close()
		return
	}
	defer h.unregister(c)

	log.Debugw("subscriber connected", "remote", r.RemoteAddr)
	go c.writeLoop()
	c.readLoop()
	log.Debugw("subscriber disconnected", "remote", r.RemoteAddr)
}

// Publish delivers payload to every subscriber of topic. Subscribers whose
// queue is full miss the message.
func (h *Hub) Publish(topic string, payload any) error {
	if h.isClosed() {
		return ErrHubClosed
	}

	frame, err := json.Marshal(Envelope{Topic: topic, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %q message: %w", topic, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(topic) {
			continue
		}
		if !c.enqueue(frame) {
			log.Debugw("subscriber queue full, dropping message", "topic", topic)
		}
	}
	return nil
}

// Subscribers returns how many connected clients are subscribed to topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for c := range h.clients {
		if c.subscribed(topic) {
			count++
		}
	}
	return count
}

// Close disconnects every subscriber and rejects further publishes.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
