// Package presence tracks currently connected peers and notifies listeners
// when their records change.
package presence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"peerlink/models"
)

var log = logging.Logger("peerlink/presence")

const (
	// EventPeerUpdated fires after a peer connects or its record changes.
	EventPeerUpdated EventName = "peer.updated"
	// EventPeerDeleted fires after a peer disconnects.
	EventPeerDeleted EventName = "peer.deleted"
	// EventPeerMoved fires with the previous record when an update changes a
	// peer's app. It precedes the matching EventPeerUpdated.
	EventPeerMoved EventName = "peer.moved"

	// SourceWebsocket marks peers connected over the presence websocket.
	SourceWebsocket = "websocket"
	// SourceMDNS marks LAN devices found by discovery.
	SourceMDNS = "mdns"
)

// ErrPeerNotFound indicates no online peer has the requested ID.
var ErrPeerNotFound = errors.New("presence: peer not found")

// EventName identifies registry notifications.
type EventName string

// Handler receives the peer record an event refers to.
type Handler func(models.OnlinePeer)

// Registry is the in-memory set of online peers.
type Registry struct {
	now func() time.Time

	mu    sync.RWMutex
	peers map[string]models.OnlinePeer

	handlersMu sync.RWMutex
	handlers   map[EventName][]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		now:      time.Now,
		peers:    make(map[string]models.OnlinePeer),
		handlers: make(map[EventName][]Handler),
	}
}

// On registers a handler for an event. Handlers run in registration order on
// the goroutine that mutated the registry, after the registry lock is released.
func (r *Registry) On(event EventName, handler Handler) {
	if handler == nil {
		return
	}
	r.handlersMu.Lock()
	r.handlers[event] = append(r.handlers[event], handler)
	r.handlersMu.Unlock()
}

// Connect adds a new anonymous online peer for app and returns it.
func (r *Registry) Connect(app, source string) models.OnlinePeer {
	peer := models.OnlinePeer{
		ID:          uuid.NewString(),
		App:         strings.TrimSpace(app),
		Source:      source,
		ConnectedAt: r.now(),
	}

	r.mu.Lock()
	r.peers[peer.ID] = peer
	r.mu.Unlock()

	log.Debugw("peer connected", "peer", peer.ID, "app", peer.App, "source", source)
	r.emit(EventPeerUpdated, peer)
	return peer
}

// Add inserts a peer with a caller-chosen ID, replacing any record with that ID.
func (r *Registry) Add(peer models.OnlinePeer) error {
	if strings.TrimSpace(peer.ID) == "" {
		return errors.New("peer id is required")
	}
	if peer.ConnectedAt.IsZero() {
		peer.ConnectedAt = r.now()
	}

	r.mu.Lock()
	r.peers[peer.ID] = peer
	r.mu.Unlock()

	r.emit(EventPeerUpdated, peer)
	return nil
}

// Disconnect removes a peer.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	peer, ok := r.peers[id]
	if ok {
		delete(r.peers, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("disconnect %q: %w", id, ErrPeerNotFound)
	}

	log.Debugw("peer disconnected", "peer", id, "app", peer.App)
	r.emit(EventPeerDeleted, peer)
	return nil
}

// GetPeer returns a copy of one online peer.
func (r *Registry) GetPeer(id string) (*models.OnlinePeer, error) {
	r.mu.RLock()
	peer, ok := r.peers[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrPeerNotFound
	}
	return clonePeer(peer), nil
}

// ListPeers returns every online peer ordered by connection time.
func (r *Registry) ListPeers() []models.OnlinePeer {
	return r.filter(func(models.OnlinePeer) bool { return true })
}

// ListPeersByUser returns the online peers attached to userID.
func (r *Registry) ListPeersByUser(userID int64) []models.OnlinePeer {
	return r.filter(func(peer models.OnlinePeer) bool {
		return peer.UserID != nil && *peer.UserID == userID
	})
}

// UpdatePeer replaces the stored record of an existing peer.
func (r *Registry) UpdatePeer(peer models.OnlinePeer) error {
	r.mu.Lock()
	existing, ok := r.peers[peer.ID]
	if ok {
		peer.ConnectedAt = existing.ConnectedAt
		if peer.Source == "" {
			peer.Source = existing.Source
		}
		r.peers[peer.ID] = *clonePeer(peer)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("update %q: %w", peer.ID, ErrPeerNotFound)
	}

	if existing.App != peer.App {
		r.emit(EventPeerMoved, existing)
	}
	r.emit(EventPeerUpdated, peer)
	return nil
}

// Len returns the number of online peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func (r *Registry) filter(keep func(models.OnlinePeer) bool) []models.OnlinePeer {
	r.mu.RLock()
	out := make([]models.OnlinePeer, 0, len(r.peers))
	for _, peer := range r.peers {
		if keep(peer) {
			out = append(out, *clonePeer(peer))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

func (r *Registry) emit(event EventName, peer models.OnlinePeer) {
	r.handlersMu.RLock()
	handlers := append([]Handler(nil), r.handlers[event]...)
	r.handlersMu.RUnlock()

	for _, handler := range handlers {
		r.dispatch(event, handler, *clonePeer(peer))
	}
}

func (r *Registry) dispatch(event EventName, handler Handler, peer models.OnlinePeer) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorw("presence handler panicked", "event", event, "peer", peer.ID, "panic", rec)
		}
	}()
	handler(peer)
}

func clonePeer(peer models.OnlinePeer) *models.OnlinePeer {
	out := peer
	if peer.UserID != nil {
		userID := *peer.UserID
		out.UserID = &userID
	}
	return &out
}
