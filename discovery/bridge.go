package discovery

import (
	"errors"
	"sync"

	"peerlink/models"
	"peerlink/presence"
)

// PeerIDPrefix prefixes the online peer ID of a discovered device.
const PeerIDPrefix = "mdns:"

// Registry is the part of the presence registry the bridge drives.
type Registry interface {
	Add(peer models.OnlinePeer) error
	GetPeer(id string) (*models.OnlinePeer, error)
	UpdatePeer(peer models.OnlinePeer) error
	Disconnect(id string) error
}

// Bridge mirrors discovery events into the presence registry. Discovered
// devices are anonymous online peers with source "mdns".
type Bridge struct {
	registry Registry
	events   <-chan Event

	startOnce sync.Once
	done      chan struct{}
}

// NewBridge creates a bridge reading from events until the channel closes.
func NewBridge(registry Registry, events <-chan Event) *Bridge {
	return &Bridge{
		registry: registry,
		events:   events,
		done:     make(chan struct{}),
	}
}

// Start consumes events in the background.
func (b *Bridge) Start() {
	b.startOnce.Do(func() {
		go func() {
			defer close(b.done)
			for event := range b.events {
				b.Apply(event)
			}
		}()
	})
}

// Wait blocks until the event channel is closed and drained.
func (b *Bridge) Wait() {
	<-b.done
}

// Apply mirrors one event into the registry.
func (b *Bridge) Apply(event Event) {
	id := PeerIDPrefix + event.Peer.DeviceID

	switch event.Type {
	case EventPeerUpserted:
		existing, err := b.registry.GetPeer(id)
		switch {
		case err == nil:
			if existing.App == event.Peer.App {
				return
			}
			existing.App = event.Peer.App
			if err := b.registry.UpdatePeer(*existing); err != nil {
				log.Warnw("update discovered peer", "peer", id, "err", err)
			}
		case errors.Is(err, presence.ErrPeerNotFound):
			peer := models.OnlinePeer{
				ID:     id,
				App:    event.Peer.App,
				Source: presence.SourceMDNS,
			}
			if err := b.registry.Add(peer); err != nil {
				log.Warnw("add discovered peer", "peer", id, "err", err)
				return
			}
			log.Debugw("discovered peer online", "peer", id, "app", event.Peer.App, "addresses", event.Peer.Addresses)
		default:
			log.Warnw("look up discovered peer", "peer", id, "err", err)
		}
	case EventPeerRemoved:
		if err := b.registry.Disconnect(id); err != nil && !errors.Is(err, presence.ErrPeerNotFound) {
			log.Warnw("remove discovered peer", "peer", id, "err", err)
		}
	}
}
