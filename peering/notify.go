package peering

import (
	"context"

	"peerlink/models"
)

// PeerListUpdate is the payload published when an app's peer list changes.
type PeerListUpdate struct {
	List []models.PeerData `json:"list"`
}

// OnPeerUpdated publishes the refreshed peer list of the peer's app. The list
// is resolved for an anonymous viewer since every subscriber receives it.
// Failures are logged and dropped; presence changes never fail because of them.
func (s *Service) OnPeerUpdated(peer models.OnlinePeer) {
	if s.publisher == nil {
		log.Debugw("no broadcast publisher configured, skipping peer list update", "app", peer.App)
		return
	}

	list, err := s.ListPeers(context.Background(), Anonymous(), peer.App)
	if err != nil {
		log.Warnw("resolve peer list for broadcast", "app", peer.App, "err", err)
		return
	}

	topic := PeerListTopicPrefix + peer.App
	if err := s.publisher.Publish(topic, PeerListUpdate{List: list}); err != nil {
		log.Debugw("publish peer list", "topic", topic, "err", err)
	}
}
