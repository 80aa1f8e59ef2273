package peering

import (
	"context"

	"peerlink/models"
	"peerlink/presence"
)

// Registry tracks online peers. GetPeer and UpdatePeer report a missing peer
// with presence.ErrPeerNotFound.
type Registry interface {
	ListPeers() []models.OnlinePeer
	ListPeersByUser(userID int64) []models.OnlinePeer
	GetPeer(id string) (*models.OnlinePeer, error)
	UpdatePeer(peer models.OnlinePeer) error
	On(event presence.EventName, handler presence.Handler)
}

// Directory persists offline peers. Lookups report a missing row with
// storage.ErrNotFound and duplicate registrations with storage.ErrConflict.
type Directory interface {
	GetOfflinePeer(ctx context.Context, id int64) (*models.OfflinePeer, error)
	GetOfflinePeerByUserAndApp(ctx context.Context, userID int64, app string) (*models.OfflinePeer, error)
	ListOfflinePeersByUser(ctx context.Context, userID int64) ([]models.OfflinePeer, error)
	AddOfflinePeer(ctx context.Context, peer models.OfflinePeer) (*models.OfflinePeer, error)
}

// LinkStore persists peer links. ConfirmPeerLink and RemovePeerLink are
// conditional on the acting peer's side of the link.
type LinkStore interface {
	GetPeerLink(ctx context.Context, id int64) (*models.PeerLink, error)
	ListPeerLinksByPeer(ctx context.Context, peerID int64) ([]models.PeerLink, error)
	PeerLinkConfirmed(ctx context.Context, a, b int64) (bool, error)
	FindPeerLinkBetween(ctx context.Context, a, b int64) (*models.PeerLink, error)
	AddPeerLink(ctx context.Context, link models.PeerLink) (*models.PeerLink, error)
	ConfirmPeerLink(ctx context.Context, id, rightPeer int64) (*models.PeerLink, error)
	RemovePeerLink(ctx context.Context, id, peerID int64) error
}

// IdentityStore resolves user IDs to their public summary.
type IdentityStore interface {
	GetUserSummary(ctx context.Context, id int64) (*models.UserSummary, error)
}

// Publisher delivers payloads to topic subscribers on a best-effort basis.
type Publisher interface {
	Publish(topic string, payload any) error
}
