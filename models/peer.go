package models

import "time"

// OnlinePeer is a currently connected presence tracked by the registry.
type OnlinePeer struct {
	ID          string    `json:"id"`
	UserID      *int64    `json:"userId,omitempty"`
	App         string    `json:"app"`
	Source      string    `json:"source"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// OfflinePeer is a durable registration binding one user to one application.
type OfflinePeer struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"userId"`
	App       string `json:"app"`
	IsPublic  bool   `json:"isPublic"`
	CreatedAt int64  `json:"createdAt"`
}

// PeerLink is a consent relationship between two offline peers.
type PeerLink struct {
	ID        int64 `json:"id"`
	LeftPeer  int64 `json:"leftPeer"`
	RightPeer int64 `json:"rightPeer"`
	Confirmed bool  `json:"confirmed"`
	CreatedAt int64 `json:"createdAt"`
}

// Involves reports whether the offline peer is either side of the link.
func (l PeerLink) Involves(peerID int64) bool {
	return l.LeftPeer == peerID || l.RightPeer == peerID
}

// Counterpart returns the other side of the link as seen from peerID.
func (l PeerLink) Counterpart(peerID int64) int64 {
	if l.RightPeer == peerID {
		return l.LeftPeer
	}
	return l.RightPeer
}
