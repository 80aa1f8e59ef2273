package peering

import (
	"context"
	"fmt"

	"peerlink/models"
)

// Resolver shapes online and offline peer records into what a viewer may see.
type Resolver struct {
	identities   IdentityStore
	unrestricted bool
}

// NewResolver creates a resolver. When unrestricted is true, online peer IDs
// and user IDs are disclosed to every viewer; it must stay off outside tests.
func NewResolver(identities IdentityStore, unrestricted bool) *Resolver {
	return &Resolver{identities: identities, unrestricted: unrestricted}
}

// Unrestricted reports whether access control on disclosure is disabled.
func (r *Resolver) Unrestricted() bool {
	return r.unrestricted
}

// Resolve returns nil when neither record is present. A public offline peer
// counts as attached for every viewer. Disclosed online fields replace the
// offline ones, including a null userId from an anonymous online peer.
func (r *Resolver) Resolve(ctx context.Context, online *models.OnlinePeer, offline *models.OfflinePeer, attached bool) (*models.PeerData, error) {
	if online == nil && offline == nil {
		return nil, nil
	}

	var data models.PeerData
	if offline != nil {
		if offline.IsPublic {
			attached = true
		}
		data.Registered = true
		data.App = offline.App
		if attached {
			userID := offline.UserID
			data.DiscloseUserID(&userID)
		}
	}

	if online != nil {
		data.Online = true
		data.App = online.App
		if online.UserID != nil {
			data.Registered = true
		}
		if attached || r.unrestricted {
			peerID := online.ID
			data.PeerID = &peerID
			data.DiscloseUserID(copyInt64(online.UserID))
		}
	}

	if attached && data.UserID != nil && r.identities != nil {
		summary, err := r.identities.GetUserSummary(ctx, *data.UserID)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("resolve user %d: %w", *data.UserID, err)
		}
		if summary != nil {
			user := *summary
			data.User = &user
		}
	}

	return &data, nil
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
