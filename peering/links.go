package peering

import (
	"context"
	"fmt"
	"strings"

	"peerlink/models"
)

// Links runs the request / confirm / revoke lifecycle of peer links.
type Links struct {
	directory Directory
	store     LinkStore
}

// NewLinks creates the link lifecycle over a directory and a link store.
func NewLinks(directory Directory, store LinkStore) *Links {
	return &Links{directory: directory, store: store}
}

// Request asks the owner of targetPeerID to link with the viewer's peer for app.
// Requesting a link that already exists between the two peers, in either
// direction, returns that link unchanged.
func (l *Links) Request(ctx context.Context, viewer Viewer, targetPeerID int64, app string) (*models.PeerLink, error) {
	own, err := l.viewerPeer(ctx, viewer, app)
	if err != nil {
		return nil, fmt.Errorf("request peer link: %w", err)
	}

	target, err := l.directory.GetOfflinePeer(ctx, targetPeerID)
	if err != nil {
		return nil, translate(err, "request peer link: find peer %d", targetPeerID)
	}
	if target.ID == own.ID {
		return nil, fmt.Errorf("request peer link: cannot link peer %d to itself: %w", own.ID, ErrInvalidArgument)
	}

	existing, err := l.store.FindPeerLinkBetween(ctx, own.ID, target.ID)
	if err == nil {
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, fmt.Errorf("request peer link: %w", err)
	}

	link, err := l.store.AddPeerLink(ctx, models.PeerLink{
		LeftPeer:  own.ID,
		RightPeer: target.ID,
		Confirmed: false,
	})
	if err != nil {
		return nil, translate(err, "request peer link")
	}

	return link, nil
}

// Confirm accepts a pending link. Only the link's addressee may confirm it.
func (l *Links) Confirm(ctx context.Context, viewer Viewer, linkID int64, app string) (*models.PeerLink, error) {
	own, err := l.viewerPeer(ctx, viewer, app)
	if err != nil {
		return nil, fmt.Errorf("confirm peer link: %w", err)
	}

	link, err := l.store.GetPeerLink(ctx, linkID)
	if err != nil {
		return nil, translate(err, "confirm peer link %d", linkID)
	}
	if link.RightPeer != own.ID {
		return nil, fmt.Errorf("confirm peer link %d: %w", linkID, ErrNotFound)
	}

	confirmed, err := l.store.ConfirmPeerLink(ctx, linkID, own.ID)
	if err != nil {
		return nil, translate(err, "confirm peer link %d", linkID)
	}

	return confirmed, nil
}

// Revoke deletes a link, pending or confirmed. Either side may revoke.
func (l *Links) Revoke(ctx context.Context, viewer Viewer, linkID int64, app string) error {
	own, err := l.viewerPeer(ctx, viewer, app)
	if err != nil {
		return fmt.Errorf("revoke peer link: %w", err)
	}

	link, err := l.store.GetPeerLink(ctx, linkID)
	if err != nil {
		return translate(err, "revoke peer link %d", linkID)
	}
	if !link.Involves(own.ID) {
		return fmt.Errorf("revoke peer link %d: %w", linkID, ErrNotFound)
	}

	if err := l.store.RemovePeerLink(ctx, linkID, own.ID); err != nil {
		return translate(err, "revoke peer link %d", linkID)
	}

	return nil
}

func (l *Links) viewerPeer(ctx context.Context, viewer Viewer, app string) (*models.OfflinePeer, error) {
	if !viewer.LoggedIn() {
		return nil, ErrUnauthorized
	}
	app = strings.TrimSpace(app)
	if app == "" {
		return nil, fmt.Errorf("app name is required: %w", ErrInvalidArgument)
	}

	peer, err := l.directory.GetOfflinePeerByUserAndApp(ctx, viewer.ID(), app)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrPrecursorMissing
		}
		return nil, err
	}
	return peer, nil
}
