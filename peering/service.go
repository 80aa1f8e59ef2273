package peering

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"peerlink/models"
	"peerlink/presence"
)

var log = logging.Logger("peerlink/peering")

// PeerListTopicPrefix prefixes the broadcast topic carrying an app's peer list.
const PeerListTopicPrefix = "peer.list."

// Options wires a Service to its collaborators. Directory, Links and
// Identities are required; Registry and Publisher may be nil, in which case the
// operations that need them report ErrUnavailable or skip notification.
type Options struct {
	Registry   Registry
	Directory  Directory
	Links      LinkStore
	Identities IdentityStore
	Publisher  Publisher

	// Unrestricted discloses privileged peer fields to everyone. Test use only.
	Unrestricted bool
}

// RegisterPeerRequest describes a new offline peer for the viewer.
type RegisterPeerRequest struct {
	App      string `json:"app"`
	IsPublic bool   `json:"isPublic"`
}

// Service exposes the peer and peer-link operations.
type Service struct {
	registry  Registry
	directory Directory
	store     LinkStore
	publisher Publisher

	resolver *Resolver
	links    *Links

	subscribeOnce sync.Once
}

// NewService validates options and builds a service.
func NewService(options Options) (*Service, error) {
	if options.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if options.Links == nil {
		return nil, errors.New("link store is required")
	}
	if options.Identities == nil {
		return nil, errors.New("identity store is required")
	}

	return &Service{
		registry:  options.Registry,
		directory: options.Directory,
		store:     options.Links,
		publisher: options.Publisher,
		resolver:  NewResolver(options.Identities, options.Unrestricted),
		links:     NewLinks(options.Directory, options.Links),
	}, nil
}

// Resolver returns the visibility resolver used by the service.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// Subscribe registers the presence-change handler on the registry. Calling it
// more than once has no further effect.
func (s *Service) Subscribe() error {
	if s.registry == nil {
		return fmt.Errorf("subscribe to presence events: %w", ErrUnavailable)
	}
	s.subscribeOnce.Do(func() {
		s.registry.On(presence.EventPeerUpdated, s.OnPeerUpdated)
		s.registry.On(presence.EventPeerDeleted, s.OnPeerUpdated)
		s.registry.On(presence.EventPeerMoved, s.OnPeerUpdated)
	})
	return nil
}

// ListPeers resolves every online peer, restricted to app when it is set.
func (s *Service) ListPeers(ctx context.Context, viewer Viewer, app string) ([]models.PeerData, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("list peers: peer registry: %w", ErrUnavailable)
	}
	app = strings.TrimSpace(app)

	var current *models.OfflinePeer
	if viewer.LoggedIn() && app != "" {
		peer, err := s.lookupOfflinePeer(ctx, viewer.ID(), app)
		if err != nil {
			return nil, fmt.Errorf("list peers: %w", err)
		}
		current = peer
	}

	out := make([]models.PeerData, 0)
	for _, online := range s.registry.ListPeers() {
		if app != "" && online.App != app {
			continue
		}

		var (
			offline  *models.OfflinePeer
			attached bool
		)
		switch {
		case viewer.Is(online.UserID):
			attached = true
		case online.UserID != nil && app != "":
			peer, err := s.lookupOfflinePeer(ctx, *online.UserID, app)
			if err != nil {
				return nil, fmt.Errorf("list peers: %w", err)
			}
			offline = peer
			if current != nil && offline != nil {
				linked, err := s.store.PeerLinkConfirmed(ctx, current.ID, offline.ID)
				if err != nil {
					return nil, fmt.Errorf("list peers: %w", err)
				}
				attached = linked
			}
		}

		online := online
		data, err := s.resolver.Resolve(ctx, &online, offline, attached)
		if err != nil {
			return nil, fmt.Errorf("list peers: %w", err)
		}
		if data != nil {
			out = append(out, *data)
		}
	}

	return out, nil
}

// GetPeer resolves one online peer by ID. Knowing the peer ID entitles the
// viewer to its privileged fields.
func (s *Service) GetPeer(ctx context.Context, viewer Viewer, peerID string) (*models.PeerData, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("get peer: peer registry: %w", ErrUnavailable)
	}

	online, err := s.registry.GetPeer(peerID)
	if err != nil {
		return nil, translate(err, "cannot find peer with id %q", peerID)
	}

	data, err := s.resolver.Resolve(ctx, online, nil, true)
	if err != nil {
		return nil, fmt.Errorf("get peer %q: %w", peerID, err)
	}
	if data == nil {
		return nil, fmt.Errorf("cannot find peer with id %q: %w", peerID, ErrNotFound)
	}
	return data, nil
}

// GetPeerByUserAndApp resolves the offline peer a user registered for an app.
func (s *Service) GetPeerByUserAndApp(ctx context.Context, viewer Viewer, userID int64, app string) (*models.PeerData, error) {
	offline, err := s.directory.GetOfflinePeerByUserAndApp(ctx, userID, strings.TrimSpace(app))
	if err != nil {
		return nil, translate(err, "cannot find peer with user %d and app %q", userID, app)
	}

	attached, err := s.attachedToOffline(ctx, viewer, offline)
	if err != nil {
		return nil, fmt.Errorf("get peer for user %d app %q: %w", userID, app, err)
	}

	data, err := s.resolver.Resolve(ctx, nil, offline, attached)
	if err != nil {
		return nil, fmt.Errorf("get peer for user %d app %q: %w", userID, app, err)
	}
	if data == nil {
		return nil, fmt.Errorf("cannot find peer with user %d and app %q: %w", userID, app, ErrNotFound)
	}
	return data, nil
}

// ListPeersLinks returns the links of the viewer's offline peers.
func (s *Service) ListPeersLinks(ctx context.Context, viewer Viewer, app string) ([]models.PeerLinkData, error) {
	if !viewer.LoggedIn() {
		return nil, fmt.Errorf("cannot list peers links: %w", ErrUnauthorized)
	}

	own, err := s.viewerPeers(ctx, viewer, app)
	if err != nil {
		return nil, fmt.Errorf("list peers links: %w", err)
	}

	out := make([]models.PeerLinkData, 0)
	for _, peer := range own {
		links, err := s.store.ListPeerLinksByPeer(ctx, peer.ID)
		if err != nil {
			return nil, fmt.Errorf("list peers links: %w", err)
		}
		for _, link := range links {
			out = append(out, models.LinkData(link))
		}
	}

	return out, nil
}

// ListLinkedPeers resolves the peers on the other side of the viewer's links.
// Each counterpart is combined with every one of its owner's online peers for
// app; identical results are emitted once. Without a registry only offline
// data is returned.
func (s *Service) ListLinkedPeers(ctx context.Context, viewer Viewer, app string) ([]models.PeerData, error) {
	if !viewer.LoggedIn() {
		return nil, fmt.Errorf("cannot list linked peers: %w", ErrUnauthorized)
	}
	app = strings.TrimSpace(app)

	own, err := s.viewerPeers(ctx, viewer, app)
	if err != nil {
		return nil, fmt.Errorf("list linked peers: %w", err)
	}

	out := make([]models.PeerData, 0)
	for _, peer := range own {
		links, err := s.store.ListPeerLinksByPeer(ctx, peer.ID)
		if err != nil {
			return nil, fmt.Errorf("list linked peers: %w", err)
		}

		for _, link := range links {
			counterpartID := link.Counterpart(peer.ID)
			offline, err := s.directory.GetOfflinePeer(ctx, counterpartID)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("list linked peers: %w", err)
			}

			for _, online := range s.onlinePeersOf(offline.UserID, app) {
				data, err := s.resolver.Resolve(ctx, online, offline, link.Confirmed)
				if err != nil {
					return nil, fmt.Errorf("list linked peers: %w", err)
				}
				if data != nil && !containsPeerData(out, *data) {
					out = append(out, *data)
				}
			}
		}
	}

	return out, nil
}

// AttachPeer binds an online peer to the viewer's account and optionally moves
// it to app.
func (s *Service) AttachPeer(ctx context.Context, viewer Viewer, peerID, app string) (*models.PeerData, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("attach peer: peer registry: %w", ErrUnavailable)
	}

	online, err := s.registry.GetPeer(peerID)
	if err != nil {
		return nil, translate(err, "cannot find peer with id %q", peerID)
	}

	if viewer.LoggedIn() {
		online.UserID = copyInt64(viewer.UserID)
	}
	if app = strings.TrimSpace(app); app != "" {
		online.App = app
	}

	if err := s.registry.UpdatePeer(*online); err != nil {
		return nil, translate(err, "attach peer %q", peerID)
	}

	return s.resolver.Resolve(ctx, online, nil, true)
}

// RegisterPeer creates the viewer's offline peer for an app.
func (s *Service) RegisterPeer(ctx context.Context, viewer Viewer, request RegisterPeerRequest) (*models.OfflinePeer, error) {
	if !viewer.LoggedIn() {
		return nil, fmt.Errorf("cannot register a new peer: %w", ErrUnauthorized)
	}
	app := strings.TrimSpace(request.App)
	if app == "" {
		return nil, fmt.Errorf("cannot register a new peer: app name is required: %w", ErrInvalidArgument)
	}

	peer, err := s.directory.AddOfflinePeer(ctx, models.OfflinePeer{
		UserID:   viewer.ID(),
		App:      app,
		IsPublic: request.IsPublic,
	})
	if err != nil {
		return nil, translate(err, "cannot register a new peer for app %q", app)
	}

	return peer, nil
}

// RequestPeerLink asks the owner of peerID to link with the viewer's peer for app.
func (s *Service) RequestPeerLink(ctx context.Context, viewer Viewer, peerID int64, app string) (*models.PeerLink, error) {
	return s.links.Request(ctx, viewer, peerID, app)
}

// ConfirmPeerLink accepts a link addressed to the viewer's peer for app.
func (s *Service) ConfirmPeerLink(ctx context.Context, viewer Viewer, linkID int64, app string) (*models.PeerLink, error) {
	return s.links.Confirm(ctx, viewer, linkID, app)
}

// RevokePeerLink deletes a link the viewer's peer for app takes part in.
func (s *Service) RevokePeerLink(ctx context.Context, viewer Viewer, linkID int64, app string) error {
	return s.links.Revoke(ctx, viewer, linkID, app)
}

func (s *Service) attachedToOffline(ctx context.Context, viewer Viewer, offline *models.OfflinePeer) (bool, error) {
	if !viewer.LoggedIn() {
		return false, nil
	}
	if viewer.ID() == offline.UserID {
		return true, nil
	}

	current, err := s.lookupOfflinePeer(ctx, viewer.ID(), offline.App)
	if err != nil || current == nil {
		return false, err
	}
	return s.store.PeerLinkConfirmed(ctx, current.ID, offline.ID)
}

// viewerPeers returns the viewer's offline peers, all of them when app is empty.
func (s *Service) viewerPeers(ctx context.Context, viewer Viewer, app string) ([]models.OfflinePeer, error) {
	app = strings.TrimSpace(app)
	if app == "" {
		return s.directory.ListOfflinePeersByUser(ctx, viewer.ID())
	}

	peer, err := s.lookupOfflinePeer(ctx, viewer.ID(), app)
	if err != nil {
		return nil, err
	}
	if peer == nil {
		return nil, nil
	}
	return []models.OfflinePeer{*peer}, nil
}

// lookupOfflinePeer returns nil without error when the user has no peer for app.
func (s *Service) lookupOfflinePeer(ctx context.Context, userID int64, app string) (*models.OfflinePeer, error) {
	peer, err := s.directory.GetOfflinePeerByUserAndApp(ctx, userID, app)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return peer, nil
}

// onlinePeersOf returns the user's online peers for app, or a single nil entry
// when there are none so the offline record is still resolved.
func (s *Service) onlinePeersOf(userID int64, app string) []*models.OnlinePeer {
	if s.registry == nil {
		return []*models.OnlinePeer{nil}
	}

	var out []*models.OnlinePeer
	for _, online := range s.registry.ListPeersByUser(userID) {
		if app != "" && online.App != app {
			continue
		}
		online := online
		out = append(out, &online)
	}
	if len(out) == 0 {
		return []*models.OnlinePeer{nil}
	}
	return out
}

func containsPeerData(list []models.PeerData, data models.PeerData) bool {
	for _, existing := range list {
		if existing.Equal(data) {
			return true
		}
	}
	return false
}
