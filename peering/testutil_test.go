package peering

import (
	"context"
	"errors"
	"sync"
	"testing"

	"peerlink/models"
	"peerlink/presence"
	"peerlink/storage"
)

type testEnv struct {
	store     *storage.Store
	registry  *presence.Registry
	publisher *recordingPublisher
	service   *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithOptions(t, func(*Options) {})
}

func newTestEnvWithOptions(t *testing.T, configure func(*Options)) *testEnv {
	t.Helper()

	store, _, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	env := &testEnv{
		store:     store,
		registry:  presence.NewRegistry(),
		publisher: &recordingPublisher{},
	}
	options := Options{
		Registry:   env.registry,
		Directory:  store,
		Links:      store,
		Identities: store,
		Publisher:  env.publisher,
	}
	configure(&options)

	service, err := NewService(options)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	env.service = service
	return env
}

func (e *testEnv) mustUser(t *testing.T, username string) Viewer {
	t.Helper()
	user, err := e.store.AddUser(context.Background(), models.User{
		Username:     username,
		Realname:     "Real " + username,
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("add user %q: %v", username, err)
	}
	return UserViewer(user.ID)
}

func (e *testEnv) mustRegister(t *testing.T, viewer Viewer, app string, public bool) *models.OfflinePeer {
	t.Helper()
	peer, err := e.service.RegisterPeer(context.Background(), viewer, RegisterPeerRequest{App: app, IsPublic: public})
	if err != nil {
		t.Fatalf("RegisterPeer(%q) failed: %v", app, err)
	}
	return peer
}

func (e *testEnv) mustOnline(t *testing.T, viewer Viewer, app string) models.OnlinePeer {
	t.Helper()
	peer := e.registry.Connect(app, presence.SourceWebsocket)
	if viewer.LoggedIn() {
		if _, err := e.service.AttachPeer(context.Background(), viewer, peer.ID, ""); err != nil {
			t.Fatalf("AttachPeer failed: %v", err)
		}
	}
	got, err := e.registry.GetPeer(peer.ID)
	if err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
	return *got
}

func (e *testEnv) mustLink(t *testing.T, from Viewer, to *models.OfflinePeer, confirmBy Viewer) *models.PeerLink {
	t.Helper()
	ctx := context.Background()
	link, err := e.service.RequestPeerLink(ctx, from, to.ID, to.App)
	if err != nil {
		t.Fatalf("RequestPeerLink failed: %v", err)
	}
	if confirmBy.LoggedIn() {
		link, err = e.service.ConfirmPeerLink(ctx, confirmBy, link.ID, to.App)
		if err != nil {
			t.Fatalf("ConfirmPeerLink failed: %v", err)
		}
	}
	return link
}

type published struct {
	topic   string
	payload any
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) Publish(topic string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{topic: topic, payload: payload})
	return nil
}

func (p *recordingPublisher) snapshot() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.messages...)
}

type failingIdentities struct{}

func (failingIdentities) GetUserSummary(context.Context, int64) (*models.UserSummary, error) {
	return nil, errors.New("identity backend down")
}

func assertUndisclosed(t *testing.T, data models.PeerData) {
	t.Helper()
	if data.UserIDDisclosed() || data.UserID != nil {
		t.Fatalf("expected userId to be hidden, got %+v", data)
	}
	if data.PeerID != nil {
		t.Fatalf("expected peerId to be hidden, got %q", *data.PeerID)
	}
	if data.User != nil {
		t.Fatalf("expected user summary to be hidden, got %+v", data.User)
	}
}
