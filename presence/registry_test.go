package presence

import (
	"errors"
	"sync"
	"testing"
	"time"

	"peerlink/models"
)

func TestRegistryConnectUpdateDisconnect(t *testing.T) {
	registry := NewRegistry()

	var (
		mu      sync.Mutex
		updated []models.OnlinePeer
		deleted []models.OnlinePeer
		moved   []models.OnlinePeer
	)
	registry.On(EventPeerUpdated, func(peer models.OnlinePeer) {
		mu.Lock()
		updated = append(updated, peer)
		mu.Unlock()
	})
	registry.On(EventPeerDeleted, func(peer models.OnlinePeer) {
		mu.Lock()
		deleted = append(deleted, peer)
		mu.Unlock()
	})
	registry.On(EventPeerMoved, func(peer models.OnlinePeer) {
		mu.Lock()
		moved = append(moved, peer)
		mu.Unlock()
	})

	peer := registry.Connect("chat", SourceWebsocket)
	if peer.ID == "" {
		t.Fatalf("expected generated peer ID")
	}
	if peer.UserID != nil {
		t.Fatalf("expected anonymous peer, got user %d", *peer.UserID)
	}

	userID := int64(7)
	peer.UserID = &userID
	peer.App = "board"
	if err := registry.UpdatePeer(peer); err != nil {
		t.Fatalf("UpdatePeer failed: %v", err)
	}

	got, err := registry.GetPeer(peer.ID)
	if err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
	if got.UserID == nil || *got.UserID != 7 || got.App != "board" {
		t.Fatalf("unexpected peer after update: %+v", got)
	}
	if got.Source != SourceWebsocket {
		t.Fatalf("expected source to be preserved, got %q", got.Source)
	}

	byUser := registry.ListPeersByUser(7)
	if len(byUser) != 1 || byUser[0].ID != peer.ID {
		t.Fatalf("unexpected peers for user 7: %+v", byUser)
	}

	if err := registry.Disconnect(peer.ID); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if _, err := registry.GetPeer(peer.ID); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound after disconnect, got %v", err)
	}
	if err := registry.Disconnect(peer.ID); !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound for repeated disconnect, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(updated) != 2 {
		t.Fatalf("expected 2 update events, got %d", len(updated))
	}
	if len(deleted) != 1 || deleted[0].App != "board" {
		t.Fatalf("unexpected delete events: %+v", deleted)
	}
	if len(moved) != 1 || moved[0].App != "chat" || moved[0].UserID != nil {
		t.Fatalf("expected one move event carrying the previous record, got %+v", moved)
	}
}

func TestRegistryUpdateWithinAppDoesNotMove(t *testing.T) {
	registry := NewRegistry()
	var moves int
	registry.On(EventPeerMoved, func(models.OnlinePeer) { moves++ })

	peer := registry.Connect("chat", SourceWebsocket)
	userID := int64(3)
	peer.UserID = &userID
	if err := registry.UpdatePeer(peer); err != nil {
		t.Fatalf("UpdatePeer failed: %v", err)
	}
	if moves != 0 {
		t.Fatalf("expected no move event for an update within the same app, got %d", moves)
	}
}

func TestRegistryUpdateUnknownPeer(t *testing.T) {
	registry := NewRegistry()
	err := registry.UpdatePeer(models.OnlinePeer{ID: "missing", App: "chat"})
	if !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestRegistryListPeersOrderedByConnectionTime(t *testing.T) {
	registry := NewRegistry()
	base := time.Unix(1_706_000_000, 0)
	tick := 0
	registry.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := registry.Connect("chat", SourceWebsocket)
	second := registry.Connect("chat", SourceWebsocket)
	third := registry.Connect("board", SourceMDNS)

	peers := registry.ListPeers()
	if len(peers) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(peers))
	}
	if peers[0].ID != first.ID || peers[1].ID != second.ID || peers[2].ID != third.ID {
		t.Fatalf("unexpected order: %+v", peers)
	}
}

func TestRegistryHandlerPanicDoesNotFailMutation(t *testing.T) {
	registry := NewRegistry()
	registry.On(EventPeerUpdated, func(models.OnlinePeer) {
		panic("boom")
	})

	peer := registry.Connect("chat", SourceWebsocket)
	if registry.Len() != 1 {
		t.Fatalf("expected peer to be registered despite handler panic")
	}
	if _, err := registry.GetPeer(peer.ID); err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
}

func TestRegistryReturnsCopies(t *testing.T) {
	registry := NewRegistry()
	userID := int64(3)
	peer := registry.Connect("chat", SourceWebsocket)
	peer.UserID = &userID
	if err := registry.UpdatePeer(peer); err != nil {
		t.Fatalf("UpdatePeer failed: %v", err)
	}

	got, err := registry.GetPeer(peer.ID)
	if err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
	*got.UserID = 99

	again, err := registry.GetPeer(peer.ID)
	if err != nil {
		t.Fatalf("GetPeer failed: %v", err)
	}
	if *again.UserID != 3 {
		t.Fatalf("expected stored peer to be isolated from caller mutation, got %d", *again.UserID)
	}
}
