package storage

import (
	"context"
	"testing"

	"peerlink/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dataDir := t.TempDir()
	store, _, err := Open(dataDir)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close test store: %v", err)
		}
	})

	return store
}

func mustAddUser(t *testing.T, store *Store, username string) *models.User {
	t.Helper()

	user, err := store.AddUser(context.Background(), models.User{
		Username:     username,
		Realname:     "Real " + username,
		PasswordHash: "hash-" + username,
	})
	if err != nil {
		t.Fatalf("add user %q: %v", username, err)
	}
	return user
}

func mustAddOfflinePeer(t *testing.T, store *Store, userID int64, app string, public bool) *models.OfflinePeer {
	t.Helper()

	peer, err := store.AddOfflinePeer(context.Background(), models.OfflinePeer{
		UserID:   userID,
		App:      app,
		IsPublic: public,
	})
	if err != nil {
		t.Fatalf("add offline peer for user %d app %q: %v", userID, app, err)
	}
	return peer
}
