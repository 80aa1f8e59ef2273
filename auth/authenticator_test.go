package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"peerlink/storage"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *storage.Store) {
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

	return NewAuthenticator(store, newTestTokens(t), time.Hour), store
}

func TestRegisterAndLogin(t *testing.T) {
	authenticator, store := newTestAuthenticator(t)
	ctx := context.Background()

	user, err := authenticator.Register(ctx, " alice ", "Alice A.", "s3cret")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Username != "alice" || user.PasswordHash == "s3cret" {
		t.Fatalf("unexpected stored user: %+v", user)
	}

	stored, err := store.GetUser(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if err := CheckPassword(stored.PasswordHash, "s3cret"); err != nil {
		t.Fatalf("expected stored hash to match: %v", err)
	}

	session, err := authenticator.Login(ctx, "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.UserID != user.ID {
		t.Fatalf("expected session for user %d, got %d", user.ID, session.UserID)
	}

	userID, err := authenticator.Tokens().Verify(session.Token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected token for user %d, got %d", user.ID, userID)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	authenticator, _ := newTestAuthenticator(t)
	ctx := context.Background()

	if _, err := authenticator.Register(ctx, "alice", "", "s3cret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := authenticator.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := authenticator.Login(ctx, "mallory", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestRegisterRejectsDuplicatesAndEmptyInput(t *testing.T) {
	authenticator, _ := newTestAuthenticator(t)
	ctx := context.Background()

	if _, err := authenticator.Register(ctx, "alice", "", "s3cret"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := authenticator.Register(ctx, "alice", "", "other"); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("expected storage.ErrConflict, got %v", err)
	}
	if _, err := authenticator.Register(ctx, " ", "", "s3cret"); err == nil {
		t.Fatalf("expected empty username to fail")
	}
	if _, err := authenticator.Register(ctx, "bob", "", ""); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword for empty password, got %v", err)
	}
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	authenticator, _ := newTestAuthenticator(t)
	ctx := context.Background()

	if _, err := authenticator.Register(ctx, "carol", "", strings.Repeat("p", MaxPasswordBytes+1)); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if _, err := authenticator.Register(ctx, "carol", "", strings.Repeat("p", MaxPasswordBytes)); err != nil {
		t.Fatalf("expected %d-byte password to be accepted, got %v", MaxPasswordBytes, err)
	}
}
