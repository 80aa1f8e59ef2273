package peering

import (
	"errors"
	"fmt"

	"peerlink/presence"
	"peerlink/storage"
)

var (
	// ErrUnauthorized means the operation requires a logged-in viewer.
	ErrUnauthorized = errors.New("peering: not logged in")
	// ErrNotFound means a peer, link or prerequisite record is missing.
	ErrNotFound = errors.New("peering: not found")
	// ErrInvalidArgument means the caller supplied an unusable parameter.
	ErrInvalidArgument = errors.New("peering: invalid argument")
	// ErrConflict means the write would break a uniqueness invariant.
	ErrConflict = errors.New("peering: already exists")
	// ErrUnavailable means a required collaborator is not configured or reachable.
	ErrUnavailable = errors.New("peering: service unavailable")

	// ErrPrecursorMissing means the viewer has no offline peer for the app yet.
	ErrPrecursorMissing = fmt.Errorf("no peer associated with your account for this app, register a peer first: %w", ErrNotFound)
)

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, presence.ErrPeerNotFound)
}

// translate maps collaborator sentinels onto the package's own.
func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case isNotFound(err):
		return fmt.Errorf("%s: %w", msg, ErrNotFound)
	case errors.Is(err, storage.ErrConflict):
		return fmt.Errorf("%s: %w", msg, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", msg, err)
	}
}
