package models

import (
	"encoding/json"
	"strconv"
)

// PeerData is the disclosure-safe view of one peer. The privileged fields are
// nil unless the viewer is attached to the peer.
type PeerData struct {
	Registered bool         `json:"registered"`
	Online     bool         `json:"online"`
	App        string       `json:"app"`
	UserID     *int64       `json:"userId,omitempty"`
	PeerID     *string      `json:"peerId,omitempty"`
	User       *UserSummary `json:"user,omitempty"`

	// userIDDisclosed distinguishes a disclosed null userId from an undisclosed one.
	userIDDisclosed bool
}

// DiscloseUserID records userID as disclosed, even when it is nil.
func (d *PeerData) DiscloseUserID(userID *int64) {
	d.UserID = userID
	d.userIDDisclosed = true
}

// UserIDDisclosed reports whether the userId field was disclosed.
func (d PeerData) UserIDDisclosed() bool {
	return d.userIDDisclosed
}

// MarshalJSON writes a disclosed but unknown userId as null and leaves an
// undisclosed one out.
func (d PeerData) MarshalJSON() ([]byte, error) {
	var userID json.RawMessage
	if d.userIDDisclosed {
		userID = json.RawMessage("null")
		if d.UserID != nil {
			userID = json.RawMessage(strconv.FormatInt(*d.UserID, 10))
		}
	}
	return json.Marshal(struct {
		Registered bool            `json:"registered"`
		Online     bool            `json:"online"`
		App        string          `json:"app"`
		UserID     json.RawMessage `json:"userId,omitempty"`
		PeerID     *string         `json:"peerId,omitempty"`
		User       *UserSummary    `json:"user,omitempty"`
	}{
		Registered: d.Registered,
		Online:     d.Online,
		App:        d.App,
		UserID:     userID,
		PeerID:     d.PeerID,
		User:       d.User,
	})
}

// Equal compares two resolved records by value.
func (d PeerData) Equal(other PeerData) bool {
	if d.Registered != other.Registered || d.Online != other.Online || d.App != other.App {
		return false
	}
	if d.userIDDisclosed != other.userIDDisclosed {
		return false
	}
	if !equalInt64Ptr(d.UserID, other.UserID) || !equalStringPtr(d.PeerID, other.PeerID) {
		return false
	}
	switch {
	case d.User == nil && other.User == nil:
		return true
	case d.User == nil || other.User == nil:
		return false
	default:
		return *d.User == *other.User
	}
}

// PeerLinkData is the wire shape of a peer link.
type PeerLinkData struct {
	ID        int64 `json:"id"`
	LeftPeer  int64 `json:"leftPeer"`
	RightPeer int64 `json:"rightPeer"`
	Confirmed bool  `json:"confirmed"`
}

// LinkData converts a stored link to its wire shape.
func LinkData(link PeerLink) PeerLinkData {
	return PeerLinkData{
		ID:        link.ID,
		LeftPeer:  link.LeftPeer,
		RightPeer: link.RightPeer,
		Confirmed: link.Confirmed,
	}
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
