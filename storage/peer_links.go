package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peerlink/models"
)

const peerLinkColumns = `id, left_peer, right_peer, confirmed, created_at`

// AddPeerLink inserts an unconfirmed link from left (requester) to right (addressee).
func (s *Store) AddPeerLink(ctx context.Context, link models.PeerLink) (*models.PeerLink, error) {
	if link.LeftPeer <= 0 || link.RightPeer <= 0 {
		return nil, errors.New("left_peer and right_peer are required")
	}
	if link.LeftPeer == link.RightPeer {
		return nil, errors.New("a peer cannot be linked to itself")
	}
	if link.CreatedAt == 0 {
		link.CreatedAt = nowUnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO peer_links (
			left_peer,
			right_peer,
			confirmed,
			created_at
		) VALUES (?, ?, ?, ?)`,
		link.LeftPeer,
		link.RightPeer,
		boolToInt(link.Confirmed),
		link.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert peer link %d -> %d: %w", link.LeftPeer, link.RightPeer, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read peer link id: %w", err)
	}
	link.ID = id

	return &link, nil
}

// GetPeerLink fetches a link by ID.
func (s *Store) GetPeerLink(ctx context.Context, id int64) (*models.PeerLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+peerLinkColumns+`
		FROM peer_links
		WHERE id = ?`,
		id,
	)

	link, err := scanPeerLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get peer link %d: %w", id, err)
	}

	return link, nil
}

// ListPeerLinksByPeer returns every link where the offline peer is either side.
func (s *Store) ListPeerLinksByPeer(ctx context.Context, peerID int64) ([]models.PeerLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+peerLinkColumns+`
		FROM peer_links
		WHERE left_peer = ? OR right_peer = ?
		ORDER BY id`,
		peerID,
		peerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list peer links for peer %d: %w", peerID, err)
	}
	defer rows.Close()

	links := make([]models.PeerLink, 0)
	for rows.Next() {
		link, err := scanPeerLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan peer link row: %w", err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer link rows: %w", err)
	}

	return links, nil
}

// FindPeerLinkBetween returns the oldest link between two peers in either direction.
func (s *Store) FindPeerLinkBetween(ctx context.Context, a, b int64) (*models.PeerLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+peerLinkColumns+`
		FROM peer_links
		WHERE (left_peer = ? AND right_peer = ?) OR (left_peer = ? AND right_peer = ?)
		ORDER BY id
		LIMIT 1`,
		a, b, b, a,
	)

	link, err := scanPeerLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find peer link between %d and %d: %w", a, b, err)
	}

	return link, nil
}

// PeerLinkConfirmed reports whether a confirmed link exists between two peers,
// regardless of which side requested it.
func (s *Store) PeerLinkConfirmed(ctx context.Context, a, b int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1)
		FROM peer_links
		WHERE confirmed = 1
		  AND ((left_peer = ? AND right_peer = ?) OR (left_peer = ? AND right_peer = ?))`,
		a, b, b, a,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check confirmed peer link between %d and %d: %w", a, b, err)
	}
	return count > 0, nil
}

// ConfirmPeerLink marks a link confirmed on behalf of its addressee. The update
// only matches when rightPeer is the link's addressee; an already confirmed link
// is left as is.
func (s *Store) ConfirmPeerLink(ctx context.Context, id, rightPeer int64) (*models.PeerLink, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE peer_links
		SET confirmed = 1
		WHERE id = ? AND right_peer = ? AND confirmed = 0`,
		id,
		rightPeer,
	)
	if err != nil {
		return nil, fmt.Errorf("confirm peer link %d: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("read rows affected for confirm peer link %d: %w", id, err)
	}

	link, err := s.GetPeerLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 && (link.RightPeer != rightPeer || !link.Confirmed) {
		return nil, ErrNotFound
	}

	return link, nil
}

// RemovePeerLink deletes a link on behalf of one of its two sides.
func (s *Store) RemovePeerLink(ctx context.Context, id, peerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM peer_links
		WHERE id = ? AND (left_peer = ? OR right_peer = ?)`,
		id,
		peerID,
		peerID,
	)
	if err != nil {
		return fmt.Errorf("remove peer link %d: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for remove peer link %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func scanPeerLink(row scanner) (*models.PeerLink, error) {
	var (
		link      models.PeerLink
		confirmed int
	)
	if err := row.Scan(
		&link.ID,
		&link.LeftPeer,
		&link.RightPeer,
		&confirmed,
		&link.CreatedAt,
	); err != nil {
		return nil, err
	}

	link.Confirmed = confirmed == 1
	return &link, nil
}
