package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"peerlink/models"
)

const offlinePeerColumns = `id, user_id, app, is_public, created_at`

// AddOfflinePeer registers a peer for (user, app). A second registration for the
// same pair fails with ErrConflict.
func (s *Store) AddOfflinePeer(ctx context.Context, peer models.OfflinePeer) (*models.OfflinePeer, error) {
	if peer.UserID <= 0 {
		return nil, errors.New("user_id is required")
	}
	peer.App = normalizeApp(peer.App)
	if peer.App == "" {
		return nil, errors.New("app is required")
	}
	if peer.CreatedAt == 0 {
		peer.CreatedAt = nowUnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO offline_peers (
			user_id,
			app,
			is_public,
			created_at
		) VALUES (?, ?, ?, ?)`,
		peer.UserID,
		peer.App,
		boolToInt(peer.IsPublic),
		peer.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert offline peer for user %d app %q: %w", peer.UserID, peer.App, ErrConflict)
		}
		return nil, fmt.Errorf("insert offline peer for user %d app %q: %w", peer.UserID, peer.App, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read offline peer id: %w", err)
	}
	peer.ID = id

	return &peer, nil
}

// GetOfflinePeer fetches an offline peer by ID.
func (s *Store) GetOfflinePeer(ctx context.Context, id int64) (*models.OfflinePeer, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+offlinePeerColumns+`
		FROM offline_peers
		WHERE id = ?`,
		id,
	)

	peer, err := scanOfflinePeer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offline peer %d: %w", id, err)
	}

	return peer, nil
}

// GetOfflinePeerByUserAndApp fetches the single offline peer a user registered for an app.
func (s *Store) GetOfflinePeerByUserAndApp(ctx context.Context, userID int64, app string) (*models.OfflinePeer, error) {
	app = normalizeApp(app)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+offlinePeerColumns+`
		FROM offline_peers
		WHERE user_id = ? AND app = ?`,
		userID,
		app,
	)

	peer, err := scanOfflinePeer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get offline peer for user %d app %q: %w", userID, app, err)
	}

	return peer, nil
}

// ListOfflinePeersByUser returns every offline peer owned by a user, ordered by app.
func (s *Store) ListOfflinePeersByUser(ctx context.Context, userID int64) ([]models.OfflinePeer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+offlinePeerColumns+`
		FROM offline_peers
		WHERE user_id = ?
		ORDER BY app, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list offline peers for user %d: %w", userID, err)
	}
	defer rows.Close()

	peers := make([]models.OfflinePeer, 0)
	for rows.Next() {
		peer, err := scanOfflinePeer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offline peer row: %w", err)
		}
		peers = append(peers, *peer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offline peer rows: %w", err)
	}

	return peers, nil
}

func scanOfflinePeer(row scanner) (*models.OfflinePeer, error) {
	var (
		peer     models.OfflinePeer
		isPublic int
	)
	if err := row.Scan(
		&peer.ID,
		&peer.UserID,
		&peer.App,
		&isPublic,
		&peer.CreatedAt,
	); err != nil {
		return nil, err
	}

	peer.IsPublic = isPublic == 1
	return &peer, nil
}
