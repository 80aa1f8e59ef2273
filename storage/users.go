package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"peerlink/models"
)

// AddUser inserts a new account and returns it with its assigned ID.
func (s *Store) AddUser(ctx context.Context, user models.User) (*models.User, error) {
	user.Username = strings.TrimSpace(user.Username)
	if user.Username == "" {
		return nil, errors.New("username is required")
	}
	if user.PasswordHash == "" {
		return nil, errors.New("password_hash is required")
	}
	if user.CreatedAt == 0 {
		user.CreatedAt = nowUnixMilli()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (
			username,
			realname,
			password_hash,
			created_at
		) VALUES (?, ?, ?, ?)`,
		user.Username,
		user.Realname,
		user.PasswordHash,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert user %q: %w", user.Username, ErrConflict)
		}
		return nil, fmt.Errorf("insert user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read user id for %q: %w", user.Username, err)
	}
	user.ID = id

	return &user, nil
}

// GetUser fetches an account by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, realname, password_hash, created_at
		FROM users
		WHERE id = ?`,
		id,
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	return user, nil
}

// GetUserByUsername fetches an account by its unique username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, realname, password_hash, created_at
		FROM users
		WHERE username = ?`,
		strings.TrimSpace(username),
	)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %q: %w", username, err)
	}

	return user, nil
}

// GetUserSummary resolves a user ID to its public summary.
func (s *Store) GetUserSummary(ctx context.Context, id int64) (*models.UserSummary, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := user.Summary()
	return &summary, nil
}

func scanUser(row scanner) (*models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Realname,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
