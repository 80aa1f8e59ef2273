// Package auth issues session tokens for user accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"peerlink/models"
	"peerlink/storage"
)

var log = logging.Logger("peerlink/auth")

// Users persists accounts.
type Users interface {
	AddUser(ctx context.Context, user models.User) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Session is the result of a successful login.
type Session struct {
	UserID    int64     `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Authenticator validates credentials and issues tokens.
type Authenticator struct {
	users  Users
	tokens *Tokens
	ttl    time.Duration
}

// NewAuthenticator creates an authenticator issuing tokens valid for ttl.
func NewAuthenticator(users Users, tokens *Tokens, ttl time.Duration) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, ttl: ttl}
}

// Tokens returns the token issuer used for sessions.
func (a *Authenticator) Tokens() *Tokens {
	return a.tokens
}

// Register creates an account with a hashed password.
func (a *Authenticator) Register(ctx context.Context, username, realname, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is required")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := a.users.AddUser(ctx, models.User{
		Username:     username,
		Realname:     strings.TrimSpace(realname),
		PasswordHash: hash,
	})
	if err != nil {
		return nil, fmt.Errorf("register user %q: %w", username, err)
	}

	log.Infow("user registered", "user", user.ID, "username", user.Username)
	return user, nil
}

// Login checks the credentials and issues a session token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login %q: %w", username, err)
	}

	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}

	token, expiresAt, err := a.tokens.Issue(user.ID, a.ttl)
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", username, err)
	}

	log.Debugw("session issued", "user", user.ID, "expires", expiresAt)
	return &Session{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}
