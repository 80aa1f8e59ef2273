package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer is the iss claim of every session token.
const TokenIssuer = "peerlink"

var (
	// ErrInvalidToken indicates a malformed token or a bad signature.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// Tokens issues and verifies EdDSA-signed JWT session tokens. The subject
// claim carries the user ID.
type Tokens struct {
	keys *Keys
	now  func() time.Time
}

// NewTokens creates a token issuer backed by keys.
func NewTokens(keys *Keys) *Tokens {
	return &Tokens{keys: keys, now: time.Now}
}

// Issue returns a token for userID that expires after ttl.
func (t *Tokens) Issue(userID int64, ttl time.Duration) (string, time.Time, error) {
	if userID <= 0 {
		return "", time.Time{}, errors.New("user id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	issuedAt := t.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(ttl).Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(t.keys.Private)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify checks the token's signature and expiry and returns its user ID.
func (t *Tokens) Verify(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return t.keys.Public, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrTokenExpired
		}
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
