package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestTokens(t *testing.T) *Tokens {
	t.Helper()
	keys, err := GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys failed: %v", err)
	}
	return NewTokens(keys)
}

func TestIssueAndVerify(t *testing.T) {
	tokens := newTestTokens(t)

	token, expiresAt, err := tokens.Issue(42, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("expected header.payload.signature token, got %q", token)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatalf("expected expiry in the future, got %s", expiresAt)
	}

	userID, err := tokens.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != 42 {
		t.Fatalf("expected user 42, got %d", userID)
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tokens := newTestTokens(t)
	start := time.Now()
	tokens.now = func() time.Time { return start }

	token, _, err := tokens.Issue(7, time.Minute)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	tokens.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := tokens.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	tokens := newTestTokens(t)
	token, _, err := tokens.Issue(7, time.Hour)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	other := newTestTokens(t)
	foreign, _, err := other.Issue(8, time.Hour)
	if err != nil {
		t.Fatalf("Issue with other keys failed: %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign unsigned token failed: %v", err)
	}

	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Issuer:    "elsewhere",
		Subject:   "7",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(tokens.keys.Private)
	if err != nil {
		t.Fatalf("sign foreign issuer token failed: %v", err)
	}

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Issuer:    TokenIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(tokens.keys.Private)
	if err != nil {
		t.Fatalf("sign subjectless token failed: %v", err)
	}

	signature := token[strings.LastIndex(token, ".")+1:]
	foreignSigned := foreign[:strings.LastIndex(foreign, ".")]

	for name, candidate := range map[string]string{
		"empty":           "",
		"garbage":         "not-a-token",
		"bad encoding":    foreignSigned + ".!!!",
		"foreign key":     foreign,
		"swapped payload": foreignSigned + "." + signature,
		"none algorithm":  unsigned,
		"other issuer":    otherIssuer,
		"missing subject": noSubject,
	} {
		if _, err := tokens.Verify(candidate); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestIssueValidatesInput(t *testing.T) {
	tokens := newTestTokens(t)
	if _, _, err := tokens.Issue(0, time.Hour); err == nil {
		t.Fatalf("expected missing user id to fail")
	}
	if _, _, err := tokens.Issue(1, 0); err == nil {
		t.Fatalf("expected zero ttl to fail")
	}
}
