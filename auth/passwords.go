package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var (
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInvalidPassword indicates a password that cannot be hashed.
	ErrInvalidPassword = errors.New("auth: invalid password")
)

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required: %w", ErrInvalidPassword)
	}
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes: %w", MaxPasswordBytes, ErrInvalidPassword)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports ErrInvalidCredentials when password does not match hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidCredentials
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}
