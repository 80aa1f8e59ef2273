package auth

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

const (
	ed25519PrivatePEMType = "ED25519 PRIVATE KEY"
	ed25519PublicPEMType  = "ED25519 PUBLIC KEY"
)

// Keys is the server keypair that signs session tokens.
type Keys struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

// Fingerprint returns the grouped fingerprint of the public key.
func (k *Keys) Fingerprint() string {
	return FormatFingerprint(KeyFingerprint(k.Public))
}

// LoadOrCreateKeys loads the signing keypair from disk, generating it on first run.
func LoadOrCreateKeys(privatePath, publicPath string) (*Keys, error) {
	privateKey, publicKey, err := EnsureEd25519KeyPair(privatePath, publicPath)
	if err != nil {
		return nil, err
	}
	return &Keys{Private: privateKey, Public: publicKey}, nil
}

// GenerateKeys returns a fresh in-memory keypair.
func GenerateKeys() (*Keys, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate Ed25519 keypair: %w", err)
	}
	return &Keys{Private: privateKey, Public: publicKey}, nil
}

// EnsureEd25519KeyPair loads an Ed25519 keypair from disk, generating it on first run.
// A missing or stale public key file is rewritten from the private key.
func EnsureEd25519KeyPair(privatePath, publicPath string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	privateKey, err := loadEd25519PrivateKey(privatePath)
	if err == nil {
		publicKey := privateKey.Public().(ed25519.PublicKey)

		storedPublic, pubErr := loadEd25519PublicKey(publicPath)
		if pubErr != nil || !bytes.Equal(storedPublic, publicKey) {
			if err := saveEd25519PublicKey(publicPath, publicKey); err != nil {
				return nil, nil, err
			}
		}

		return privateKey, publicKey, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	keys, err := GenerateKeys()
	if err != nil {
		return nil, nil, err
	}

	if err := saveEd25519PrivateKey(privatePath, keys.Private); err != nil {
		return nil, nil, err
	}
	if err := saveEd25519PublicKey(publicPath, keys.Public); err != nil {
		return nil, nil, err
	}

	return keys.Private, keys.Public, nil
}

func loadEd25519PrivateKey(path string) (ed25519.PrivateKey, error) {
	block, err := readPEM(path, ed25519PrivatePEMType)
	if err != nil {
		return nil, fmt.Errorf("load Ed25519 private key: %w", err)
	}
	if len(block.Bytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decode Ed25519 private PEM: invalid key size %d", len(block.Bytes))
	}
	return ed25519.PrivateKey(block.Bytes), nil
}

func loadEd25519PublicKey(path string) (ed25519.PublicKey, error) {
	block, err := readPEM(path, ed25519PublicPEMType)
	if err != nil {
		return nil, fmt.Errorf("load Ed25519 public key: %w", err)
	}
	if len(block.Bytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("decode Ed25519 public PEM: invalid key size %d", len(block.Bytes))
	}
	return ed25519.PublicKey(block.Bytes), nil
}

func readPEM(path, blockType string) (*pem.Block, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("no PEM block")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("unexpected PEM type %q", block.Type)
	}
	return block, nil
}

func saveEd25519PrivateKey(path string, key ed25519.PrivateKey) error {
	block := &pem.Block{
		Type:  ed25519PrivatePEMType,
		Bytes: key,
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		return fmt.Errorf("write Ed25519 private key: %w", err)
	}
	return nil
}

func saveEd25519PublicKey(path string, key ed25519.PublicKey) error {
	block := &pem.Block{
		Type:  ed25519PublicPEMType,
		Bytes: key,
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o644); err != nil {
		return fmt.Errorf("write Ed25519 public key: %w", err)
	}
	return nil
}

// KeyFingerprint returns the truncated SHA-256 hex fingerprint of a public key.
func KeyFingerprint(publicKey ed25519.PublicKey) string {
	sum := sha256.Sum256(publicKey)
	return hex.EncodeToString(sum[:16])
}

// FormatFingerprint returns fingerprint text grouped in chunks of 4 uppercase chars.
func FormatFingerprint(fingerprint string) string {
	clean := strings.ToUpper(strings.ReplaceAll(fingerprint, " ", ""))
	if clean == "" {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(clean); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(clean[i:min(i+4, len(clean))])
	}

	return b.String()
}
