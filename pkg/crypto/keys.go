// Package crypto holds the WireGuard Curve25519 key helpers.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyLen is the size in bytes of a WireGuard key.
const KeyLen = 32

// KeyPair is a base64 WireGuard key pair. The private key only ever flows into
// the interface controller and the persisted interface stanza.
type KeyPair struct {
	PrivateKey string `json:"private_key" yaml:"-"`
	PublicKey  string `json:"public_key" yaml:"public_key"`
}

// GenerateKeyPair generates a new key pair in-process, equivalent to
// `wg genkey | tee priv | wg pubkey`.
func GenerateKeyPair() (*KeyPair, error) {
	priv := make([]byte, KeyLen)
	if _, err := rand.Read(priv); err != nil {
		return nil, fmt.Errorf("failed to read random bytes for private key: %w", err)
	}
	clamp(priv)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to compute public key: %w", err)
	}

	return &KeyPair{
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}, nil
}

// KeyPairFromPrivate rebuilds the pair for a stored private key.
func KeyPairFromPrivate(privateKey string) (*KeyPair, error) {
	pub, err := DerivePublicKey(privateKey)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: privateKey, PublicKey: pub}, nil
}

// DerivePublicKey derives a public key from a given private key.
func DerivePublicKey(privateKey string) (string, error) {
	priv, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return "", fmt.Errorf("private key is not valid base64: %w", err)
	}
	if len(priv) != KeyLen {
		return "", fmt.Errorf("private key has %d bytes, want %d", len(priv), KeyLen)
	}
	clamp(priv)

	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("failed to derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// IsValidKey reports whether key is standard base64 of exactly 32 bytes.
func IsValidKey(key string) bool {
	if len(key) != 44 {
		return false
	}
	raw, err := base64.StdEncoding.DecodeString(key)
	return err == nil && len(raw) == KeyLen
}

func clamp(key []byte) {
	key[0] &= 248
	key[31] &= 127
	key[31] |= 64
}
