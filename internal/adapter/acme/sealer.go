package acme

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize       = 24
	minSecretLength = 16
	sealerInfo      = "widgetdomains/acme/private-key/v1"
)

// KeySealer encrypts certificate private keys before they reach the order
// store.
type KeySealer struct {
	key [32]byte
}

// NewKeySealer derives a sealing key from secret.
func NewKeySealer(secret string) (*KeySealer, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("acme: key secret must be at least %d characters", minSecretLength)
	}
	s := &KeySealer{}
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo)), s.key[:]); err != nil {
		return nil, fmt.Errorf("acme: derive sealing key: %w", err)
	}
	return s, nil
}

// Seal returns nonce || box.
func (s *KeySealer) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("acme: seal nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open reverses Seal.
func (s *KeySealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.New("acme: sealed key too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("acme: sealed key does not open with the configured secret")
	}
	return plain, nil
}
