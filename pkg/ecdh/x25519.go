// Package ecdh implements the classical half of the hybrid handshake:
// X25519 ephemeral key agreement.
package ecdh

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
)

// PublicKeySize and PrivateKeySize are the X25519 scalar/point sizes.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
)

var (
	// ErrKeyGenerationFailed indicates key generation failed.
	ErrKeyGenerationFailed = errors.New("ecdh: key generation failed")
	// ErrInvalidKey indicates a public or private key of the wrong size or
	// an invalid point/scalar encoding.
	ErrInvalidKey = errors.New("ecdh: invalid key")
)

// Keypair is an ephemeral X25519 keypair, used once per handshake.
type Keypair struct {
	PublicKey  []byte // 32 bytes
	PrivateKey []byte // 32 bytes
}

// Generate creates a fresh ephemeral X25519 keypair.
func Generate() (*Keypair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}
	return &Keypair{
		PublicKey:  priv.PublicKey().Bytes(),
		PrivateKey: priv.Bytes(),
	}, nil
}

// SharedSecret performs the X25519 Diffie-Hellman exchange and returns the
// 32-byte shared secret.
func SharedSecret(privateKey, peerPublicKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize || len(peerPublicKey) != PublicKeySize {
		return nil, ErrInvalidKey
	}

	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	pub, err := ecdh.X25519().NewPublicKey(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ecdh: exchange failed: %w", err)
	}
	return secret, nil
}
