// Package signature implements the server's long-term identity: Ed25519
// key generation, signing, and verification.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// Key and signature sizes, per RFC 8032.
const (
	PublicKeySize  = ed25519.PublicKeySize  // 32 bytes
	PrivateKeySize = ed25519.PrivateKeySize // 64 bytes
	SignatureSize  = ed25519.SignatureSize  // 64 bytes
)

var (
	// ErrKeyGenerationFailed indicates the CSPRNG failed during generation.
	ErrKeyGenerationFailed = errors.New("signature: key generation failed")
	// ErrInvalidPrivateKey indicates a private key of the wrong size.
	ErrInvalidPrivateKey = errors.New("signature: invalid private key size")
	// ErrInvalidPublicKey indicates a public key of the wrong size.
	ErrInvalidPublicKey = errors.New("signature: invalid public key size")
)

// Keypair holds a server's long-term Ed25519 identity.
type Keypair struct {
	PublicKey  []byte // 32 bytes
	PrivateKey []byte // 64 bytes
}

// Generate creates a fresh Ed25519 keypair using system entropy.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}
	return &Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// Sign produces a deterministic 64-byte signature over msg.
func Sign(privateKey []byte, msg []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidPrivateKey, len(privateKey))
	}
	return ed25519.Sign(ed25519.PrivateKey(privateKey), msg), nil
}

// Verify reports whether sig is a valid Ed25519 signature over msg under
// verifyingKey. It never panics on malformed input.
func Verify(verifyingKey []byte, msg []byte, sig []byte) bool {
	if len(verifyingKey) != PublicKeySize || len(sig) != SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(verifyingKey), msg, sig)
}
