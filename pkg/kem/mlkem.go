// Package kem implements the post-quantum half of the hybrid handshake:
// ML-KEM-768 encapsulation/decapsulation.
package kem

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
)

var (
	// ErrKeyGenerationFailed indicates key generation failed.
	ErrKeyGenerationFailed = errors.New("kem: key generation failed")
	// ErrInvalidCiphertext indicates a malformed or wrong-sized ciphertext.
	ErrInvalidCiphertext = errors.New("kem: invalid ciphertext")
	// ErrInvalidPublicKey indicates a malformed or wrong-sized public key.
	ErrInvalidPublicKey = errors.New("kem: invalid public key")
	// ErrDecapsulationFailed indicates decapsulation failed.
	ErrDecapsulationFailed = errors.New("kem: decapsulation failed")
)

// Scheme returns the ML-KEM-768 KEM scheme, useful for wire-size constants.
func Scheme() kem.Scheme {
	return kyber768.Scheme()
}

// Keypair is an ephemeral ML-KEM-768 keypair, generated client-side once per
// handshake. The secret key is held only until decapsulation completes.
type Keypair struct {
	PublicKey  []byte // 1184 bytes
	PrivateKey []byte // 2400 bytes
}

// Generate creates a fresh ML-KEM-768 keypair using system entropy.
func Generate() (*Keypair, error) {
	scheme := kyber768.Scheme()

	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyGenerationFailed, err)
	}

	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal public key: %v", ErrKeyGenerationFailed, err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal private key: %v", ErrKeyGenerationFailed, err)
	}

	return &Keypair{PublicKey: pkBytes, PrivateKey: skBytes}, nil
}

// Encapsulate produces a ciphertext and 32-byte shared secret against a
// peer's ML-KEM-768 public key.
func Encapsulate(publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	scheme := kyber768.Scheme()

	if len(publicKey) != scheme.PublicKeySize() {
		return nil, nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidPublicKey, scheme.PublicKeySize(), len(publicKey))
	}

	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("kem: encapsulation failed: %w", err)
	}
	return ct, ss, nil
}

// Decapsulate recovers the 32-byte shared secret from a ciphertext using the
// keypair's private key.
func (kp *Keypair) Decapsulate(ciphertext []byte) ([]byte, error) {
	scheme := kyber768.Scheme()

	if len(kp.PrivateKey) != scheme.PrivateKeySize() {
		return nil, fmt.Errorf("%w: invalid private key size", ErrDecapsulationFailed)
	}
	if len(ciphertext) != scheme.CiphertextSize() {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidCiphertext, scheme.CiphertextSize(), len(ciphertext))
	}

	sk, err := scheme.UnmarshalBinaryPrivateKey(kp.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecapsulationFailed, err)
	}

	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecapsulationFailed, err)
	}
	return ss, nil
}

// Zero wipes the keypair's private key from memory. Called once
// decapsulation (or the handshake's abandonment) makes the secret
// unnecessary — no ephemeral secret should outlive the handshake that
// produced it.
func (kp *Keypair) Zero() {
	for i := range kp.PrivateKey {
		kp.PrivateKey[i] = 0
	}
	runtime.KeepAlive(kp.PrivateKey)
}
