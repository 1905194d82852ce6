// Package aead implements the symmetric seal/open primitive used for every
// data frame exchanged after a handshake completes.
package aead

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Key size and wire overhead constants.
const (
	KeySize   = chacha20poly1305.KeySize   // 32 bytes
	NonceSize = chacha20poly1305.NonceSize // 12 bytes
	TagSize   = 16                         // Poly1305 tag
	Overhead  = NonceSize + TagSize        // 28 bytes total framing overhead
)

// ErrAeadFailure is returned for any short input, corrupted frame, or tag
// mismatch on Open. No distinction is made between these cases: the caller
// drops the frame either way.
var ErrAeadFailure = errors.New("aead: open failed")

// ErrInvalidKeySize indicates a key that is not KeySize bytes long.
var ErrInvalidKeySize = errors.New("aead: invalid key size")

// Seal encrypts plain under key and returns nonce‖ciphertext‖tag. A fresh
// 12-byte nonce is drawn from crypto/rand on every call; no associated data
// is used, matching the wire contract both peers must agree on.
func Seal(key [KeySize]byte, plain []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: create cipher: %w", err)
	}

	out := make([]byte, NonceSize, NonceSize+len(plain)+chacha20poly1305.Overhead)
	if _, err := rand.Read(out[:NonceSize]); err != nil {
		return nil, fmt.Errorf("aead: generate nonce: %w", err)
	}

	return aead.Seal(out, out[:NonceSize], plain, nil), nil
}

// Open authenticates and decrypts a nonce‖ciphertext‖tag frame produced by
// Seal under the same key. It fails with ErrAeadFailure on any tag
// mismatch, short input, or corrupted frame.
func Open(key [KeySize]byte, in []byte) ([]byte, error) {
	if len(in) < Overhead {
		return nil, ErrAeadFailure
	}

	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: create cipher: %w", err)
	}

	nonce := in[:NonceSize]
	sealed := in[NonceSize:]

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrAeadFailure
	}

	return plain, nil
}

// KeyFromSlice validates and converts a byte slice into a fixed-size key.
func KeyFromSlice(b []byte) ([KeySize]byte, error) {
	var key [KeySize]byte
	if len(b) != KeySize {
		return key, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(b), KeySize)
	}
	copy(key[:], b)
	return key, nil
}
