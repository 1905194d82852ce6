package handshake

import "errors"

var (
	// errDeriveInput indicates DeriveSessionKey was called with a missing
	// shared secret or PSK.
	errDeriveInput = errors.New("handshake: missing key-derivation input")

	// ErrTimeout indicates the client did not receive a ServerHello within
	// the handshake deadline.
	ErrTimeout = errors.New("handshake: timed out waiting for server hello")

	// ErrBadSignature indicates the server's signature over its ECDH
	// public key and KEM ciphertext did not verify against the pinned
	// server verifying key.
	ErrBadSignature = errors.New("handshake: server signature verification failed")

	// ErrWrongState indicates a handshake method was called out of order
	// for the client's current state.
	ErrWrongState = errors.New("handshake: method called in wrong state")

	// ErrSessionTableFull indicates the server's session table is at
	// capacity; the ClientHello is silently dropped rather than answered,
	// so as not to give an attacker an oracle for table occupancy.
	ErrSessionTableFull = errors.New("handshake: session table at capacity")
)
