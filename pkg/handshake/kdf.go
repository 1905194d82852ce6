package handshake

import "lukechampine.com/blake3"

// sessionKeyLabel domain-separates this KDF from any other BLAKE3 use in the
// codebase. Changing it invalidates every session derived under the old
// label, so it is pinned to match the wire protocol version.
const sessionKeyLabel = "VPN_HYBRID_V2"

// SessionKeySize is the length in bytes of a derived session key — also the
// AEAD key size.
const SessionKeySize = 32

// DeriveSessionKey combines the classical and post-quantum shared secrets
// with the pre-shared key into a single session key:
//
//	session_key = BLAKE3(label ‖ ecdhShared ‖ kemShared ‖ psk)[0:32]
//
// Binding all three inputs means recovering the session key requires
// breaking X25519, ML-KEM-768, and the PSK simultaneously.
func DeriveSessionKey(ecdhShared, kemShared, psk []byte) ([SessionKeySize]byte, error) {
	var key [SessionKeySize]byte

	if len(ecdhShared) == 0 || len(kemShared) == 0 || len(psk) == 0 {
		return key, errDeriveInput
	}

	input := make([]byte, 0, len(sessionKeyLabel)+len(ecdhShared)+len(kemShared)+len(psk))
	input = append(input, sessionKeyLabel...)
	input = append(input, ecdhShared...)
	input = append(input, kemShared...)
	input = append(input, psk...)

	sum := blake3.Sum256(input)
	copy(key[:], sum[:])
	return key, nil
}
