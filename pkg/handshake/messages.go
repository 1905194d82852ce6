// Package handshake implements the two-message post-quantum hybrid
// key-agreement protocol: wire encoding, client and server state machines,
// and the session-key KDF.
package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pqtun/pqtun/pkg/ecdh"
	"github.com/pqtun/pqtun/pkg/kem"
	"github.com/pqtun/pqtun/pkg/signature"
)

// Discriminant is the one-byte tag at offset 0 of every handshake frame.
type Discriminant byte

const (
	// DiscriminantClientHello tags message 1, client → server.
	DiscriminantClientHello Discriminant = 0
	// DiscriminantServerHello tags message 2, server → client.
	DiscriminantServerHello Discriminant = 1
)

// Fixed wire sizes, pinned to spec so both peers decode identically.
var (
	ecdhPubSize    = ecdh.PublicKeySize
	kemPubSize     = kem.Scheme().PublicKeySize()
	kemCipherSize  = kem.Scheme().CiphertextSize()
	signatureSize  = signature.SignatureSize
)

// ErrDecode is returned for any frame that fails to decode: wrong
// discriminant, truncated fixed-size fields, or a length prefix that runs
// past the end of the buffer.
var ErrDecode = errors.New("handshake: decode failed")

// ClientHello is message 1, sent client → server.
type ClientHello struct {
	ClientECDHPub []byte // 32 bytes
	ClientKEMPub  []byte // 1184 bytes (ML-KEM-768 public key)
	ClientID      string
	VirtualIP     string
}

// ServerHello is message 2, sent server → client.
type ServerHello struct {
	ServerECDHPub []byte // 32 bytes
	KEMCiphertext []byte // 1088 bytes (ML-KEM-768 ciphertext)
	Signature     []byte // 64 bytes (Ed25519 signature)
}

// SignedPayload returns server_ecdh_pub ‖ kem_ciphertext, the exact byte
// string the server signs and the client verifies.
func (sh *ServerHello) SignedPayload() []byte {
	buf := make([]byte, 0, len(sh.ServerECDHPub)+len(sh.KEMCiphertext))
	buf = append(buf, sh.ServerECDHPub...)
	buf = append(buf, sh.KEMCiphertext...)
	return buf
}

func putString(buf []byte, s string) []byte {
	var lenBytes [8]byte
	binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(s)))
	buf = append(buf, lenBytes[:]...)
	buf = append(buf, s...)
	return buf
}

func readString(data []byte, offset int) (string, int, error) {
	if offset+8 > len(data) {
		return "", 0, ErrDecode
	}
	n := binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	if n > uint64(len(data)-offset) {
		return "", 0, ErrDecode
	}
	end := offset + int(n)
	return string(data[offset:end]), end, nil
}

// EncodeClientHello serializes a ClientHello to its wire form.
func EncodeClientHello(m *ClientHello) ([]byte, error) {
	if len(m.ClientECDHPub) != ecdhPubSize {
		return nil, fmt.Errorf("%w: client_ecdh_pub wrong size", ErrDecode)
	}
	if len(m.ClientKEMPub) != kemPubSize {
		return nil, fmt.Errorf("%w: client_kem_pub wrong size", ErrDecode)
	}

	buf := make([]byte, 0, 1+ecdhPubSize+kemPubSize+8+len(m.ClientID)+8+len(m.VirtualIP))
	buf = append(buf, byte(DiscriminantClientHello))
	buf = append(buf, m.ClientECDHPub...)
	buf = append(buf, m.ClientKEMPub...)
	buf = putString(buf, m.ClientID)
	buf = putString(buf, m.VirtualIP)
	return buf, nil
}

// EncodeServerHello serializes a ServerHello to its wire form.
func EncodeServerHello(m *ServerHello) ([]byte, error) {
	if len(m.ServerECDHPub) != ecdhPubSize {
		return nil, fmt.Errorf("%w: server_ecdh_pub wrong size", ErrDecode)
	}
	if len(m.KEMCiphertext) != kemCipherSize {
		return nil, fmt.Errorf("%w: kem_ciphertext wrong size", ErrDecode)
	}
	if len(m.Signature) != signatureSize {
		return nil, fmt.Errorf("%w: signature wrong size", ErrDecode)
	}

	buf := make([]byte, 0, 1+ecdhPubSize+kemCipherSize+signatureSize)
	buf = append(buf, byte(DiscriminantServerHello))
	buf = append(buf, m.ServerECDHPub...)
	buf = append(buf, m.KEMCiphertext...)
	buf = append(buf, m.Signature...)
	return buf, nil
}

// DecodeClientHello decodes a ClientHello from its wire form. It checks the
// discriminant byte itself and rejects any other variant with ErrDecode.
func DecodeClientHello(data []byte) (*ClientHello, error) {
	if len(data) < 1+ecdhPubSize+kemPubSize {
		return nil, ErrDecode
	}
	if Discriminant(data[0]) != DiscriminantClientHello {
		return nil, ErrDecode
	}

	offset := 1
	ecdhPub := data[offset : offset+ecdhPubSize]
	offset += ecdhPubSize
	kemPub := data[offset : offset+kemPubSize]
	offset += kemPubSize

	clientID, offset, err := readString(data, offset)
	if err != nil {
		return nil, err
	}
	virtualIP, offset, err := readString(data, offset)
	if err != nil {
		return nil, err
	}
	if offset != len(data) {
		return nil, ErrDecode
	}

	return &ClientHello{
		ClientECDHPub: append([]byte(nil), ecdhPub...),
		ClientKEMPub:  append([]byte(nil), kemPub...),
		ClientID:      clientID,
		VirtualIP:     virtualIP,
	}, nil
}

// DecodeServerHello decodes a ServerHello from its wire form.
func DecodeServerHello(data []byte) (*ServerHello, error) {
	want := 1 + ecdhPubSize + kemCipherSize + signatureSize
	if len(data) != want {
		return nil, ErrDecode
	}
	if Discriminant(data[0]) != DiscriminantServerHello {
		return nil, ErrDecode
	}

	offset := 1
	ecdhPub := data[offset : offset+ecdhPubSize]
	offset += ecdhPubSize
	cipher := data[offset : offset+kemCipherSize]
	offset += kemCipherSize
	sig := data[offset : offset+signatureSize]

	return &ServerHello{
		ServerECDHPub: append([]byte(nil), ecdhPub...),
		KEMCiphertext: append([]byte(nil), cipher...),
		Signature:     append([]byte(nil), sig...),
	}, nil
}

// IsClientHello reports whether data decodes as a well-formed ClientHello.
// This is the server dispatcher's sole classification test (§4.5): a
// datagram is a handshake iff this succeeds. No heuristic or length-based
// guess is made; a malformed frame with discriminant 0 is treated as a
// decode failure, not a handshake.
func IsClientHello(data []byte) bool {
	_, err := DecodeClientHello(data)
	return err == nil
}
