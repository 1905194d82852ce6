package handshake

import (
	"fmt"

	"github.com/pqtun/pqtun/pkg/ecdh"
	"github.com/pqtun/pqtun/pkg/kem"
	"github.com/pqtun/pqtun/pkg/signature"
)

// Established is the result of successfully processing one ClientHello: the
// derived session key plus the identity and routing facts the dispatcher
// needs to install into the session and route tables.
type Established struct {
	SessionKey [SessionKeySize]byte
	ClientID   string
	VirtualIP  string
	Reply      []byte // encoded ServerHello to send back to the client
}

// Respond processes a decoded ClientHello: it generates a fresh ephemeral
// ECDH keypair, encapsulates against the client's KEM public key, signs the
// resulting ECDH-public‖ciphertext pair with the server's long-term signing
// key, and derives the session key. It is pure with respect to the session
// and route tables — the caller is responsible for atomically installing
// the returned Established record (replacing any prior session/route for a
// re-handshake from the same client).
func Respond(hello *ClientHello, serverSigningKey []byte, psk []byte) (*Established, error) {
	ecdhKeys, err := ecdh.Generate()
	if err != nil {
		return nil, fmt.Errorf("handshake: generate ecdh keys: %w", err)
	}

	kemCiphertext, kemShared, err := kem.Encapsulate(hello.ClientKEMPub)
	if err != nil {
		return nil, fmt.Errorf("handshake: encapsulate: %w", err)
	}

	ecdhShared, err := ecdh.SharedSecret(ecdhKeys.PrivateKey, hello.ClientECDHPub)
	if err != nil {
		return nil, fmt.Errorf("handshake: ecdh exchange: %w", err)
	}

	sh := &ServerHello{
		ServerECDHPub: ecdhKeys.PublicKey,
		KEMCiphertext: kemCiphertext,
	}

	sig, err := signature.Sign(serverSigningKey, sh.SignedPayload())
	if err != nil {
		return nil, fmt.Errorf("handshake: sign server hello: %w", err)
	}
	sh.Signature = sig

	wire, err := EncodeServerHello(sh)
	if err != nil {
		return nil, err
	}

	sessionKey, err := DeriveSessionKey(ecdhShared, kemShared, psk)
	if err != nil {
		return nil, err
	}

	return &Established{
		SessionKey: sessionKey,
		ClientID:   hello.ClientID,
		VirtualIP:  hello.VirtualIP,
		Reply:      wire,
	}, nil
}
