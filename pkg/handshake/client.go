package handshake

import (
	"fmt"
	"net"
	"time"

	"github.com/pqtun/pqtun/pkg/ecdh"
	"github.com/pqtun/pqtun/pkg/kem"
	"github.com/pqtun/pqtun/pkg/signature"
)

// State is a client handshake's position in its state machine:
// Init → SentHello → Established | Failed.
type State int

const (
	StateInit State = iota
	StateSentHello
	StateEstablished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSentHello:
		return "sent_hello"
	case StateEstablished:
		return "established"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Timeout is the deadline for receiving a ServerHello after sending a
// ClientHello, per spec.
const Timeout = 5 * time.Second

// Client drives the client side of a single handshake attempt. It is not
// reused across handshakes: a fresh Client is created for every connection
// attempt so ephemeral key material never outlives one exchange.
type Client struct {
	state State

	clientID  string
	virtualIP string
	psk       []byte

	serverVerifyingKey []byte

	ecdhKeys *ecdh.Keypair
	kemKeys  *kem.Keypair

	sessionKey [SessionKeySize]byte
}

// NewClient constructs a client handshake for the given identity, overlay
// address, pre-shared key, and pinned server Ed25519 verifying key.
func NewClient(clientID, virtualIP string, psk, serverVerifyingKey []byte) *Client {
	return &Client{
		state:               StateInit,
		clientID:            clientID,
		virtualIP:           virtualIP,
		psk:                 psk,
		serverVerifyingKey:  serverVerifyingKey,
	}
}

// State reports the handshake's current state.
func (c *Client) State() State { return c.state }

// SessionKey returns the derived session key. Valid only once State() ==
// StateEstablished.
func (c *Client) SessionKey() [SessionKeySize]byte { return c.sessionKey }

// BuildHello generates the client's ephemeral ECDH and KEM keypairs and
// encodes the resulting ClientHello. Must be called exactly once, from
// StateInit.
func (c *Client) BuildHello() ([]byte, error) {
	if c.state != StateInit {
		return nil, ErrWrongState
	}

	ecdhKeys, err := ecdh.Generate()
	if err != nil {
		c.state = StateFailed
		return nil, fmt.Errorf("handshake: generate ecdh keys: %w", err)
	}
	kemKeys, err := kem.Generate()
	if err != nil {
		c.state = StateFailed
		return nil, fmt.Errorf("handshake: generate kem keys: %w", err)
	}

	c.ecdhKeys = ecdhKeys
	c.kemKeys = kemKeys

	wire, err := EncodeClientHello(&ClientHello{
		ClientECDHPub: ecdhKeys.PublicKey,
		ClientKEMPub:  kemKeys.PublicKey,
		ClientID:      c.clientID,
		VirtualIP:     c.virtualIP,
	})
	if err != nil {
		c.state = StateFailed
		return nil, err
	}

	c.state = StateSentHello
	return wire, nil
}

// HandleServerHello verifies and decapsulates a received ServerHello and
// derives the session key. Must be called from StateSentHello.
func (c *Client) HandleServerHello(wire []byte) error {
	if c.state != StateSentHello {
		return ErrWrongState
	}

	sh, err := DecodeServerHello(wire)
	if err != nil {
		c.state = StateFailed
		return err
	}

	if !signature.Verify(c.serverVerifyingKey, sh.SignedPayload(), sh.Signature) {
		c.state = StateFailed
		return ErrBadSignature
	}

	kemShared, err := c.kemKeys.Decapsulate(sh.KEMCiphertext)
	if err != nil {
		c.state = StateFailed
		return fmt.Errorf("handshake: decapsulate: %w", err)
	}
	ecdhShared, err := ecdh.SharedSecret(c.ecdhKeys.PrivateKey, sh.ServerECDHPub)
	if err != nil {
		c.state = StateFailed
		return fmt.Errorf("handshake: ecdh exchange: %w", err)
	}

	sessionKey, err := DeriveSessionKey(ecdhShared, kemShared, c.psk)
	if err != nil {
		c.state = StateFailed
		return err
	}

	c.kemKeys.Zero()
	c.sessionKey = sessionKey
	c.state = StateEstablished
	return nil
}

// Run drives a full handshake attempt over conn against serverAddr: send
// ClientHello, wait up to Timeout for a ServerHello, verify, and derive the
// session key. It returns the established session key or an error, leaving
// conn's read deadline cleared on both paths.
func Run(conn net.PacketConn, serverAddr net.Addr, c *Client) ([SessionKeySize]byte, error) {
	defer conn.SetReadDeadline(time.Time{})

	hello, err := c.BuildHello()
	if err != nil {
		return [SessionKeySize]byte{}, err
	}
	defer c.kemKeys.Zero()
	if _, err := conn.WriteTo(hello, serverAddr); err != nil {
		c.state = StateFailed
		return [SessionKeySize]byte{}, fmt.Errorf("handshake: send client hello: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(Timeout)); err != nil {
		return [SessionKeySize]byte{}, fmt.Errorf("handshake: set read deadline: %w", err)
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			c.state = StateFailed
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				return [SessionKeySize]byte{}, ErrTimeout
			}
			return [SessionKeySize]byte{}, fmt.Errorf("handshake: read server hello: %w", err)
		}
		if from.String() != serverAddr.String() {
			continue
		}
		if err := c.HandleServerHello(buf[:n]); err != nil {
			return [SessionKeySize]byte{}, err
		}
		return c.sessionKey, nil
	}
}
