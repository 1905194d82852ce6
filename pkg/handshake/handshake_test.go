package handshake

import (
	"testing"

	"github.com/pqtun/pqtun/pkg/signature"
)

func TestClientServerHandshakeEstablishesMatchingSessionKey(t *testing.T) {
	serverKeys, err := signature.Generate()
	if err != nil {
		t.Fatalf("signature.Generate() failed: %v", err)
	}
	psk := []byte("shared-pre-configured-secret-32!")

	client := NewClient("client-a", "10.0.0.2", psk, serverKeys.PublicKey)

	helloWire, err := client.BuildHello()
	if err != nil {
		t.Fatalf("BuildHello() failed: %v", err)
	}
	if client.State() != StateSentHello {
		t.Fatalf("client state = %v, want %v", client.State(), StateSentHello)
	}

	hello, err := DecodeClientHello(helloWire)
	if err != nil {
		t.Fatalf("server failed to decode ClientHello: %v", err)
	}

	established, err := Respond(hello, serverKeys.PrivateKey, psk)
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}
	if established.ClientID != "client-a" || established.VirtualIP != "10.0.0.2" {
		t.Fatalf("Established identity mismatch: %+v", established)
	}

	if err := client.HandleServerHello(established.Reply); err != nil {
		t.Fatalf("HandleServerHello() failed: %v", err)
	}
	if client.State() != StateEstablished {
		t.Fatalf("client state = %v, want %v", client.State(), StateEstablished)
	}

	if client.SessionKey() != established.SessionKey {
		t.Error("client and server derived different session keys")
	}
}

func TestHandleServerHelloRejectsForgedSignature(t *testing.T) {
	serverKeys, err := signature.Generate()
	if err != nil {
		t.Fatalf("signature.Generate() failed: %v", err)
	}
	impostorKeys, err := signature.Generate()
	if err != nil {
		t.Fatalf("signature.Generate() failed: %v", err)
	}
	psk := []byte("shared-pre-configured-secret-32!")

	client := NewClient("client-a", "10.0.0.2", psk, serverKeys.PublicKey)
	helloWire, err := client.BuildHello()
	if err != nil {
		t.Fatalf("BuildHello() failed: %v", err)
	}
	hello, err := DecodeClientHello(helloWire)
	if err != nil {
		t.Fatalf("DecodeClientHello() failed: %v", err)
	}

	// Impostor signs the ServerHello with the wrong private key.
	established, err := Respond(hello, impostorKeys.PrivateKey, psk)
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}

	if err := client.HandleServerHello(established.Reply); err != ErrBadSignature {
		t.Fatalf("HandleServerHello() error = %v, want %v", err, ErrBadSignature)
	}
	if client.State() != StateFailed {
		t.Fatalf("client state = %v, want %v", client.State(), StateFailed)
	}
}

func TestHandleServerHelloAcceptsPSKMismatchWithDivergentKeys(t *testing.T) {
	serverKeys, err := signature.Generate()
	if err != nil {
		t.Fatalf("signature.Generate() failed: %v", err)
	}

	client := NewClient("client-a", "10.0.0.2", []byte("client-side-psk-32-bytes-exact!"), serverKeys.PublicKey)
	helloWire, err := client.BuildHello()
	if err != nil {
		t.Fatalf("BuildHello() failed: %v", err)
	}
	hello, err := DecodeClientHello(helloWire)
	if err != nil {
		t.Fatalf("DecodeClientHello() failed: %v", err)
	}

	established, err := Respond(hello, serverKeys.PrivateKey, []byte("server-side-psk-differs-32-byte"))
	if err != nil {
		t.Fatalf("Respond() failed: %v", err)
	}

	if err := client.HandleServerHello(established.Reply); err != nil {
		t.Fatalf("HandleServerHello() failed: %v", err)
	}
	// Signature and KEM/ECDH agreement both succeed; only the derived
	// session keys silently diverge because the PSK differs, so the two
	// sides end up unable to decrypt each other's traffic. This is the
	// PSK-mismatch scenario: no explicit error, a live session key
	// mismatch instead.
	if client.SessionKey() == established.SessionKey {
		t.Error("expected session keys to diverge when PSKs differ")
	}
}

func TestBuildHelloRejectsReuse(t *testing.T) {
	serverKeys, err := signature.Generate()
	if err != nil {
		t.Fatalf("signature.Generate() failed: %v", err)
	}
	client := NewClient("client-a", "10.0.0.2", []byte("psk-32-bytes-exactly-for-test!!"), serverKeys.PublicKey)

	if _, err := client.BuildHello(); err != nil {
		t.Fatalf("BuildHello() failed: %v", err)
	}
	if _, err := client.BuildHello(); err != ErrWrongState {
		t.Fatalf("second BuildHello() error = %v, want %v", err, ErrWrongState)
	}
}
