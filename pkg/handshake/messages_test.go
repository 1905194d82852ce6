package handshake

import (
	"bytes"
	"testing"
)

func sampleClientHello() *ClientHello {
	return &ClientHello{
		ClientECDHPub: bytes.Repeat([]byte{0x11}, ecdhPubSize),
		ClientKEMPub:  bytes.Repeat([]byte{0x22}, kemPubSize),
		ClientID:      "client-a",
		VirtualIP:     "10.0.0.2",
	}
}

func sampleServerHello() *ServerHello {
	return &ServerHello{
		ServerECDHPub: bytes.Repeat([]byte{0x33}, ecdhPubSize),
		KEMCiphertext: bytes.Repeat([]byte{0x44}, kemCipherSize),
		Signature:     bytes.Repeat([]byte{0x55}, signatureSize),
	}
}

func TestClientHelloRoundTrip(t *testing.T) {
	want := sampleClientHello()
	wire, err := EncodeClientHello(want)
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	if Discriminant(wire[0]) != DiscriminantClientHello {
		t.Fatalf("discriminant = %d, want %d", wire[0], DiscriminantClientHello)
	}

	got, err := DecodeClientHello(wire)
	if err != nil {
		t.Fatalf("DecodeClientHello() failed: %v", err)
	}
	if !bytes.Equal(got.ClientECDHPub, want.ClientECDHPub) {
		t.Error("client_ecdh_pub mismatch")
	}
	if !bytes.Equal(got.ClientKEMPub, want.ClientKEMPub) {
		t.Error("client_kem_pub mismatch")
	}
	if got.ClientID != want.ClientID {
		t.Errorf("client_id = %q, want %q", got.ClientID, want.ClientID)
	}
	if got.VirtualIP != want.VirtualIP {
		t.Errorf("virtual_ip = %q, want %q", got.VirtualIP, want.VirtualIP)
	}
}

func TestClientHelloEmptyStrings(t *testing.T) {
	m := sampleClientHello()
	m.ClientID = ""
	m.VirtualIP = ""
	wire, err := EncodeClientHello(m)
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	got, err := DecodeClientHello(wire)
	if err != nil {
		t.Fatalf("DecodeClientHello() failed: %v", err)
	}
	if got.ClientID != "" || got.VirtualIP != "" {
		t.Error("expected empty client_id and virtual_ip to round-trip as empty")
	}
}

func TestServerHelloRoundTrip(t *testing.T) {
	want := sampleServerHello()
	wire, err := EncodeServerHello(want)
	if err != nil {
		t.Fatalf("EncodeServerHello() failed: %v", err)
	}
	if Discriminant(wire[0]) != DiscriminantServerHello {
		t.Fatalf("discriminant = %d, want %d", wire[0], DiscriminantServerHello)
	}

	got, err := DecodeServerHello(wire)
	if err != nil {
		t.Fatalf("DecodeServerHello() failed: %v", err)
	}
	if !bytes.Equal(got.ServerECDHPub, want.ServerECDHPub) {
		t.Error("server_ecdh_pub mismatch")
	}
	if !bytes.Equal(got.KEMCiphertext, want.KEMCiphertext) {
		t.Error("kem_ciphertext mismatch")
	}
	if !bytes.Equal(got.Signature, want.Signature) {
		t.Error("signature mismatch")
	}
}

func TestDecodeClientHelloRejectsWrongDiscriminant(t *testing.T) {
	wire, err := EncodeServerHello(sampleServerHello())
	if err != nil {
		t.Fatalf("EncodeServerHello() failed: %v", err)
	}
	if _, err := DecodeClientHello(wire); err == nil {
		t.Error("DecodeClientHello() accepted a ServerHello frame")
	}
}

func TestDecodeClientHelloRejectsTruncation(t *testing.T) {
	wire, err := EncodeClientHello(sampleClientHello())
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	for _, n := range []int{0, 1, ecdhPubSize, 1 + ecdhPubSize + kemPubSize, len(wire) - 1} {
		if _, err := DecodeClientHello(wire[:n]); err == nil {
			t.Errorf("DecodeClientHello() accepted truncated input of length %d", n)
		}
	}
}

func TestDecodeClientHelloRejectsOversizedLengthPrefix(t *testing.T) {
	wire, err := EncodeClientHello(sampleClientHello())
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	// Corrupt the client_id length prefix to claim more bytes than remain.
	offset := 1 + ecdhPubSize + kemPubSize
	wire[offset] = 0xff
	wire[offset+1] = 0xff
	if _, err := DecodeClientHello(wire); err == nil {
		t.Error("DecodeClientHello() accepted an over-claimed length prefix")
	}
}

func TestDecodeClientHelloRejectsTrailingGarbage(t *testing.T) {
	wire, err := EncodeClientHello(sampleClientHello())
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	wire = append(wire, 0x00)
	if _, err := DecodeClientHello(wire); err == nil {
		t.Error("DecodeClientHello() accepted trailing garbage bytes")
	}
}

func TestEncodeClientHelloRejectsWrongSizedKeys(t *testing.T) {
	m := sampleClientHello()
	m.ClientECDHPub = m.ClientECDHPub[:ecdhPubSize-1]
	if _, err := EncodeClientHello(m); err == nil {
		t.Error("EncodeClientHello() accepted a short ecdh key")
	}
}

func TestIsClientHello(t *testing.T) {
	clientWire, err := EncodeClientHello(sampleClientHello())
	if err != nil {
		t.Fatalf("EncodeClientHello() failed: %v", err)
	}
	if !IsClientHello(clientWire) {
		t.Error("IsClientHello() = false for a well-formed ClientHello")
	}

	serverWire, err := EncodeServerHello(sampleServerHello())
	if err != nil {
		t.Fatalf("EncodeServerHello() failed: %v", err)
	}
	if IsClientHello(serverWire) {
		t.Error("IsClientHello() = true for a ServerHello frame")
	}

	if IsClientHello([]byte{0x00, 0x01, 0x02}) {
		t.Error("IsClientHello() = true for garbage data")
	}
}
