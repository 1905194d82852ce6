package signature

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	msg := []byte("server_ecdh_pub || kem_ciphertext")
	sig, err := Sign(kp.PrivateKey, msg)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("signature length = %d, want %d", len(sig), SignatureSize)
	}

	if !Verify(kp.PublicKey, msg, sig) {
		t.Error("Verify() rejected a valid signature")
	}
}

func TestVerifyFailsOnWrongKey(t *testing.T) {
	kp1, _ := Generate()
	kp2, _ := Generate()

	msg := []byte("message")
	sig, err := Sign(kp1.PrivateKey, msg)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	if Verify(kp2.PublicKey, msg, sig) {
		t.Error("Verify() accepted a signature under the wrong key")
	}
}

func TestVerifyFailsOnTamperedMessage(t *testing.T) {
	kp, _ := Generate()
	sig, err := Sign(kp.PrivateKey, []byte("original"))
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}

	if Verify(kp.PublicKey, []byte("tampered"), sig) {
		t.Error("Verify() accepted a signature over a different message")
	}
}

func TestVerifyRejectsMalformedSizes(t *testing.T) {
	kp, _ := Generate()
	sig, _ := Sign(kp.PrivateKey, []byte("x"))

	if Verify(make([]byte, 10), []byte("x"), sig) {
		t.Error("Verify() accepted a short public key")
	}
	if Verify(kp.PublicKey, []byte("x"), make([]byte, 10)) {
		t.Error("Verify() accepted a short signature")
	}
}

func TestSignRejectsWrongSizedPrivateKey(t *testing.T) {
	if _, err := Sign(make([]byte, 10), []byte("x")); err == nil {
		t.Error("Sign() accepted a malformed private key")
	}
}
