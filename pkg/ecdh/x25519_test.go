package ecdh

import "testing"

func TestSharedSecretAgreement(t *testing.T) {
	alice, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	bob, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	s1, err := SharedSecret(alice.PrivateKey, bob.PublicKey)
	if err != nil {
		t.Fatalf("SharedSecret() failed: %v", err)
	}
	s2, err := SharedSecret(bob.PrivateKey, alice.PublicKey)
	if err != nil {
		t.Fatalf("SharedSecret() failed: %v", err)
	}

	if string(s1) != string(s2) {
		t.Error("both parties derived different shared secrets")
	}
	if len(s1) != 32 {
		t.Errorf("shared secret length = %d, want 32", len(s1))
	}
}

func TestSharedSecretRejectsWrongSizes(t *testing.T) {
	if _, err := SharedSecret(make([]byte, 10), make([]byte, 32)); err == nil {
		t.Error("SharedSecret() accepted a short private key")
	}
	if _, err := SharedSecret(make([]byte, 32), make([]byte, 10)); err == nil {
		t.Error("SharedSecret() accepted a short public key")
	}
}
