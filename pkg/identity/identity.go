// Package identity persists the server's long-term Ed25519 signing
// identity to disk as raw key bytes, generating a fresh keypair on first
// run. Unlike the teacher's passphrase-encrypted keystore, the key files
// are bare bytes — there is no passphrase to manage for an unattended
// server process. The public key file holds the 32-byte Ed25519 public
// key; the private key file holds the 64-byte Ed25519 private key (seed
// followed by public key), not the 32-byte seed alone.
package identity

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pqtun/pqtun/pkg/signature"
)

// Filenames used under the configured keys directory.
const (
	PrivateKeyFile = "server_private.key"
	PublicKeyFile  = "server_public.key"
)

// privateKeyMode restricts the signing key to owner read/write; this is
// the sole secret an operator must protect to keep the fleet's identity
// unforgeable.
const privateKeyMode = 0600

// LoadOrGenerate reads the signing keypair from keysDir, generating and
// persisting a new one if absent. It never overwrites an existing key
// file.
func LoadOrGenerate(keysDir string) (*signature.Keypair, error) {
	privPath := filepath.Join(keysDir, PrivateKeyFile)
	pubPath := filepath.Join(keysDir, PublicKeyFile)

	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return Load(keysDir)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("identity: stat %s: %w", path, err)
		}
	}

	kp, err := signature.Generate()
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return nil, fmt.Errorf("identity: create keys directory: %w", err)
	}
	if err := os.WriteFile(privPath, kp.PrivateKey, privateKeyMode); err != nil {
		return nil, fmt.Errorf("identity: write %s: %w", privPath, err)
	}
	if err := os.WriteFile(pubPath, kp.PublicKey, 0644); err != nil {
		return nil, fmt.Errorf("identity: write %s: %w", pubPath, err)
	}
	return kp, nil
}

// Load reads an existing signing keypair from keysDir.
func Load(keysDir string) (*signature.Keypair, error) {
	privPath := filepath.Join(keysDir, PrivateKeyFile)
	pubPath := filepath.Join(keysDir, PublicKeyFile)

	priv, err := os.ReadFile(privPath)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", privPath, err)
	}
	pub, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", pubPath, err)
	}
	if len(priv) != signature.PrivateKeySize {
		return nil, fmt.Errorf("identity: %s has wrong size: %d bytes", privPath, len(priv))
	}
	if len(pub) != signature.PublicKeySize {
		return nil, fmt.Errorf("identity: %s has wrong size: %d bytes", pubPath, len(pub))
	}
	return &signature.Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

// LoadVerifyingKey reads just a peer's public verifying key, e.g. the
// client's pinned copy of the server's public key.
func LoadVerifyingKey(path string) ([]byte, error) {
	pub, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read %s: %w", path, err)
	}
	if len(pub) != signature.PublicKeySize {
		return nil, fmt.Errorf("identity: %s has wrong size: %d bytes", path, len(pub))
	}
	return pub, nil
}
