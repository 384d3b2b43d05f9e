// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	privateKeyFile = "envelope-signing-key"
	publicKeyFile  = "envelope-signing-key.pub"
)

// ErrKeyCorrupt reports a key file whose contents do not form a valid
// Ed25519 key. Distinct from os.ErrNotExist so callers can tell "first
// boot" from "state directory damage".
var ErrKeyCorrupt = errors.New("credential: key file corrupt")

// LoadOrGenerate loads the envelope signing keypair from stateDir, or
// generates and persists a fresh one when no key exists yet. Returns
// the Manager and whether the keypair was newly generated.
//
// When sealSecret is non-empty the private key is sealed at rest (see
// [Seal]); the same secret must be supplied on every subsequent load.
// With an empty secret the key is stored raw with 0600 permissions,
// which is acceptable for development machines only.
func LoadOrGenerate(stateDir, sealSecret string) (*Manager, bool, error) {
	manager, err := Load(stateDir, sealSecret)
	if err == nil {
		return manager, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	if err := save(stateDir, public, private, sealSecret); err != nil {
		return nil, false, err
	}
	return NewManager(public, private), true, nil
}

// Load reads the keypair from stateDir. The returned error wraps
// os.ErrNotExist when no key has been generated yet.
func Load(stateDir, sealSecret string) (*Manager, error) {
	privateBytes, err := os.ReadFile(filepath.Join(stateDir, privateKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	if sealSecret != "" {
		privateBytes, err = Unseal(privateBytes, sealSecret)
		if err != nil {
			return nil, fmt.Errorf("unsealing private key: %w", err)
		}
	}
	if len(privateBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key has %d bytes, want %d",
			ErrKeyCorrupt, len(privateBytes), ed25519.PrivateKeySize)
	}

	publicBytes, err := os.ReadFile(filepath.Join(stateDir, publicKeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	if len(publicBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: public key has %d bytes, want %d",
			ErrKeyCorrupt, len(publicBytes), ed25519.PublicKeySize)
	}

	return NewManager(ed25519.PublicKey(publicBytes), ed25519.PrivateKey(privateBytes)), nil
}

// save writes the keypair into stateDir. The private key file has
// 0600 permissions; the public key file has 0644.
func save(stateDir string, public ed25519.PublicKey, private ed25519.PrivateKey, sealSecret string) error {
	privateBytes := []byte(private)
	if sealSecret != "" {
		sealed, err := Seal(privateBytes, sealSecret)
		if err != nil {
			return fmt.Errorf("sealing private key: %w", err)
		}
		privateBytes = sealed
	}

	if err := os.WriteFile(filepath.Join(stateDir, privateKeyFile), privateBytes, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(stateDir, publicKeyFile), public, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}
