// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/marshal-foundation/marshal/lib/codec"
)

// Envelope is the bus wire value: a CBOR payload plus an optional
// Ed25519 signature over the payload bytes. Topics that require
// signing reject envelopes whose Signature is absent or invalid.
type Envelope struct {
	// Payload is the CBOR-encoded message body. Kept raw so
	// verification operates on the exact signed bytes; the
	// subscriber decodes it after the signature checks out.
	Payload codec.RawMessage `cbor:"payload"`

	// Signature is the 64-byte Ed25519 signature over Payload.
	// Empty for unsigned envelopes.
	Signature []byte `cbor:"signature,omitempty"`
}

// Manager signs and verifies bus envelopes with the process-wide
// Ed25519 keypair. The keypair is established once at startup and
// never rotated within a run, so a Manager is immutable after
// construction and safe to share across every component without
// locking.
type Manager struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewManager creates a Manager from an existing keypair. Use
// [LoadOrGenerate] to obtain the keypair from the state directory.
func NewManager(public ed25519.PublicKey, private ed25519.PrivateKey) *Manager {
	return &Manager{public: public, private: private}
}

// Generate creates a Manager with a fresh keypair. Intended for
// tests and ephemeral processes that do not persist their identity.
func Generate() (*Manager, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating Ed25519 keypair: %w", err)
	}
	return NewManager(public, private), nil
}

// Sign encodes payload to CBOR and wraps it in a signed Envelope.
func (m *Manager) Sign(payload any) (Envelope, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding envelope payload: %w", err)
	}
	return Envelope{
		Payload:   encoded,
		Signature: ed25519.Sign(m.private, encoded),
	}, nil
}

// Verify checks an envelope's signature and returns the payload bytes
// alongside the verdict. It never returns an error: a missing,
// malformed, or forged signature yields valid=false, and the caller
// must log and discard the message rather than act on it. Acting on
// the payload when valid is false is a protocol violation.
func (m *Manager) Verify(envelope Envelope) (payload codec.RawMessage, valid bool) {
	if len(envelope.Payload) == 0 {
		return nil, false
	}
	if len(envelope.Signature) != ed25519.SignatureSize {
		return nil, false
	}
	if !ed25519.Verify(m.public, envelope.Payload, envelope.Signature) {
		return nil, false
	}
	return envelope.Payload, true
}

// Public returns the verification key. Relay workers receive it out
// of band so they can verify work items without holding the signing
// key.
func (m *Manager) Public() ed25519.PublicKey {
	return m.public
}
