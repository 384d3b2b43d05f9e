// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// sealedVersion is the version byte prepended to every sealed blob.
// Included as additional authenticated data in the AEAD call, so
// tampering with it causes authentication failure.
const sealedVersion byte = 0x01

// sealedOverhead is the byte overhead per sealed blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoSealKey is the HKDF-SHA256 info string for deriving the
// sealing key from the configured secret. A protocol constant;
// changing it invalidates every sealed key on disk.
var hkdfInfoSealKey = []byte("marshal.credential.seal.v1")

// ErrSealCorrupt reports a sealed blob that is truncated, carries an
// unknown version, or fails authentication (wrong secret or tampered
// ciphertext — the AEAD cannot distinguish the two).
var ErrSealCorrupt = errors.New("credential: sealed key corrupt or wrong secret")

// Seal encrypts plaintext under a key derived from secret with
// XChaCha20-Poly1305. The output is version byte, random nonce, then
// ciphertext.
func Seal(plaintext []byte, secret string) ([]byte, error) {
	aead, err := newSealAEAD(secret)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 1+chacha20poly1305.NonceSizeX, len(plaintext)+sealedOverhead)
	sealed[0] = sealedVersion

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating seal nonce: %w", err)
	}

	return aead.Seal(sealed, nonce, plaintext, sealed[:1]), nil
}

// Unseal reverses Seal. Returns ErrSealCorrupt for any malformed or
// unauthentic input.
func Unseal(sealed []byte, secret string) ([]byte, error) {
	if len(sealed) < sealedOverhead {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrSealCorrupt, len(sealed), sealedOverhead)
	}
	if sealed[0] != sealedVersion {
		return nil, fmt.Errorf("%w: unknown version %#x", ErrSealCorrupt, sealed[0])
	}

	aead, err := newSealAEAD(secret)
	if err != nil {
		return nil, err
	}

	nonce := sealed[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[1+chacha20poly1305.NonceSizeX:]

	plaintext, err := aead.Open(nil, nonce, ciphertext, sealed[:1])
	if err != nil {
		return nil, ErrSealCorrupt
	}
	return plaintext, nil
}

// newSealAEAD derives the 32-byte sealing key from secret via
// HKDF-SHA256 and constructs the XChaCha20-Poly1305 AEAD.
func newSealAEAD(secret string) (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	reader := hkdf.New(sha256.New, []byte(secret), nil, hkdfInfoSealKey)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving seal key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
