// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential manages the process-wide Ed25519 keypair that
// signs and verifies bus envelopes.
//
// [Manager] is immutable after construction: the keypair is
// established once at process start and never rotated within a run,
// so a single Manager is shared by every component without locking.
// Sign wraps a CBOR payload in an [Envelope]; Verify checks the
// signature and reports a boolean verdict instead of an error, since
// the mandated handling for an unverifiable message is always the
// same — log and discard, never act.
//
// [LoadOrGenerate] owns the keypair lifecycle in the state directory.
// When a seal secret is configured, the private key is encrypted at
// rest with XChaCha20-Poly1305 under an HKDF-derived key ([Seal],
// [Unseal]), so a copied state directory without the secret does not
// yield the signing key.
package credential
