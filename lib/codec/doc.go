// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Marshal's standard CBOR encoding.
//
// Every bus payload, envelope, and relay wire frame is CBOR. The
// encoder uses Core Deterministic Encoding so that a payload encodes
// to the same bytes on every process, which is what makes Ed25519
// envelope signatures stable across re-encoding. The decoder accepts
// standard CBOR and ignores unknown fields, so bot and relay binaries
// of adjacent versions interoperate.
//
// [RawMessage] carries a nested payload without decoding it; the
// credential manager verifies signatures over the raw bytes and hands
// them to the subscriber for typed decoding.
package codec
