// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the bus wire vocabulary: the topic namespace
// and the CBOR payload types exchanged between adapter gateways, the
// command router, the relay supervisor, and relay workers.
//
// These types are protocol constants. Field tags and topic shapes are
// load-bearing across process boundaries — a relay worker built from
// an adjacent version must still interoperate, which is why payload
// structs only ever grow and decoders ignore unknown fields (see
// lib/codec).
package schema
