// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus implements the topic-addressed publish/subscribe
// transport connecting Marshal's components: adapter gateways, the
// command router, the relay supervisor, and (via the relay gateway)
// external relay workers.
//
// Topics are "/"-segmented, case-sensitive strings; subscription
// patterns may use "+" to match exactly one segment. Delivery is
// at-most-once per subscriber, FIFO per (publisher, topic) pair, and
// unordered across topics. Publish never blocks: subscribers that
// fall behind lose messages rather than stalling the publisher.
//
// Publishing with the [Signed] option wraps the payload in an
// Ed25519-signed envelope through the broker's credential manager.
// A publish against a closed broker fails with [ErrTransportClosed]
// rather than being silently dropped — the owning component treats
// that as fatal and relies on its supervisor to restart it.
package bus
