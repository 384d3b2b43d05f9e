// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway bridges external relay workers onto the bus over
// websocket. A worker authenticates with the shared token in its
// hello frame; after that the gateway announces the relay, streams
// work items down the socket, and publishes the worker's replies
// back to the bus under the process signing key. Frames carry a
// one-byte compression tag; large bodies travel zstd-compressed.
package gateway
