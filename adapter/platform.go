// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"

	"github.com/marshal-foundation/marshal/lib/schema"
)

// Event is one inbound chat event as delivered by a platform
// connection, before classification.
type Event struct {
	// SenderID is the platform's identifier for the author.
	SenderID string

	// SenderHandle is the author's platform-local handle, used to
	// resolve the canonical user record.
	SenderHandle string

	// Room is where the event happened.
	Room schema.Room

	// Text is the raw message text.
	Text string
}

// Identity is the bot's own identity on a platform, learned at
// connect time.
type Identity struct {
	// UserID is the bot's platform identifier. Events authored by it
	// are ignored.
	UserID string

	// Mention is the canonical mention form the platform renders for
	// the bot (e.g. "@marshal"). Messages starting with it are
	// commands.
	Mention string
}

// Platform is a chat platform connection capability. One value serves
// one connection lifecycle; a gateway restart establishes fresh
// state.
type Platform interface {
	// Name returns the platform selector (e.g. "slack", "null").
	Name() string

	// Connect opens the connection and returns the inbound event
	// stream and the bot's identity. The stream closes when the
	// connection drops.
	Connect(ctx context.Context) (<-chan Event, Identity, error)

	// SendMessage delivers text to a room.
	SendMessage(ctx context.Context, room schema.Room, text string) error

	// Heartbeat sends a platform-level keepalive.
	Heartbeat(ctx context.Context) error
}
