// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"

	"github.com/marshal-foundation/marshal/lib/schema"
)

func init() {
	Register("null", func(map[string]string) (Platform, error) {
		return NewNull(), nil
	})
}

// Null is a platform that never produces events and discards sends.
// It keeps the bot bootable without any chat credentials.
type Null struct {
	events chan Event
}

// NewNull creates a null platform.
func NewNull() *Null {
	return &Null{events: make(chan Event)}
}

// Name returns "null".
func (n *Null) Name() string { return "null" }

// Connect returns an event stream that stays silent until ctx ends.
func (n *Null) Connect(ctx context.Context) (<-chan Event, Identity, error) {
	go func() {
		<-ctx.Done()
		close(n.events)
	}()
	return n.events, Identity{UserID: "null-bot", Mention: "@marshal"}, nil
}

// SendMessage discards the message.
func (n *Null) SendMessage(context.Context, schema.Room, string) error { return nil }

// Heartbeat does nothing.
func (n *Null) Heartbeat(context.Context) error { return nil }
