// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"sync"

	"github.com/marshal-foundation/marshal/lib/schema"
)

func init() {
	Register("test", func(map[string]string) (Platform, error) {
		return NewChatHarness(), nil
	})
}

// Sent is one message the bot delivered to a room through the
// harness.
type Sent struct {
	Room schema.Room
	Text string
}

// ChatHarness is the "test" platform: an in-memory chat whose events
// are injected by the caller and whose outbound messages are
// observable. It backs integration tests and the interactive test
// adapter selector.
type ChatHarness struct {
	mu        sync.Mutex
	events    chan Event
	sent      chan Sent
	heartbeat int
	connected bool
}

// NewChatHarness creates a harness with buffered event and send
// queues.
func NewChatHarness() *ChatHarness {
	return &ChatHarness{
		events: make(chan Event, 64),
		sent:   make(chan Sent, 64),
	}
}

// Name returns "test".
func (c *ChatHarness) Name() string { return "test" }

// Connect hands out the injectable event stream. The bot's identity
// is fixed: user id "bot", mention "@marshal".
func (c *ChatHarness) Connect(ctx context.Context) (<-chan Event, Identity, error) {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return c.events, Identity{UserID: "bot", Mention: "@marshal"}, nil
}

// SendMessage records the outbound message for the test to observe.
func (c *ChatHarness) SendMessage(_ context.Context, room schema.Room, text string) error {
	c.sent <- Sent{Room: room, Text: text}
	return nil
}

// Heartbeat counts keepalives.
func (c *ChatHarness) Heartbeat(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.heartbeat++
	return nil
}

// Inject delivers an inbound chat event to the gateway.
func (c *ChatHarness) Inject(event Event) { c.events <- event }

// Disconnect closes the event stream, simulating connection loss.
func (c *ChatHarness) Disconnect() { close(c.events) }

// Sent returns the stream of messages the bot delivered.
func (c *ChatHarness) Sent() <-chan Sent { return c.sent }

// Heartbeats returns how many keepalives were sent.
func (c *ChatHarness) Heartbeats() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.heartbeat
}
