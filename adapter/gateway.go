// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/marshal-foundation/marshal/auth"
	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
)

const (
	// DefaultCommandPrefix marks spoken commands when that mode is
	// enabled.
	DefaultCommandPrefix = "!"

	// DefaultHeartbeatInterval is the platform keepalive cadence.
	DefaultHeartbeatInterval = 30 * time.Second
)

// GatewayConfig carries a gateway's per-platform behavior toggles.
type GatewayConfig struct {
	// CommandPrefix marks spoken commands. Empty selects
	// DefaultCommandPrefix.
	CommandPrefix string

	// SpokenCommands enables the prefix classification. Mention and
	// direct commands work regardless.
	SpokenCommands bool

	// HeartbeatInterval overrides the keepalive cadence. Zero selects
	// DefaultHeartbeatInterval.
	HeartbeatInterval time.Duration
}

// Gateway runs one chat platform connection: it classifies inbound
// events into invocations, publishes them signed to the command
// topic, and relays verified responses from the platform's
// send_message topic back to chat.
type Gateway struct {
	platform Platform
	broker   *bus.Broker
	verifier *credential.Manager
	repo     auth.Repository
	clock    clock.Clock
	logger   *slog.Logger
	config   GatewayConfig
}

// NewGateway creates a gateway for one platform.
func NewGateway(platform Platform, broker *bus.Broker, verifier *credential.Manager, repo auth.Repository, clk clock.Clock, logger *slog.Logger, config GatewayConfig) *Gateway {
	if config.CommandPrefix == "" {
		config.CommandPrefix = DefaultCommandPrefix
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Gateway{
		platform: platform,
		broker:   broker,
		verifier: verifier,
		repo:     repo,
		clock:    clk,
		logger:   logger,
		config:   config,
	}
}

// Run serves the platform connection until ctx is cancelled or the
// connection drops. A dropped connection or closed bus is returned to
// the caller; the gateway's supervisor reconnects by restarting it.
func (g *Gateway) Run(ctx context.Context) error {
	events, identity, err := g.platform.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", g.platform.Name(), err)
	}

	// The wildcard covers send_message plus any adapter-specific
	// control segments published under this platform's namespace.
	inbound, err := g.broker.Subscribe(schema.AdapterTopic(g.platform.Name()))
	if err != nil {
		return fmt.Errorf("subscribing to adapter topics: %w", err)
	}
	defer inbound.Cancel()

	heartbeat := g.clock.NewTicker(g.config.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("%s connection closed", g.platform.Name())
			}
			g.handleEvent(event, identity)
		case message, ok := <-inbound.C:
			if !ok {
				return bus.ErrTransportClosed
			}
			switch message.Topic {
			case schema.AdapterSendTopic(g.platform.Name()):
				g.handleSend(ctx, message)
			default:
				g.logger.Debug("ignoring adapter control message",
					"platform", g.platform.Name(), "topic", message.Topic)
			}
		case <-heartbeat.C:
			if err := g.platform.Heartbeat(ctx); err != nil {
				// Not fatal: a dead connection surfaces as a closed
				// event stream, which is the restart trigger.
				g.logger.Warn("platform heartbeat failed", "platform", g.platform.Name(), "error", err)
			}
		}
	}
}

// handleEvent classifies one chat event and publishes an invocation
// for command-class events.
func (g *Gateway) handleEvent(event Event, identity Identity) {
	class, text := classify(event, identity, g.config.CommandPrefix, g.config.SpokenCommands)
	if class == Ignored || text == "" {
		return
	}

	sender := g.resolveSender(event)
	invocation := schema.Invocation{
		Sender:  sender,
		Room:    event.Room,
		Text:    text,
		Adapter: g.platform.Name(),
		Reply:   schema.AdapterSendTopic(g.platform.Name()),
	}
	if err := g.broker.Publish(schema.TopicCommands, invocation, bus.Signed()); err != nil {
		g.logger.Error("publishing invocation failed",
			"platform", g.platform.Name(), "room", event.Room.ID, "error", err)
		return
	}
	g.logger.Debug("invocation published",
		"platform", g.platform.Name(), "class", class.String(),
		"user", sender.Username, "room", event.Room.ID)
}

// resolveSender maps a platform handle to the canonical user record.
// An unknown handle keeps the platform handle as the username; the
// router's fail-closed authorization denies it downstream.
func (g *Gateway) resolveSender(event Event) schema.ChatUser {
	sender := schema.ChatUser{
		ID:       event.SenderID,
		Handle:   event.SenderHandle,
		Username: event.SenderHandle,
	}
	user, err := g.repo.UserByHandle(g.platform.Name(), event.SenderHandle)
	if err != nil {
		if !auth.IsNotFound(err, auth.KindUser) {
			g.logger.Error("resolving sender failed",
				"platform", g.platform.Name(), "handle", event.SenderHandle, "error", err)
		}
		return sender
	}
	sender.Username = user.Username
	return sender
}

// handleSend verifies a response envelope and forwards the text to
// the platform. Unverifiable envelopes are logged and dropped.
func (g *Gateway) handleSend(ctx context.Context, message bus.Message) {
	payload, valid := g.verifier.Verify(message.Envelope)
	if !valid {
		g.logger.Warn("discarding unverifiable response", "platform", g.platform.Name(), "topic", message.Topic)
		return
	}
	var send schema.SendMessage
	if err := codec.Unmarshal(payload, &send); err != nil {
		g.logger.Warn("discarding malformed response", "platform", g.platform.Name(), "error", err)
		return
	}
	if err := g.platform.SendMessage(ctx, send.Room, send.Response); err != nil {
		g.logger.Error("sending response to chat failed",
			"platform", g.platform.Name(), "room", send.Room.ID, "error", err)
	}
}
