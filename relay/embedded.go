// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
)

// DefaultAnnounceInterval is how often a relay repeats its intro
// announcement. Registration rides on the bus with no delivery
// receipt, so the intro is a heartbeat, not a one-shot: a supervisor
// that subscribed late or restarted with an empty registry picks the
// relay back up on the next repeat.
const DefaultAnnounceInterval = 30 * time.Second

// ExecutorFunc executes one work item, returning the command's
// structured output. A returned error becomes the reply's
// human-readable Error field; it is surfaced to the chat room, so it
// must read like a message, not like a Go error chain.
type ExecutorFunc func(ctx context.Context, item schema.WorkItem) (map[string]any, error)

// Echo is the operable:echo builtin: it returns its arguments joined
// by spaces.
func Echo(_ context.Context, item schema.WorkItem) (map[string]any, error) {
	return map[string]any{"body": strings.Join(item.Args, " ")}, nil
}

// Embedded is the in-process relay hosting the embedded command
// bundle. It participates in supervision through the same bus control
// topics as external relays: it announces itself on discovery,
// receives work on its exec topic, and replies on the shared reply
// topic. The supervisor cannot tell it apart from a remote worker.
type Embedded struct {
	id       string
	bundles  []string
	broker   *bus.Broker
	verifier *credential.Manager
	clock    clock.Clock
	logger   *slog.Logger
	commands map[string]ExecutorFunc
}

// NewEmbedded creates the embedded relay. Register commands with
// Handle before calling Run.
func NewEmbedded(id string, bundles []string, broker *bus.Broker, verifier *credential.Manager, clk clock.Clock, logger *slog.Logger) *Embedded {
	return &Embedded{
		id:       id,
		bundles:  bundles,
		broker:   broker,
		verifier: verifier,
		clock:    clk,
		logger:   logger,
		commands: make(map[string]ExecutorFunc),
	}
}

// Handle registers an executor for a fully-qualified command name.
// Panics on duplicates; command tables are wired once at startup.
func (e *Embedded) Handle(command string, executor ExecutorFunc) {
	if _, exists := e.commands[command]; exists {
		panic(fmt.Sprintf("relay: duplicate executor for command %q", command))
	}
	e.commands[command] = executor
}

// Run announces the relay and serves work items until ctx is
// cancelled. The intro repeats on [DefaultAnnounceInterval] so a
// supervisor that started after the first intro, or restarted, still
// registers this relay. An offline announcement is published on the
// way out so the supervisor releases anything still assigned here.
func (e *Embedded) Run(ctx context.Context) error {
	exec, err := e.broker.Subscribe(schema.RelayExecTopic(e.id))
	if err != nil {
		return fmt.Errorf("subscribing to exec topic: %w", err)
	}
	defer exec.Cancel()

	if err := e.announce(); err != nil {
		return fmt.Errorf("announcing embedded relay: %w", err)
	}
	reannounce := e.clock.NewTicker(DefaultAnnounceInterval)
	defer reannounce.Stop()

	for {
		select {
		case <-ctx.Done():
			offline := schema.RelayAnnounce{Kind: schema.AnnounceOffline, RelayID: e.id}
			if err := e.broker.Publish(schema.TopicRelayDiscovery, offline, bus.Signed()); err != nil {
				e.logger.Warn("embedded relay offline announcement failed", "error", err)
			}
			return ctx.Err()
		case <-reannounce.C:
			if err := e.announce(); err != nil {
				e.logger.Warn("embedded relay re-announcement failed", "error", err)
			}
		case message, ok := <-exec.C:
			if !ok {
				return bus.ErrTransportClosed
			}
			e.serve(ctx, message)
		}
	}
}

// announce publishes a signed intro on the discovery topic.
func (e *Embedded) announce() error {
	intro := schema.RelayAnnounce{Kind: schema.AnnounceIntro, RelayID: e.id, Bundles: e.bundles}
	return e.broker.Publish(schema.TopicRelayDiscovery, intro, bus.Signed())
}

// serve executes one work item and publishes the reply.
func (e *Embedded) serve(ctx context.Context, message bus.Message) {
	payload, valid := e.verifier.Verify(message.Envelope)
	if !valid {
		e.logger.Warn("discarding unverifiable work item", "topic", message.Topic)
		return
	}
	var item schema.WorkItem
	if err := codec.Unmarshal(payload, &item); err != nil {
		e.logger.Warn("discarding malformed work item", "error", err)
		return
	}

	reply := schema.RelayReply{
		Correlation: item.Correlation,
		RelayID:     e.id,
	}
	if executor, known := e.commands[item.Command]; known {
		output, err := executor(ctx, item)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Success = true
			reply.Output = output
		}
	} else {
		reply.Error = fmt.Sprintf("Command `%s` is not available on this relay.", item.Command)
	}

	if err := e.broker.Publish(schema.TopicRelayReplies, reply, bus.Signed()); err != nil {
		e.logger.Error("publishing relay reply failed", "correlation", item.Correlation, "error", err)
	}
}
