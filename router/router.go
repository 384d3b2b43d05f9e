// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marshal-foundation/marshal/auth"
	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
	"github.com/marshal-foundation/marshal/relay"
	"github.com/marshal-foundation/marshal/render"
)

// Command is a routable command's static declaration: the permission
// it requires and the template that renders its output.
type Command struct {
	// Permission gates the command. Empty means the command is open
	// to any resolved sender; otherwise authorization fails closed.
	Permission auth.Permission

	// Template renders the relay's structured output into chat text.
	// Empty selects [render.DefaultTemplate].
	Template string
}

// Dispatcher forwards an authorized work item to a relay and blocks
// for the reply. Satisfied by [relay.Supervisor].
type Dispatcher interface {
	Dispatch(ctx context.Context, item schema.WorkItem) (schema.RelayReply, error)
}

// Router is the orchestration point between adapters, authorization,
// and relays. It consumes invocations from the command topic,
// authorizes each against the command table, dispatches allowed ones,
// and publishes the rendered result to the invocation's reply topic.
// The router holds no per-invocation state; every request is handled
// independently.
type Router struct {
	broker     *bus.Broker
	verifier   *credential.Manager
	resolver   *auth.Resolver
	dispatcher Dispatcher
	renderer   *render.Renderer
	logger     *slog.Logger
	commands   map[string]Command
}

// New creates a router over the given command table. The table is
// read-only after construction.
func New(broker *bus.Broker, verifier *credential.Manager, resolver *auth.Resolver, dispatcher Dispatcher, renderer *render.Renderer, logger *slog.Logger, commands map[string]Command) *Router {
	return &Router{
		broker:     broker,
		verifier:   verifier,
		resolver:   resolver,
		dispatcher: dispatcher,
		renderer:   renderer,
		logger:     logger,
		commands:   commands,
	}
}

// Run consumes the command topic until ctx is cancelled. A closed bus
// is returned to the caller for its supervisor to handle.
func (r *Router) Run(ctx context.Context) error {
	commands, err := r.broker.Subscribe(schema.TopicCommands)
	if err != nil {
		return fmt.Errorf("subscribing to command topic: %w", err)
	}
	defer commands.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-commands.C:
			if !ok {
				return bus.ErrTransportClosed
			}
			// Each invocation gets its own goroutine: handling is
			// stateless per request, and a dispatch waiting out its
			// timeout must not stall the commands behind it.
			go r.handle(ctx, message)
		}
	}
}

// handle processes one invocation end to end.
func (r *Router) handle(ctx context.Context, message bus.Message) {
	payload, valid := r.verifier.Verify(message.Envelope)
	if !valid {
		r.logger.Warn("discarding unverifiable invocation", "topic", message.Topic)
		return
	}
	var invocation schema.Invocation
	if err := codec.Unmarshal(payload, &invocation); err != nil {
		r.logger.Warn("discarding malformed invocation", "error", err)
		return
	}

	fields := strings.Fields(invocation.Text)
	if len(fields) == 0 {
		r.logger.Debug("ignoring empty invocation",
			"adapter", invocation.Adapter, "room", invocation.Room.ID)
		return
	}
	name, args := fields[0], fields[1:]

	command, known := r.commands[name]
	if !known {
		r.respond(invocation, fmt.Sprintf("ERROR! Command `%s` not found.", name))
		return
	}

	if err := r.authorize(invocation.Sender.Username, command.Permission); err != nil {
		if auth.IsDeny(err) {
			r.respond(invocation, fmt.Sprintf(
				"ERROR! Sorry, you aren't allowed to execute `%s`. You will need the `%s` permission to run this command.",
				name, command.Permission))
			return
		}
		r.logger.Error("authorization check failed",
			"command", name, "user", invocation.Sender.Username, "error", err)
		r.respond(invocation, "ERROR! Unable to verify your permissions. Please try again.")
		return
	}

	reply, err := r.dispatcher.Dispatch(ctx, schema.WorkItem{
		Command:    name,
		Args:       args,
		Invocation: invocation,
	})
	if err != nil {
		r.respond(invocation, dispatchErrorText(name, err))
		return
	}
	if !reply.Success {
		r.respond(invocation, "ERROR! "+reply.Error)
		return
	}

	templateText := command.Template
	if templateText == "" {
		templateText = render.DefaultTemplate
	}
	text, err := r.renderer.Render(templateText, reply.Output)
	if err != nil {
		r.logger.Error("rendering command output failed", "command", name, "error", err)
		r.respond(invocation, fmt.Sprintf("ERROR! Command `%s` produced output that could not be rendered.", name))
		return
	}
	r.respond(invocation, text)
}

// authorize gates an invocation on the command's declared
// permission. Unrestricted commands skip the resolver entirely.
func (r *Router) authorize(username string, required auth.Permission) error {
	if required == "" {
		return nil
	}
	return r.resolver.Authorize(username, required)
}

// dispatchErrorText converts a dispatch failure into the chat-facing
// error line. Timeouts and relay exhaustion are expected operational
// conditions, never crashes.
func dispatchErrorText(command string, err error) string {
	switch {
	case errors.Is(err, relay.ErrDispatchTimeout):
		return fmt.Sprintf("ERROR! Command `%s` timed out. Please try again.", command)
	case errors.Is(err, relay.ErrNoHealthyRelays):
		return fmt.Sprintf("ERROR! No relay is currently available to execute `%s`.", command)
	default:
		return fmt.Sprintf("ERROR! Command `%s` failed to execute.", command)
	}
}

// respond publishes the rendered response, signed, to the
// invocation's reply topic.
func (r *Router) respond(invocation schema.Invocation, text string) {
	message := schema.SendMessage{Response: text, Room: invocation.Room}
	if err := r.broker.Publish(invocation.Reply, message, bus.Signed()); err != nil {
		r.logger.Error("publishing response failed",
			"topic", invocation.Reply, "room", invocation.Room.ID, "error", err)
	}
}
