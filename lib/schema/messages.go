// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Room identifies a chat room on a specific platform. ID is the
// platform's opaque identifier; Name is the human-readable form.
// Direct (1:1) channels set IsDirect, which classifies every message
// in them as a command.
type Room struct {
	ID       string `cbor:"id"`
	Name     string `cbor:"name,omitempty"`
	IsDirect bool   `cbor:"is_direct,omitempty"`
}

// ChatUser is the sender of a chat event, resolved by the adapter
// gateway to a canonical user record before publication. Username is
// the canonical identity the authorization resolver operates on;
// Handle is the platform-local display form.
type ChatUser struct {
	ID       string `cbor:"id"`
	Handle   string `cbor:"handle,omitempty"`
	Username string `cbor:"username"`
}

// Invocation is one canonical, authorization-pending command request.
// Created per chat event by an adapter gateway, published signed to
// [TopicCommands], and consumed exactly once by the command router.
// Never persisted.
type Invocation struct {
	// Sender is the resolved canonical user issuing the command.
	Sender ChatUser `cbor:"sender"`

	// Room is the originating chat room.
	Room Room `cbor:"room"`

	// Text is the command text with any mention or prefix already
	// stripped by the gateway's classifier.
	Text string `cbor:"text"`

	// Adapter is the originating platform name (e.g. "slack").
	Adapter string `cbor:"adapter"`

	// Reply is the bus topic the rendered response must be
	// published to — the originating adapter's send_message topic.
	Reply string `cbor:"reply"`
}

// SendMessage is the payload delivered to an adapter's send_message
// topic: the rendered response text and the room it belongs in.
type SendMessage struct {
	Response string `cbor:"response"`
	Room     Room   `cbor:"room"`
}

// Relay announcement kinds carried on [TopicRelayDiscovery].
const (
	// AnnounceIntro registers a relay with the supervisor.
	AnnounceIntro = "intro"

	// AnnounceOffline deregisters a relay. In-flight work the relay
	// held is released for retry on another relay.
	AnnounceOffline = "offline"
)

// RelayAnnounce is a relay lifecycle control message.
type RelayAnnounce struct {
	// Kind is [AnnounceIntro] or [AnnounceOffline].
	Kind string `cbor:"kind"`

	// RelayID is the relay's stable logical identity. A worker that
	// reconnects under a new connection reuses its RelayID and
	// resumes receiving work.
	RelayID string `cbor:"relay_id"`

	// Bundles names the command bundles the relay can execute.
	Bundles []string `cbor:"bundles,omitempty"`
}

// WorkItem is one dispatched invocation, published to the chosen
// relay's exec topic.
type WorkItem struct {
	// Correlation ties the eventual RelayReply back to the blocked
	// dispatch call. Fresh per dispatch; never reused.
	Correlation string `cbor:"correlation"`

	// Command is the fully-qualified command name
	// (e.g. "operable:group").
	Command string `cbor:"command"`

	// Args is the command argument vector after the command name.
	Args []string `cbor:"args,omitempty"`

	// Invocation is the originating request, carried for context
	// (sender identity, room) the executing command may need.
	Invocation Invocation `cbor:"invocation"`
}

// RelayReply is a relay's execution result, published to
// [TopicRelayReplies].
type RelayReply struct {
	// Correlation matches the WorkItem that produced this reply.
	Correlation string `cbor:"correlation"`

	// RelayID identifies the responding relay.
	RelayID string `cbor:"relay_id"`

	// Success reports whether the command executed without error.
	Success bool `cbor:"success"`

	// Output is the command's structured result on success. The
	// router renders it through the template capability.
	Output map[string]any `cbor:"output,omitempty"`

	// Error is the human-readable failure message when Success is
	// false. Surfaced to the chat room behind the standard
	// "ERROR! " prefix; never a stack trace.
	Error string `cbor:"error,omitempty"`
}
