// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import "strings"

// Classification is the outcome of inspecting one inbound chat event.
type Classification int

const (
	// Ignored events produce no invocation.
	Ignored Classification = iota

	// Direct events come from a 1:1 channel; the whole text is the
	// command.
	Direct

	// Mention events start with the bot's canonical mention form.
	Mention

	// Prefix events start with the configured command prefix while
	// spoken-command mode is enabled.
	Prefix
)

// String returns the classification name.
func (c Classification) String() string {
	switch c {
	case Ignored:
		return "ignored"
	case Direct:
		return "direct"
	case Mention:
		return "mention"
	case Prefix:
		return "prefix"
	default:
		return "unknown"
	}
}

// classify decides whether an event is a command and extracts the
// command text. Order matters: the bot's own messages are ignored
// before anything else, and direct channels treat every message as a
// command.
func classify(event Event, identity Identity, prefix string, spoken bool) (Classification, string) {
	if event.SenderID == identity.UserID {
		return Ignored, ""
	}
	if event.Room.IsDirect {
		return Direct, strings.TrimSpace(event.Text)
	}
	if identity.Mention != "" && strings.HasPrefix(event.Text, identity.Mention) {
		return Mention, stripMention(event.Text, identity.Mention)
	}
	if spoken && prefix != "" && strings.HasPrefix(event.Text, prefix) {
		return Prefix, strings.TrimSpace(strings.TrimPrefix(event.Text, prefix))
	}
	return Ignored, ""
}

// stripMention removes the mention form, then at most one ":" and the
// whitespace around it ("@bot: group --list" and "@bot group --list"
// both yield "group --list").
func stripMention(text, mention string) string {
	rest := strings.TrimPrefix(text, mention)
	rest = strings.TrimLeft(rest, " \t")
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}
