// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Bus topic namespace. Topics are case-sensitive and "/"-segmented;
// subscriptions may use "+" to match exactly one segment.
const (
	// TopicCommands carries every canonical invocation published by
	// an adapter gateway. Payload: [Invocation], signed. Subscribed
	// by the command router.
	TopicCommands = "/bot/commands"

	// TopicRelayDiscovery carries relay lifecycle announcements.
	// Payload: [RelayAnnounce], signed. Subscribed by the relay
	// supervisor. Relays announce here on connect and disconnect;
	// the supervisor never holds a direct reference to a relay
	// process, so a relay can reconnect under a new connection
	// without losing its logical identity.
	TopicRelayDiscovery = "/bot/relays/discover"

	// TopicRelayReplies carries relay execution results back to the
	// supervisor. Payload: [RelayReply], signed.
	TopicRelayReplies = "/bot/relays/replies"
)

// AdapterTopic returns the wildcard pattern covering a platform's
// inbound control traffic (e.g. "/bot/adapters/slack/+"). The
// adapter gateway subscribes to it.
func AdapterTopic(platform string) string {
	return fmt.Sprintf("/bot/adapters/%s/+", platform)
}

// AdapterSendTopic returns the publish target for rendered responses
// destined for a platform (e.g. "/bot/adapters/slack/send_message").
// Payload: [SendMessage], signed.
func AdapterSendTopic(platform string) string {
	return fmt.Sprintf("/bot/adapters/%s/send_message", platform)
}

// RelayExecTopic returns the publish target for work items destined
// for a specific relay (e.g. "/bot/relays/a1b2/exec"). Payload:
// [WorkItem], signed. Each relay subscribes to its own exec topic.
func RelayExecTopic(relayID string) string {
	return fmt.Sprintf("/bot/relays/%s/exec", relayID)
}
