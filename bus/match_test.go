// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import "testing"

func TestMatchTopic(t *testing.T) {
	cases := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"/bot/commands", "/bot/commands", true},
		{"/bot/commands", "/bot/Commands", false}, // case-sensitive
		{"/bot/adapters/+", "/bot/adapters/slack", true},
		{"/bot/adapters/+", "/bot/adapters", false},
		{"/bot/adapters/+", "/bot/adapters/slack/send_message", false},
		{"/bot/adapters/slack/+", "/bot/adapters/slack/send_message", true},
		{"/bot/adapters/slack/+", "/bot/adapters/hipchat/send_message", false},
		{"/bot/relays/+/exec", "/bot/relays/a1b2/exec", true},
		{"/bot/relays/+/exec", "/bot/relays/a1b2/replies", false},
		{"/+/+", "/bot/commands", true},
		{"/bot/commands", "/bot/commands/extra", false},
	}
	for _, tc := range cases {
		if got := MatchTopic(tc.pattern, tc.topic); got != tc.want {
			t.Errorf("MatchTopic(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
		}
	}
}

func TestValidateTopic(t *testing.T) {
	if err := validateTopic("/bot/commands"); err != nil {
		t.Errorf("valid topic rejected: %v", err)
	}
	for _, topic := range []string{"bot/commands", "/bot//commands", "/bot/commands/", "/bot/+/commands", ""} {
		if err := validateTopic(topic); err == nil {
			t.Errorf("validateTopic(%q) = nil, want error", topic)
		}
	}
	// Wildcards are fine in patterns.
	if err := validatePattern("/bot/adapters/+"); err != nil {
		t.Errorf("valid pattern rejected: %v", err)
	}
}
