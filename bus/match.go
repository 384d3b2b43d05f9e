// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"fmt"
	"strings"
)

// Wildcard is the single-level topic wildcard. In a subscription
// pattern it matches exactly one topic segment; it is forbidden in
// publish topics.
const Wildcard = "+"

// MatchTopic reports whether a concrete topic matches a subscription
// pattern. Both are "/"-segmented and case-sensitive. A "+" pattern
// segment matches exactly one topic segment, so "/bot/adapters/+"
// matches "/bot/adapters/slack" but neither "/bot/adapters" nor
// "/bot/adapters/slack/send_message".
func MatchTopic(pattern, topic string) bool {
	patternSegments := strings.Split(pattern, "/")
	topicSegments := strings.Split(topic, "/")
	if len(patternSegments) != len(topicSegments) {
		return false
	}
	for i, segment := range patternSegments {
		if segment == Wildcard {
			continue
		}
		if segment != topicSegments[i] {
			return false
		}
	}
	return true
}

// validateTopic checks a publish topic: rooted at "/", no empty
// segments, no wildcards.
func validateTopic(topic string) error {
	if err := validatePattern(topic); err != nil {
		return err
	}
	if strings.Contains(topic, Wildcard) {
		return fmt.Errorf("topic %q: wildcard only allowed in subscription patterns", topic)
	}
	return nil
}

// validatePattern checks a subscription pattern: rooted at "/" with
// no empty segments. Wildcard segments are allowed.
func validatePattern(pattern string) error {
	if !strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("topic %q: must begin with /", pattern)
	}
	for _, segment := range strings.Split(pattern[1:], "/") {
		if segment == "" {
			return fmt.Errorf("topic %q: empty segment", pattern)
		}
	}
	return nil
}
