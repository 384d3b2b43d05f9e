// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package relay

// Health is a registered relay's liveness state.
type Health int

const (
	// Healthy relays are eligible for dispatch.
	Healthy Health = iota

	// Unresponsive relays have missed at least one dispatch
	// timeout. They are skipped by relay selection until a reply
	// arrives or they re-announce.
	Unresponsive

	// Evicted relays missed too many consecutive timeouts. Their
	// in-flight work has been released for retry elsewhere; only a
	// fresh announcement readmits them.
	Evicted
)

// String returns the lowercase state name.
func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Unresponsive:
		return "unresponsive"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Info is a point-in-time snapshot of one registered relay, for
// logging and introspection.
type Info struct {
	ID       string
	Health   Health
	Misses   int
	InFlight int
	Bundles  []string
}
