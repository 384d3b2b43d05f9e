// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay tracks command-execution workers and routes work to
// them. The Supervisor learns about relays from signed announcements
// on the discovery topic, dispatches work items round-robin across
// healthy relays, and demotes relays that stop answering: a missed
// deadline marks a relay unresponsive, and repeated misses evict it
// and reassign its in-flight work. Embedded is the in-process relay
// that hosts the built-in command bundle over the same topics, so the
// supervisor treats local and remote execution identically.
package relay
