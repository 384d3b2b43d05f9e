// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter connects chat platforms to the bus. A Gateway
// wraps one Platform connection: inbound events are classified
// (direct channel, mention, command prefix) and published as signed
// invocations; verified responses from the platform's send topic are
// relayed back to chat. Platforms register by selector; an unknown
// selector is a startup error.
package adapter
