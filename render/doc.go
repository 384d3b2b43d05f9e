// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package render converts structured command output into the chat
// text the adapter sends back to the room.
package render
