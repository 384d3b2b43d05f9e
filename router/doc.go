// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package router consumes canonical invocations from the command
// topic, authorizes them against the static command table, dispatches
// allowed invocations to the relay pool, and publishes the rendered
// result back to the originating adapter.
package router
