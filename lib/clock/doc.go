// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for deterministic tests.
//
// [Real] returns a Clock backed by the time package for production
// use. [Fake] returns a clock whose time only moves when the test
// calls Advance, which fires pending After channels and tickers in
// deadline order. The relay supervisor's dispatch timeout and the
// adapter heartbeat loop both run on an injected Clock so their tests
// never sleep.
package clock
