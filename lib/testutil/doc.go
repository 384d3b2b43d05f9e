// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel assertion helpers shared by the
// package tests. Every helper takes an explicit timeout so a broken
// component fails the test instead of hanging the run.
package testutil
