// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the bot's YAML configuration. One file, no
// discovery or hidden overrides; the adapter selector is validated
// against the registry at startup, not here.
package config
