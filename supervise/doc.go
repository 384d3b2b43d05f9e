// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Package supervise restarts failed long-running components
// one-for-one with exponential backoff. Bus transport failures are
// fatal to the owning component; this is the layer that turns those
// exits into restarts instead of process death.
package supervise
