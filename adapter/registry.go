// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a platform connection from its configuration
// settings (tokens, endpoints).
type Factory func(settings map[string]string) (Platform, error)

var (
	registryMu sync.Mutex
	registry   = make(map[string]Factory)
)

// Register installs a platform factory under its selector. Panics on
// duplicates; registration happens once at init or startup.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("adapter: duplicate platform registration for %q", name))
	}
	registry[name] = factory
}

// NewPlatform builds the platform selected by name. An unknown
// selector is an error the caller treats as fatal at startup.
func NewPlatform(name string, settings map[string]string) (Platform, error) {
	registryMu.Lock()
	factory, known := registry[name]
	registryMu.Unlock()

	if !known {
		return nil, fmt.Errorf("unknown adapter %q (available: %v)", name, Available())
	}
	return factory(settings)
}

// Available lists the registered platform selectors, sorted.
func Available() []string {
	registryMu.Lock()
	defer registryMu.Unlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
