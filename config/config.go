// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bot process configuration.
type Config struct {
	// StateDir holds the signing keypair and other durable state.
	StateDir string `yaml:"state_dir"`

	// SealSecret, when set, encrypts the signing key at rest. Empty
	// leaves the key file unsealed with 0600 permissions.
	SealSecret string `yaml:"seal_secret"`

	// Adapter selects the chat platform ("slack", "null", "test").
	// Unknown selectors are a fatal startup error.
	Adapter string `yaml:"adapter"`

	// AdapterSettings carries per-platform connection credentials
	// (tokens, endpoints), passed verbatim to the platform factory.
	AdapterSettings map[string]string `yaml:"adapter_settings"`

	// CommandPrefix marks spoken commands (default "!").
	CommandPrefix string `yaml:"command_prefix"`

	// SpokenCommands enables prefix-triggered commands in shared
	// rooms. Mention and direct commands always work.
	SpokenCommands bool `yaml:"spoken_commands"`

	// Relay configures the relay pool.
	Relay RelayConfig `yaml:"relay"`

	// Bootstrap seeds the authorization graph on startup so the
	// first operator can run administrative commands.
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// BootstrapConfig names the initial administrator. When AdminUsername
// is set, startup ensures the user exists, belongs to the "admins"
// group, and that the group grants group management.
type BootstrapConfig struct {
	// AdminUsername is the canonical username of the first
	// administrator. Empty disables bootstrapping.
	AdminUsername string `yaml:"admin_username"`

	// AdminHandle is the administrator's handle on the configured
	// adapter, used to resolve their chat messages.
	AdminHandle string `yaml:"admin_handle"`
}

// RelayConfig configures relay supervision and the worker gateway.
type RelayConfig struct {
	// DispatchTimeout bounds each command dispatch (default 5s).
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// EvictAfter is the consecutive-miss eviction threshold
	// (default 3).
	EvictAfter int `yaml:"evict_after"`

	// ListenAddress is the websocket endpoint for external relay
	// workers. Empty disables the gateway; the embedded relay still
	// serves built-in commands.
	ListenAddress string `yaml:"listen_address"`

	// WorkerToken is the shared secret external workers authenticate
	// with. Required when ListenAddress is set.
	WorkerToken string `yaml:"worker_token"`
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Default returns the configuration used when no file is given: the
// null adapter and an embedded-only relay pool.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = "/var/lib/marshal"
	}
	if c.Adapter == "" {
		c.Adapter = "null"
	}
	if c.CommandPrefix == "" {
		c.CommandPrefix = "!"
	}
}

// Validate checks constraints that should stop the process at
// startup.
func (c *Config) Validate() error {
	if c.Relay.DispatchTimeout < 0 {
		return fmt.Errorf("relay.dispatch_timeout must not be negative")
	}
	if c.Relay.EvictAfter < 0 {
		return fmt.Errorf("relay.evict_after must not be negative")
	}
	if c.Relay.ListenAddress != "" && c.Relay.WorkerToken == "" {
		return fmt.Errorf("relay.worker_token is required when relay.listen_address is set")
	}
	return nil
}
