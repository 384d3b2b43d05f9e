// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Marshal-bot is the chatops bot process: it connects the configured
// chat adapter, authorizes commands against the group/permission
// graph, and executes them on the relay pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marshal-foundation/marshal/adapter"
	"github.com/marshal-foundation/marshal/auth"
	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/config"
	"github.com/marshal-foundation/marshal/groupcmd"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
	"github.com/marshal-foundation/marshal/relay"
	"github.com/marshal-foundation/marshal/relay/gateway"
	"github.com/marshal-foundation/marshal/router"
	"github.com/marshal-foundation/marshal/render"
	"github.com/marshal-foundation/marshal/supervise"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file (optional; defaults boot the null adapter)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	manager, generated, err := credential.LoadOrGenerate(cfg.StateDir, cfg.SealSecret)
	if err != nil {
		return fmt.Errorf("loading signing keypair: %w", err)
	}
	if generated {
		logger.Info("generated new signing keypair", "state_dir", cfg.StateDir)
	}

	platform, err := adapter.NewPlatform(cfg.Adapter, cfg.AdapterSettings)
	if err != nil {
		return fmt.Errorf("configuring adapter: %w", err)
	}

	repo := auth.NewMemoryRepository()
	if err := bootstrap(repo, cfg.Bootstrap, cfg.Adapter); err != nil {
		return fmt.Errorf("bootstrapping authorization graph: %w", err)
	}

	broker := bus.NewBroker(manager, logger)
	defer broker.Close()
	clk := clock.Real()

	supervisor := relay.NewSupervisor(broker, manager, clk, logger, relay.SupervisorConfig{
		DispatchTimeout: cfg.Relay.DispatchTimeout,
		EvictAfter:      cfg.Relay.EvictAfter,
	})

	embedded := relay.NewEmbedded("embedded", []string{"operable"}, broker, manager, clk, logger)
	embedded.Handle("operable:echo", relay.Echo)
	groups := groupcmd.New(repo)
	embedded.Handle(groupcmd.Name, func(_ context.Context, item schema.WorkItem) (map[string]any, error) {
		return map[string]any{"body": groups.Execute(item.Args)}, nil
	})

	// The site bundle is served by external workers connected through
	// the relay gateway.
	commands := map[string]router.Command{
		"operable:echo": {Permission: ""},
		groupcmd.Name:   {Permission: groupcmd.RequiredPermission},
		"site:echo":     {Permission: ""},
		"site:hostname": {Permission: ""},
	}
	route := router.New(broker, manager, auth.NewResolver(repo), supervisor, render.New(), logger, commands)

	chat := adapter.NewGateway(platform, broker, manager, repo, clk, logger, adapter.GatewayConfig{
		CommandPrefix:  cfg.CommandPrefix,
		SpokenCommands: cfg.SpokenCommands,
	})

	children := []supervise.Child{
		{Name: "relay-supervisor", Run: supervisor.Run},
		{Name: "embedded-relay", Run: embedded.Run},
		{Name: "command-router", Run: route.Run},
		{Name: "adapter-" + cfg.Adapter, Run: chat.Run},
	}
	if cfg.Relay.ListenAddress != "" {
		workers := gateway.New(broker, manager, clk, logger, gateway.Config{Token: cfg.Relay.WorkerToken})
		children = append(children, supervise.Child{
			Name: "relay-gateway",
			Run:  workerServer(cfg.Relay.ListenAddress, workers, logger),
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("marshal-bot starting",
		"adapter", cfg.Adapter,
		"spoken_commands", cfg.SpokenCommands,
		"relay_gateway", cfg.Relay.ListenAddress != "")
	supervise.New(clk, logger, children...).Run(ctx)
	logger.Info("marshal-bot stopped")
	return nil
}

// workerServer runs the relay worker websocket endpoint as a
// supervised child.
func workerServer(address string, handler http.Handler, logger *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		mux := http.NewServeMux()
		mux.Handle("/v1/relay/ws", handler)
		server := &http.Server{Addr: address, Handler: mux}

		errs := make(chan error, 1)
		go func() { errs <- server.ListenAndServe() }()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn("relay gateway shutdown did not drain cleanly", "error", err)
			}
			return ctx.Err()
		case err := <-errs:
			if errors.Is(err, http.ErrServerClosed) {
				return ctx.Err()
			}
			return fmt.Errorf("relay gateway listener: %w", err)
		}
	}
}

// bootstrap seeds the initial administrator so the permission graph
// is manageable from chat on first boot.
func bootstrap(repo *auth.MemoryRepository, cfg config.BootstrapConfig, platform string) error {
	if cfg.AdminUsername == "" {
		return nil
	}

	user := &auth.User{Username: cfg.AdminUsername}
	if cfg.AdminHandle != "" {
		user.ChatHandles = map[string]string{platform: cfg.AdminHandle}
	}
	if err := repo.CreateUser(user); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	if _, err := repo.CreateGroup("admins"); err != nil {
		return fmt.Errorf("creating admins group: %w", err)
	}
	if err := repo.GrantGroupPermission("admins", groupcmd.RequiredPermission); err != nil {
		return fmt.Errorf("granting group management: %w", err)
	}
	if err := repo.AddUserToGroup(cfg.AdminUsername, "admins"); err != nil {
		return fmt.Errorf("adding admin to admins: %w", err)
	}
	return nil
}
