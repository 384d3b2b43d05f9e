// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

// Marshal-relay is an external command execution worker. It connects
// to the bot's relay gateway over websocket, announces the bundles it
// serves, and executes dispatched work items.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/schema"
	"github.com/marshal-foundation/marshal/relay/gateway"
)

const reconnectDelay = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		url     string
		token   string
		relayID string
	)
	flag.StringVar(&url, "url", "", "relay gateway websocket URL (required, e.g. ws://bot:9000/v1/relay/ws)")
	flag.StringVar(&token, "token", "", "shared worker token (required)")
	flag.StringVar(&relayID, "relay-id", "", "stable relay identity (default: hostname)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if url == "" {
		return fmt.Errorf("-url is required")
	}
	if token == "" {
		return fmt.Errorf("-token is required")
	}
	if relayID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("determining relay id: %w", err)
		}
		relayID = hostname
	}

	worker := &worker{
		url:     url,
		token:   token,
		relayID: relayID,
		logger:  logger,
		commands: map[string]executor{
			"site:echo":     echoCommand,
			"site:hostname": hostnameCommand,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("marshal-relay starting", "relay", relayID, "gateway", url)
	for {
		if err := worker.serve(ctx); err != nil {
			if ctx.Err() != nil {
				logger.Info("marshal-relay stopped")
				return nil
			}
			logger.Error("gateway connection lost, reconnecting",
				"error", err, "delay", reconnectDelay)
		}
		select {
		case <-ctx.Done():
			logger.Info("marshal-relay stopped")
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// executor runs one command on the worker.
type executor func(ctx context.Context, item schema.WorkItem) (map[string]any, error)

func echoCommand(_ context.Context, item schema.WorkItem) (map[string]any, error) {
	return map[string]any{"body": strings.Join(item.Args, " ")}, nil
}

func hostnameCommand(context.Context, schema.WorkItem) (map[string]any, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("Unable to determine this relay's hostname.")
	}
	return map[string]any{"body": hostname}, nil
}

type worker struct {
	url      string
	token    string
	relayID  string
	logger   *slog.Logger
	commands map[string]executor
}

// bundles derives the served bundle set from the command table.
func (w *worker) bundles() []string {
	seen := make(map[string]struct{})
	var bundles []string
	for name := range w.commands {
		bundle, _, found := strings.Cut(name, ":")
		if !found {
			continue
		}
		if _, dup := seen[bundle]; dup {
			continue
		}
		seen[bundle] = struct{}{}
		bundles = append(bundles, bundle)
	}
	return bundles
}

// serve runs one connection lifecycle: dial, hello, then execute work
// items until the connection drops or ctx ends.
func (w *worker) serve(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close()

	hello, err := codec.Marshal(gateway.Hello{
		RelayID: w.relayID,
		Token:   w.token,
		Bundles: w.bundles(),
	})
	if err != nil {
		return fmt.Errorf("encoding hello: %w", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, gateway.EncodeFrame(hello)); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	w.logger.Info("connected to gateway", "bundles", w.bundles())

	// Close the connection when ctx ends so the blocked read returns.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading from gateway: %w", err)
		}
		body, err := gateway.DecodeFrame(frame)
		if err != nil {
			w.logger.Warn("discarding undecodable frame", "error", err)
			continue
		}
		var item schema.WorkItem
		if err := codec.Unmarshal(body, &item); err != nil {
			w.logger.Warn("discarding malformed work item", "error", err)
			continue
		}
		if err := w.reply(conn, w.execute(ctx, item)); err != nil {
			return err
		}
	}
}

// execute runs one work item through the command table.
func (w *worker) execute(ctx context.Context, item schema.WorkItem) schema.RelayReply {
	reply := schema.RelayReply{
		Correlation: item.Correlation,
		RelayID:     w.relayID,
	}
	command, known := w.commands[item.Command]
	if !known {
		reply.Error = fmt.Sprintf("Command `%s` is not available on this relay.", item.Command)
		return reply
	}
	output, err := command(ctx, item)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Success = true
	reply.Output = output
	return reply
}

// reply frames and sends one execution result.
func (w *worker) reply(conn *websocket.Conn, reply schema.RelayReply) error {
	body, err := codec.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encoding reply: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.BinaryMessage, gateway.EncodeFrame(body)); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}
