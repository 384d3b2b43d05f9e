// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
)

const (
	// DefaultPingInterval is how often the gateway pings an idle
	// worker connection.
	DefaultPingInterval = 30 * time.Second

	// handshakeTimeout bounds how long a fresh connection may take to
	// present its hello frame.
	handshakeTimeout = 10 * time.Second

	// writeWait bounds each write to the worker connection.
	writeWait = 10 * time.Second

	// DefaultMaxFrameBytes bounds a single inbound worker frame. Even
	// an authenticated worker does not get to make the gateway buffer
	// arbitrarily large messages.
	DefaultMaxFrameBytes = 16 << 20
)

// Hello is the first frame a worker sends after connecting. The
// gateway authenticates the shared token before the relay joins the
// bus; everything the worker subsequently publishes is signed by the
// gateway on its behalf.
type Hello struct {
	RelayID string   `cbor:"relay_id"`
	Token   string   `cbor:"token"`
	Bundles []string `cbor:"bundles,omitempty"`
}

// Config carries the gateway's tunables.
type Config struct {
	// Token is the shared secret workers must present in their hello
	// frame.
	Token string

	// PingInterval is the keepalive ping cadence. The relay intro is
	// re-announced on the same cadence so a restarted supervisor
	// re-learns connected workers. Zero selects DefaultPingInterval.
	PingInterval time.Duration

	// MaxFrameBytes caps a single inbound worker frame. Zero selects
	// DefaultMaxFrameBytes.
	MaxFrameBytes int64
}

// Gateway terminates worker websocket connections and bridges them
// onto the bus. Per connection it announces the relay to the
// supervisor, forwards work items from the relay's exec topic down
// the socket, and publishes the worker's replies back to the reply
// topic, signed. Workers never hold signing keys; authentication
// happens here, at the process boundary.
type Gateway struct {
	broker *bus.Broker
	signer *credential.Manager
	clock  clock.Clock
	logger *slog.Logger
	config Config

	upgrader websocket.Upgrader
}

// New creates a gateway serving worker connections over the given
// broker.
func New(broker *bus.Broker, signer *credential.Manager, clk clock.Clock, logger *slog.Logger, config Config) *Gateway {
	if config.PingInterval <= 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = DefaultMaxFrameBytes
	}
	return &Gateway{
		broker: broker,
		signer: signer,
		clock:  clk,
		logger: logger,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
	}
}

// ServeHTTP upgrades the request and serves the worker connection
// until it drops.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(g.config.MaxFrameBytes)

	hello, err := g.handshake(conn)
	if err != nil {
		g.logger.Warn("worker handshake rejected", "remote", r.RemoteAddr, "error", err)
		message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "handshake rejected")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		return
	}
	g.logger.Info("worker connected", "relay", hello.RelayID, "bundles", hello.Bundles, "remote", r.RemoteAddr)

	if err := g.serve(conn, hello); err != nil {
		g.logger.Info("worker disconnected", "relay", hello.RelayID, "error", err)
	}
}

// handshake reads and authenticates the hello frame.
func (g *Gateway) handshake(conn *websocket.Conn) (Hello, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return Hello{}, fmt.Errorf("reading hello frame: %w", err)
	}
	body, err := DecodeFrame(frame)
	if err != nil {
		return Hello{}, fmt.Errorf("decoding hello frame: %w", err)
	}
	var hello Hello
	if err := codec.Unmarshal(body, &hello); err != nil {
		return Hello{}, fmt.Errorf("malformed hello frame: %w", err)
	}
	if hello.RelayID == "" {
		return Hello{}, fmt.Errorf("hello frame has no relay id")
	}
	if subtle.ConstantTimeCompare([]byte(hello.Token), []byte(g.config.Token)) != 1 {
		return Hello{}, fmt.Errorf("invalid worker token for relay %q", hello.RelayID)
	}
	return hello, nil
}

// serve bridges one authenticated worker connection to the bus.
func (g *Gateway) serve(conn *websocket.Conn, hello Hello) error {
	exec, err := g.broker.Subscribe(schema.RelayExecTopic(hello.RelayID))
	if err != nil {
		return fmt.Errorf("subscribing to exec topic: %w", err)
	}
	defer exec.Cancel()

	if err := g.announce(hello); err != nil {
		return fmt.Errorf("announcing relay: %w", err)
	}
	defer func() {
		offline := schema.RelayAnnounce{Kind: schema.AnnounceOffline, RelayID: hello.RelayID}
		if err := g.broker.Publish(schema.TopicRelayDiscovery, offline, bus.Signed()); err != nil {
			g.logger.Warn("relay offline announcement failed", "relay", hello.RelayID, "error", err)
		}
	}()

	// The writer goroutine owns all writes on the connection: work
	// item frames and keepalive pings.
	done := make(chan struct{})
	defer close(done)
	go g.writeLoop(conn, hello, exec, done)

	pongWait := 2 * g.config.PingInterval
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("reading from worker: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		g.forwardReply(hello.RelayID, frame)
	}
}

// forwardReply decodes a worker reply frame and publishes it, signed,
// on the reply topic. A worker may only speak for its own relay
// identity.
func (g *Gateway) forwardReply(relayID string, frame []byte) {
	body, err := DecodeFrame(frame)
	if err != nil {
		g.logger.Warn("discarding undecodable worker frame", "relay", relayID, "error", err)
		return
	}
	var reply schema.RelayReply
	if err := codec.Unmarshal(body, &reply); err != nil {
		g.logger.Warn("discarding malformed worker reply", "relay", relayID, "error", err)
		return
	}
	if reply.RelayID != relayID {
		g.logger.Warn("discarding reply claiming another relay identity",
			"relay", relayID, "claimed", reply.RelayID)
		return
	}
	if err := g.broker.Publish(schema.TopicRelayReplies, reply, bus.Signed()); err != nil {
		g.logger.Error("publishing worker reply failed",
			"relay", relayID, "correlation", reply.Correlation, "error", err)
	}
}

// announce publishes a signed intro for the connected worker.
func (g *Gateway) announce(hello Hello) error {
	intro := schema.RelayAnnounce{Kind: schema.AnnounceIntro, RelayID: hello.RelayID, Bundles: hello.Bundles}
	return g.broker.Publish(schema.TopicRelayDiscovery, intro, bus.Signed())
}

// writeLoop forwards verified work items to the worker and keeps the
// connection alive with pings. Each ping tick also repeats the intro
// announcement: a supervisor that restarted after the worker connected
// has an empty registry, and the connection surviving the restart
// means the worker itself never re-introduces. It exits when the
// subscription or the connection dies; closing the connection unblocks
// the read loop.
func (g *Gateway) writeLoop(conn *websocket.Conn, hello Hello, exec *bus.Subscription, done <-chan struct{}) {
	relayID := hello.RelayID
	ticker := g.clock.NewTicker(g.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				g.logger.Warn("worker ping failed", "relay", relayID, "error", err)
				conn.Close()
				return
			}
			if err := g.announce(hello); err != nil {
				g.logger.Warn("relay re-announcement failed", "relay", relayID, "error", err)
			}
		case message, ok := <-exec.C:
			if !ok {
				message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "bus closed")
				conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
				conn.Close()
				return
			}
			payload, valid := g.signer.Verify(message.Envelope)
			if !valid {
				g.logger.Warn("discarding unverifiable work item", "relay", relayID, "topic", message.Topic)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(payload)); err != nil {
				g.logger.Warn("forwarding work item failed", "relay", relayID, "error", err)
				conn.Close()
				return
			}
		}
	}
}
