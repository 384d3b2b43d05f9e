// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
	"github.com/marshal-foundation/marshal/lib/testutil"
)

type embeddedHarness struct {
	t       *testing.T
	broker  *bus.Broker
	signer  *credential.Manager
	clock   *clock.FakeClock
	relay   *Embedded
	replies <-chan schema.RelayReply
	cancel  context.CancelFunc
}

func newEmbeddedHarness(t *testing.T, bundles ...string) *embeddedHarness {
	t.Helper()

	manager, err := credential.Generate()
	if err != nil {
		t.Fatalf("credential.Generate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	broker := bus.NewBroker(manager, logger)
	t.Cleanup(broker.Close)

	fake := clock.Fake(time.Unix(1700000000, 0))
	h := &embeddedHarness{
		t:      t,
		broker: broker,
		signer: manager,
		clock:  fake,
		relay:  NewEmbedded("embedded", bundles, broker, manager, fake, logger),
	}
	h.replies = decodeTopic(h, schema.TopicRelayReplies, func(payload []byte) (schema.RelayReply, error) {
		var reply schema.RelayReply
		err := codec.Unmarshal(payload, &reply)
		return reply, err
	})
	return h
}

// decodeTopic subscribes to a topic and returns verified, decoded
// payloads on a channel. Unverifiable and malformed messages are
// dropped, mirroring how the real consumers treat them.
func decodeTopic[T any](h *embeddedHarness, topic string, decode func([]byte) (T, error)) <-chan T {
	h.t.Helper()
	sub, err := h.broker.Subscribe(topic)
	if err != nil {
		h.t.Fatalf("subscribing to %s: %v", topic, err)
	}
	h.t.Cleanup(sub.Cancel)

	out := make(chan T, 16)
	go func() {
		for message := range sub.C {
			payload, valid := h.signer.Verify(message.Envelope)
			if !valid {
				continue
			}
			value, err := decode(payload)
			if err != nil {
				continue
			}
			out <- value
		}
	}()
	return out
}

func (h *embeddedHarness) announcements() <-chan schema.RelayAnnounce {
	return decodeTopic(h, schema.TopicRelayDiscovery, func(payload []byte) (schema.RelayAnnounce, error) {
		var announce schema.RelayAnnounce
		err := codec.Unmarshal(payload, &announce)
		return announce, err
	})
}

// start runs the relay and waits for its intro announcement.
func (h *embeddedHarness) start() <-chan schema.RelayAnnounce {
	h.t.Helper()
	announces := h.announcements()

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.t.Cleanup(cancel)
	go h.relay.Run(ctx)

	intro := testutil.RequireReceive(h.t, announces, 5*time.Second, "intro announcement")
	if intro.Kind != schema.AnnounceIntro {
		h.t.Fatalf("first announcement kind = %q, want %q", intro.Kind, schema.AnnounceIntro)
	}
	if intro.RelayID != "embedded" {
		h.t.Fatalf("intro relay = %q, want %q", intro.RelayID, "embedded")
	}
	return announces
}

// exec publishes a signed work item to the relay's exec topic.
func (h *embeddedHarness) exec(item schema.WorkItem) {
	h.t.Helper()
	if err := h.broker.Publish(schema.RelayExecTopic("embedded"), item, bus.Signed()); err != nil {
		h.t.Fatalf("publishing work item: %v", err)
	}
}

func TestEmbeddedExecutesRegisteredCommand(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	h.relay.Handle("operable:echo", Echo)
	h.start()

	h.exec(schema.WorkItem{
		Correlation: "corr-1",
		Command:     "operable:echo",
		Args:        []string{"hello", "world"},
	})

	reply := testutil.RequireReceive(t, h.replies, 5*time.Second, "echo reply")
	if !reply.Success {
		t.Fatalf("reply failed: %+v", reply)
	}
	if got, want := reply.Correlation, "corr-1"; got != want {
		t.Errorf("correlation = %q, want %q", got, want)
	}
	if got, want := reply.RelayID, "embedded"; got != want {
		t.Errorf("relay = %q, want %q", got, want)
	}
	if got, want := reply.Output["body"], any("hello world"); got != want {
		t.Errorf("output body = %v, want %v", got, want)
	}
}

func TestEmbeddedUnknownCommand(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	h.start()

	h.exec(schema.WorkItem{Correlation: "corr-2", Command: "operable:missing"})

	reply := testutil.RequireReceive(t, h.replies, 5*time.Second, "error reply")
	if reply.Success {
		t.Fatalf("reply unexpectedly succeeded: %+v", reply)
	}
	if !strings.Contains(reply.Error, "operable:missing") {
		t.Errorf("error %q does not name the missing command", reply.Error)
	}
}

func TestEmbeddedExecutorError(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	h.relay.Handle("operable:boom", func(context.Context, schema.WorkItem) (map[string]any, error) {
		return nil, errors.New("Something went terribly wrong.")
	})
	h.start()

	h.exec(schema.WorkItem{Correlation: "corr-3", Command: "operable:boom"})

	reply := testutil.RequireReceive(t, h.replies, 5*time.Second, "error reply")
	if reply.Success {
		t.Fatalf("reply unexpectedly succeeded: %+v", reply)
	}
	if got, want := reply.Error, "Something went terribly wrong."; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

func TestEmbeddedIgnoresUnsignedWork(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	h.relay.Handle("operable:echo", Echo)
	h.start()

	forged := schema.WorkItem{Correlation: "forged", Command: "operable:echo", Args: []string{"pwned"}}
	if err := h.broker.Publish(schema.RelayExecTopic("embedded"), forged); err != nil {
		t.Fatalf("publishing unsigned work item: %v", err)
	}
	testutil.RequireNoReceive(t, h.replies, 100*time.Millisecond, "reply to unsigned work item")
}

func TestEmbeddedAnnouncesOfflineOnShutdown(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	announces := h.start()

	h.cancel()
	offline := testutil.RequireReceive(t, announces, 5*time.Second, "offline announcement")
	if got, want := offline.Kind, schema.AnnounceOffline; got != want {
		t.Errorf("announcement kind = %q, want %q", got, want)
	}
	if got, want := offline.RelayID, "embedded"; got != want {
		t.Errorf("relay = %q, want %q", got, want)
	}
}

func TestEmbeddedRepeatsIntroAnnouncement(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	announces := h.start()

	h.clock.WaitForTimers(1)
	h.clock.Advance(DefaultAnnounceInterval)

	repeat := testutil.RequireReceive(t, announces, 5*time.Second, "repeated intro")
	if got, want := repeat.Kind, schema.AnnounceIntro; got != want {
		t.Errorf("announcement kind = %q, want %q", got, want)
	}
	if got, want := repeat.RelayID, "embedded"; got != want {
		t.Errorf("relay = %q, want %q", got, want)
	}
	if got, want := strings.Join(repeat.Bundles, ","), "operable"; got != want {
		t.Errorf("bundles = %q, want %q", got, want)
	}
}

// TestEmbeddedRegistersWithLateSupervisor starts the supervisor after
// the relay's first intro has already gone by. Siblings under a
// supervision tree start in no particular order, and a restarted
// supervisor loses its registry, so registration has to recover from
// a missed intro.
func TestEmbeddedRegistersWithLateSupervisor(t *testing.T) {
	h := newEmbeddedHarness(t, "operable")
	h.relay.Handle("operable:echo", Echo)
	h.start()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	super := NewSupervisor(h.broker, h.signer, h.clock, logger, SupervisorConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go super.Run(ctx)

	// The first intro predates the supervisor's subscription; a repeat
	// registers the relay. Advancing per poll round tolerates the
	// supervisor subscribing at any point.
	h.clock.WaitForTimers(1)
	deadline := time.Now().Add(5 * time.Second)
	for {
		registered := false
		for _, info := range super.Relays() {
			if info.ID == "embedded" && info.Health == Healthy {
				registered = true
			}
		}
		if registered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("embedded relay never registered with the late supervisor")
		}
		h.clock.Advance(DefaultAnnounceInterval)
		time.Sleep(5 * time.Millisecond)
	}

	reply, err := super.Dispatch(context.Background(), workItem("operable:echo", "late", "start"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got, want := reply.Output["body"], any("late start"); got != want {
		t.Errorf("output body = %v, want %v", got, want)
	}
}

func TestEmbeddedDuplicateHandlerPanics(t *testing.T) {
	h := newEmbeddedHarness(t)
	h.relay.Handle("operable:echo", Echo)

	defer func() {
		if recover() == nil {
			t.Fatal("duplicate Handle did not panic")
		}
	}()
	h.relay.Handle("operable:echo", Echo)
}

// TestEmbeddedServedThroughSupervisor covers the full loop: the
// embedded relay registers with a supervisor over the bus and serves a
// dispatched work item.
func TestEmbeddedServedThroughSupervisor(t *testing.T) {
	sh := newHarness(t, SupervisorConfig{})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	embedded := NewEmbedded("embedded", []string{"operable"}, sh.broker, sh.signer, sh.clock, logger)
	embedded.Handle("operable:echo", Echo)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go embedded.Run(ctx)

	// The first intro races the supervisor's discovery subscription;
	// advancing per poll round lets the re-announce ticker cover a
	// missed one, as in TestEmbeddedRegistersWithLateSupervisor.
	sh.waitFor(func() bool {
		for _, info := range sh.super.Relays() {
			if info.ID == "embedded" && info.Health == Healthy {
				return true
			}
		}
		sh.clock.Advance(DefaultAnnounceInterval)
		return false
	}, "embedded relay to register")

	reply, err := sh.super.Dispatch(context.Background(), workItem("operable:echo", "round", "trip"))
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !reply.Success {
		t.Fatalf("reply failed: %+v", reply)
	}
	if got, want := reply.Output["body"], any("round trip"); got != want {
		t.Errorf("output body = %v, want %v", got, want)
	}
}
