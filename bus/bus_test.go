// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/testutil"
)

func newTestBroker(t *testing.T) (*Broker, *credential.Manager) {
	t.Helper()
	manager, err := credential.Generate()
	if err != nil {
		t.Fatalf("credential.Generate: %v", err)
	}
	broker := NewBroker(manager, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(broker.Close)
	return broker, manager
}

func TestPublishDeliversToMatchingSubscribers(t *testing.T) {
	broker, _ := newTestBroker(t)

	slack, err := broker.Subscribe("/bot/adapters/slack/+")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	hipchat, err := broker.Subscribe("/bot/adapters/hipchat/+")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := broker.Publish("/bot/adapters/slack/send_message", map[string]string{"response": "hi"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	message := testutil.RequireReceive(t, slack.C, time.Second, "slack delivery")
	if message.Topic != "/bot/adapters/slack/send_message" {
		t.Errorf("topic = %q", message.Topic)
	}
	var decoded map[string]string
	if err := codec.Unmarshal(message.Envelope.Payload, &decoded); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if decoded["response"] != "hi" {
		t.Errorf("response = %q, want hi", decoded["response"])
	}

	testutil.RequireNoReceive(t, hipchat.C, 50*time.Millisecond, "hipchat must not receive slack traffic")
}

func TestPublishSignedEnvelopeVerifies(t *testing.T) {
	broker, manager := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/commands")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := broker.Publish("/bot/commands", map[string]string{"text": "echo"}, Signed()); err != nil {
		t.Fatalf("Publish signed: %v", err)
	}

	message := testutil.RequireReceive(t, sub.C, time.Second, "signed delivery")
	if _, valid := manager.Verify(message.Envelope); !valid {
		t.Error("signed envelope failed verification")
	}
}

func TestPublishUnsignedEnvelopeHasNoSignature(t *testing.T) {
	broker, manager := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/commands")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := broker.Publish("/bot/commands", map[string]string{"text": "echo"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	message := testutil.RequireReceive(t, sub.C, time.Second, "unsigned delivery")
	if len(message.Envelope.Signature) != 0 {
		t.Error("unsigned publish produced a signature")
	}
	// A verifier must reject it on topics that require signing.
	if _, valid := manager.Verify(message.Envelope); valid {
		t.Error("unsigned envelope passed verification")
	}
}

func TestSignedPublishWithoutSigner(t *testing.T) {
	broker := NewBroker(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer broker.Close()

	err := broker.Publish("/bot/commands", map[string]string{}, Signed())
	if !errors.Is(err, ErrSignerRequired) {
		t.Errorf("err = %v, want ErrSignerRequired", err)
	}
}

func TestPerPublisherTopicFIFO(t *testing.T) {
	broker, _ := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/commands")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	const count = 20
	for i := 0; i < count; i++ {
		if err := broker.Publish("/bot/commands", map[string]int{"seq": i}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	for want := 0; want < count; want++ {
		message := testutil.RequireReceive(t, sub.C, time.Second, "message %d", want)
		var decoded map[string]int
		if err := codec.Unmarshal(message.Envelope.Payload, &decoded); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if decoded["seq"] != want {
			t.Fatalf("out of order: got seq %d, want %d", decoded["seq"], want)
		}
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	broker, _ := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/commands")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Fill the queue past capacity without draining. Publish must
	// return promptly every time.
	for i := 0; i < subscriptionBuffer+10; i++ {
		if err := broker.Publish("/bot/commands", map[string]int{"seq": i}); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	// The first subscriptionBuffer messages survive, in order.
	for want := 0; want < subscriptionBuffer; want++ {
		message := testutil.RequireReceive(t, sub.C, time.Second, "message %d", want)
		var decoded map[string]int
		if err := codec.Unmarshal(message.Envelope.Payload, &decoded); err != nil {
			t.Fatalf("decoding payload: %v", err)
		}
		if decoded["seq"] != want {
			t.Fatalf("got seq %d, want %d", decoded["seq"], want)
		}
	}
	testutil.RequireNoReceive(t, sub.C, 50*time.Millisecond, "overflow messages must be dropped")
}

func TestCancelStopsDelivery(t *testing.T) {
	broker, _ := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/commands")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Cancel()
	sub.Cancel() // idempotent

	if err := broker.Publish("/bot/commands", map[string]string{"text": "late"}); err != nil {
		t.Fatalf("Publish after cancel: %v", err)
	}

	// The channel is closed; any residual receive reports ok=false.
	if _, ok := <-sub.C; ok {
		t.Error("cancelled subscription received a message")
	}
}

func TestPublishAfterCloseReportsTransportError(t *testing.T) {
	broker, _ := newTestBroker(t)
	broker.Close()

	err := broker.Publish("/bot/commands", map[string]string{"text": "echo"})
	if !errors.Is(err, ErrTransportClosed) {
		t.Errorf("err = %v, want ErrTransportClosed", err)
	}
	if _, err := broker.Subscribe("/bot/commands"); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("Subscribe err = %v, want ErrTransportClosed", err)
	}
}

func TestConcurrentPublishers(t *testing.T) {
	broker, _ := newTestBroker(t)

	sub, err := broker.Subscribe("/bot/relays/+/exec")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	done := make(chan struct{})
	for p := 0; p < 4; p++ {
		go func(p int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 5; i++ {
				topic := fmt.Sprintf("/bot/relays/r%d/exec", p)
				if err := broker.Publish(topic, map[string]int{"seq": i}); err != nil {
					t.Errorf("Publish: %v", err)
					return
				}
			}
		}(p)
	}
	for p := 0; p < 4; p++ {
		testutil.RequireReceive(t, done, time.Second, "publisher %d", p)
	}

	received := 0
	for received < 20 {
		testutil.RequireReceive(t, sub.C, time.Second, "delivery %d", received)
		received++
	}
}
