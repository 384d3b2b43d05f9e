// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
)

// ErrTransportClosed is returned by Publish after the broker has shut
// down. A publish to a dead transport is reported to the caller, not
// silently dropped — components treat it as fatal and let their
// supervisor restart them.
var ErrTransportClosed = errors.New("bus: transport closed")

// ErrSignerRequired is returned when a publish requests signing but
// the broker was built without a credential manager.
var ErrSignerRequired = errors.New("bus: signing requested but no credential manager configured")

// subscriptionBuffer is the per-subscription queue depth. Delivery is
// at-most-once: when a subscriber's queue is full the message is
// dropped for that subscriber and logged, never queued unboundedly
// and never blocking the publisher.
const subscriptionBuffer = 64

// Message is one delivered bus value. Subscribers on topics that
// require signing must verify the envelope before decoding.
type Message struct {
	Topic    string
	Envelope credential.Envelope
}

// Subscription is a live topic subscription. Read deliveries from C;
// call Cancel when done. C is closed by Cancel and by broker
// shutdown.
type Subscription struct {
	// C delivers matching messages, FIFO per (publisher, topic).
	C <-chan Message

	pattern string
	cancel  func()
}

// Pattern returns the subscription's topic pattern.
func (s *Subscription) Pattern() string { return s.pattern }

// Cancel removes the subscription and closes C. Idempotent.
func (s *Subscription) Cancel() { s.cancel() }

// PublishOption modifies a single publish call.
type PublishOption func(*publishOptions)

type publishOptions struct {
	signed bool
}

// Signed requests that the payload be wrapped in a signed envelope by
// the broker's credential manager before transmission.
func Signed() PublishOption {
	return func(o *publishOptions) { o.signed = true }
}

// Broker is the in-process topic-addressed publish/subscribe
// transport. Delivery guarantees:
//
//   - at-most-once per subscriber (full queues drop),
//   - FIFO per (publisher, topic) pair,
//   - unordered across topics and publishers.
//
// Publish never blocks the caller; delivery to subscribers happens
// when they drain their queues.
type Broker struct {
	signer *credential.Manager
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	closed      bool
}

type subscriber struct {
	pattern string
	channel chan Message
}

// NewBroker creates a broker. The credential manager supplies the
// envelope signing hook and may be nil for brokers that never carry
// signed traffic (tests).
func NewBroker(signer *credential.Manager, logger *slog.Logger) *Broker {
	return &Broker{
		signer:      signer,
		logger:      logger,
		subscribers: make(map[int]*subscriber),
	}
}

// Publish encodes payload and delivers it to every subscriber whose
// pattern matches topic. With [Signed], the payload is wrapped in a
// signed envelope first; otherwise the envelope carries no signature.
func (b *Broker) Publish(topic string, payload any, opts ...PublishOption) error {
	if err := validateTopic(topic); err != nil {
		return err
	}

	var options publishOptions
	for _, opt := range opts {
		opt(&options)
	}

	var envelope credential.Envelope
	if options.signed {
		if b.signer == nil {
			return ErrSignerRequired
		}
		signed, err := b.signer.Sign(payload)
		if err != nil {
			return fmt.Errorf("signing payload for %s: %w", topic, err)
		}
		envelope = signed
	} else {
		encoded, err := codec.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload for %s: %w", topic, err)
		}
		envelope = credential.Envelope{Payload: encoded}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrTransportClosed
	}

	message := Message{Topic: topic, Envelope: envelope}
	for _, sub := range b.subscribers {
		if !MatchTopic(sub.pattern, topic) {
			continue
		}
		select {
		case sub.channel <- message:
		default:
			// At-most-once: a subscriber that cannot keep up loses
			// this delivery rather than stalling the publisher.
			b.logger.Warn("dropping bus message for slow subscriber",
				"topic", topic, "pattern", sub.pattern)
		}
	}
	return nil
}

// Subscribe registers a pattern and returns the live subscription.
// Patterns support "+" matching exactly one topic segment.
func (b *Broker) Subscribe(pattern string) (*Subscription, error) {
	if err := validatePattern(pattern); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrTransportClosed
	}

	id := b.nextID
	b.nextID++
	sub := &subscriber{
		pattern: pattern,
		channel: make(chan Message, subscriptionBuffer),
	}
	b.subscribers[id] = sub

	var once sync.Once
	return &Subscription{
		C:       sub.channel,
		pattern: pattern,
		cancel: func() {
			once.Do(func() {
				b.mu.Lock()
				defer b.mu.Unlock()
				if _, live := b.subscribers[id]; live {
					delete(b.subscribers, id)
					close(sub.channel)
				}
			})
		},
	}, nil
}

// Close shuts the broker down. Subsequent publishes return
// [ErrTransportClosed]; every subscription channel is closed.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub.channel)
	}
}
