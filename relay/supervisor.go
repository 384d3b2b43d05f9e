// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marshal-foundation/marshal/bus"
	"github.com/marshal-foundation/marshal/lib/clock"
	"github.com/marshal-foundation/marshal/lib/codec"
	"github.com/marshal-foundation/marshal/lib/credential"
	"github.com/marshal-foundation/marshal/lib/schema"
)

// ErrDispatchTimeout reports a relay that did not reply within the
// dispatch timeout. The command router converts this into a
// user-visible error response; it is never allowed to crash the
// router.
var ErrDispatchTimeout = errors.New("relay: dispatch timed out")

// ErrNoHealthyRelays reports that no relay was eligible to receive
// the work item.
var ErrNoHealthyRelays = errors.New("relay: no healthy relays registered")

const (
	// DefaultDispatchTimeout bounds how long Dispatch blocks
	// waiting for a relay reply.
	DefaultDispatchTimeout = 5 * time.Second

	// DefaultEvictAfter is how many consecutive timeouts a relay
	// may accumulate before eviction.
	DefaultEvictAfter = 3
)

// SupervisorConfig carries the tunable supervision parameters. Zero
// values select the defaults.
type SupervisorConfig struct {
	// DispatchTimeout bounds each Dispatch call.
	DispatchTimeout time.Duration

	// EvictAfter is the consecutive-miss threshold for eviction.
	EvictAfter int
}

// relayState is the supervisor's record of one registered relay.
type relayState struct {
	id      string
	bundles []string
	health  Health

	// misses counts consecutive dispatch timeouts. Reset to zero by
	// any successful reply and by re-announcement.
	misses int

	// inflight holds the correlation references this relay
	// currently owns. Released for retry on eviction or offline
	// announcement.
	inflight map[string]struct{}
}

// dispatchResult resolves one blocked Dispatch call.
type dispatchResult struct {
	reply schema.RelayReply
	err   error
}

// pendingDispatch is the future for one in-flight work item, keyed by
// correlation reference. The item is retained so the work can be
// re-published if its relay is evicted while the caller still waits.
type pendingDispatch struct {
	correlation string
	relayID     string
	item        schema.WorkItem

	// result is buffered with capacity 1 so the resolver never
	// blocks on a caller that already gave up.
	result chan dispatchResult
}

// Supervisor manages the pool of registered relays and dispatches
// authorized invocations to them. Relays register and deregister via
// bus control messages on [schema.TopicRelayDiscovery], never by
// direct call — a relay that reconnects under a new connection keeps
// its logical identity. Replies arrive on [schema.TopicRelayReplies]
// and resolve the pending dispatch future with the matching
// correlation reference; replies for abandoned correlations are
// discarded.
type Supervisor struct {
	broker   *bus.Broker
	verifier *credential.Manager
	clock    clock.Clock
	logger   *slog.Logger

	timeout    time.Duration
	evictAfter int

	mu      sync.Mutex
	relays  map[string]*relayState
	pending map[string]*pendingDispatch
	cursor  int
}

// NewSupervisor creates a supervisor. The credential manager verifies
// inbound control and reply envelopes; work items are published
// signed through the broker.
func NewSupervisor(broker *bus.Broker, verifier *credential.Manager, clk clock.Clock, logger *slog.Logger, config SupervisorConfig) *Supervisor {
	if config.DispatchTimeout <= 0 {
		config.DispatchTimeout = DefaultDispatchTimeout
	}
	if config.EvictAfter <= 0 {
		config.EvictAfter = DefaultEvictAfter
	}
	return &Supervisor{
		broker:     broker,
		verifier:   verifier,
		clock:      clk,
		logger:     logger,
		timeout:    config.DispatchTimeout,
		evictAfter: config.EvictAfter,
		relays:     make(map[string]*relayState),
		pending:    make(map[string]*pendingDispatch),
	}
}

// Run consumes relay discovery and reply topics until ctx is
// cancelled. A closed bus is a transport failure and is returned to
// the caller — the supervisor's parent restarts it.
func (s *Supervisor) Run(ctx context.Context) error {
	discovery, err := s.broker.Subscribe(schema.TopicRelayDiscovery)
	if err != nil {
		return fmt.Errorf("subscribing to relay discovery: %w", err)
	}
	defer discovery.Cancel()

	replies, err := s.broker.Subscribe(schema.TopicRelayReplies)
	if err != nil {
		return fmt.Errorf("subscribing to relay replies: %w", err)
	}
	defer replies.Cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case message, ok := <-discovery.C:
			if !ok {
				return bus.ErrTransportClosed
			}
			s.handleAnnounce(message)
		case message, ok := <-replies.C:
			if !ok {
				return bus.ErrTransportClosed
			}
			s.handleReply(message)
		}
	}
}

// handleAnnounce processes a relay lifecycle control message.
func (s *Supervisor) handleAnnounce(message bus.Message) {
	payload, valid := s.verifier.Verify(message.Envelope)
	if !valid {
		s.logger.Warn("discarding unverifiable relay announcement", "topic", message.Topic)
		return
	}
	var announce schema.RelayAnnounce
	if err := codec.Unmarshal(payload, &announce); err != nil {
		s.logger.Warn("discarding malformed relay announcement", "error", err)
		return
	}

	switch announce.Kind {
	case schema.AnnounceIntro:
		s.registerRelay(announce)
	case schema.AnnounceOffline:
		s.deregisterRelay(announce.RelayID)
	default:
		s.logger.Warn("unknown relay announcement kind", "kind", announce.Kind)
	}
}

func (s *Supervisor) registerRelay(announce schema.RelayAnnounce) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, known := s.relays[announce.RelayID]
	if !known {
		state = &relayState{
			id:       announce.RelayID,
			inflight: make(map[string]struct{}),
		}
		s.relays[announce.RelayID] = state
	}
	// An announcement always resets liveness: a reconnecting relay
	// starts over, even if it was evicted. Intros repeat on a heartbeat
	// cadence, so a steady-state repeat only logs at debug.
	recovered := !known || state.health != Healthy
	state.health = Healthy
	state.misses = 0
	state.bundles = announce.Bundles
	if recovered {
		s.logger.Info("relay registered", "relay", announce.RelayID, "bundles", announce.Bundles)
	} else {
		s.logger.Debug("relay re-announced", "relay", announce.RelayID)
	}
}

func (s *Supervisor) deregisterRelay(relayID string) {
	s.mu.Lock()
	state, known := s.relays[relayID]
	if !known {
		s.mu.Unlock()
		return
	}
	delete(s.relays, relayID)
	republish := s.releaseInflightLocked(state)
	s.mu.Unlock()

	s.logger.Info("relay deregistered", "relay", relayID, "released", len(republish))
	s.republish(republish)
}

// handleReply resolves the pending dispatch matching the reply's
// correlation reference. Replies with no pending correlation are
// stale — the caller already gave up — and are discarded.
func (s *Supervisor) handleReply(message bus.Message) {
	payload, valid := s.verifier.Verify(message.Envelope)
	if !valid {
		s.logger.Warn("discarding unverifiable relay reply", "topic", message.Topic)
		return
	}
	var reply schema.RelayReply
	if err := codec.Unmarshal(payload, &reply); err != nil {
		s.logger.Warn("discarding malformed relay reply", "error", err)
		return
	}

	s.mu.Lock()
	pending, waiting := s.pending[reply.Correlation]
	if !waiting {
		s.mu.Unlock()
		s.logger.Debug("discarding stale relay reply", "correlation", reply.Correlation, "relay", reply.RelayID)
		return
	}
	delete(s.pending, reply.Correlation)

	if state, known := s.relays[pending.relayID]; known {
		delete(state.inflight, reply.Correlation)
		state.misses = 0
		if state.health == Unresponsive {
			state.health = Healthy
		}
	}
	s.mu.Unlock()

	pending.result <- dispatchResult{reply: reply}
}

// Dispatch publishes the work item to a healthy relay and blocks
// until the matching reply arrives, the dispatch timeout elapses, or
// ctx is cancelled. The correlation reference is assigned here and is
// fresh per call.
func (s *Supervisor) Dispatch(ctx context.Context, item schema.WorkItem) (schema.RelayReply, error) {
	s.mu.Lock()
	relayID, found := s.pickLocked(commandBundle(item.Command))
	if !found {
		s.mu.Unlock()
		return schema.RelayReply{}, ErrNoHealthyRelays
	}

	item.Correlation = uuid.NewString()
	pending := &pendingDispatch{
		correlation: item.Correlation,
		relayID:     relayID,
		item:        item,
		result:      make(chan dispatchResult, 1),
	}
	s.pending[item.Correlation] = pending
	s.relays[relayID].inflight[item.Correlation] = struct{}{}
	s.mu.Unlock()

	if err := s.broker.Publish(schema.RelayExecTopic(relayID), item, bus.Signed()); err != nil {
		s.forget(pending)
		return schema.RelayReply{}, fmt.Errorf("publishing work item to relay %s: %w", relayID, err)
	}

	select {
	case result := <-pending.result:
		return result.reply, result.err
	case <-s.clock.After(s.timeout):
		return s.resolveTimeout(pending)
	case <-ctx.Done():
		s.forget(pending)
		return schema.RelayReply{}, ctx.Err()
	}
}

// resolveTimeout handles a dispatch deadline. If the reply raced the
// timer and won, the delivered result is returned as a success. The
// timed-out relay is marked unresponsive, and crossing the
// consecutive-miss threshold evicts it and releases its other
// in-flight work for retry.
func (s *Supervisor) resolveTimeout(pending *pendingDispatch) (schema.RelayReply, error) {
	s.mu.Lock()
	if _, waiting := s.pending[pending.correlation]; !waiting {
		// A reply resolved this future between the timer firing and
		// the lock being taken. The buffered result is already
		// there.
		s.mu.Unlock()
		result := <-pending.result
		return result.reply, result.err
	}
	delete(s.pending, pending.correlation)

	relayID := pending.relayID
	var republish []*pendingDispatch
	if state, known := s.relays[relayID]; known {
		delete(state.inflight, pending.correlation)
		state.misses++
		state.health = Unresponsive
		if state.misses >= s.evictAfter {
			state.health = Evicted
			republish = s.releaseInflightLocked(state)
			s.logger.Warn("evicting relay after repeated timeouts",
				"relay", relayID, "misses", state.misses, "released", len(republish))
		}
	}
	s.mu.Unlock()

	s.republish(republish)
	return schema.RelayReply{}, fmt.Errorf("relay %s gave no reply within %v: %w", relayID, s.timeout, ErrDispatchTimeout)
}

// forget drops a pending dispatch whose caller has given up. A late
// reply will find no pending correlation and be discarded.
func (s *Supervisor) forget(pending *pendingDispatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, pending.correlation)
	if state, known := s.relays[pending.relayID]; known {
		delete(state.inflight, pending.correlation)
	}
}

// releaseInflightLocked detaches every in-flight correlation from a
// dead relay and reassigns each to a healthy relay. Futures that
// cannot be reassigned are resolved with an error. Returns the
// pendings to republish once the lock is released.
func (s *Supervisor) releaseInflightLocked(state *relayState) []*pendingDispatch {
	var republish []*pendingDispatch
	for correlation := range state.inflight {
		delete(state.inflight, correlation)
		pending, waiting := s.pending[correlation]
		if !waiting {
			continue
		}
		newRelay, found := s.pickLocked(commandBundle(pending.item.Command))
		if !found {
			delete(s.pending, correlation)
			pending.result <- dispatchResult{err: ErrNoHealthyRelays}
			continue
		}
		pending.relayID = newRelay
		s.relays[newRelay].inflight[correlation] = struct{}{}
		republish = append(republish, pending)
	}
	return republish
}

// republish re-sends released work items to their newly assigned
// relays. A publish failure resolves the future with the transport
// error.
func (s *Supervisor) republish(pendings []*pendingDispatch) {
	for _, pending := range pendings {
		topic := schema.RelayExecTopic(pending.relayID)
		if err := s.broker.Publish(topic, pending.item, bus.Signed()); err != nil {
			s.forget(pending)
			pending.result <- dispatchResult{err: fmt.Errorf("republishing work item: %w", err)}
			continue
		}
		s.logger.Info("work item retried on another relay",
			"correlation", pending.correlation, "relay", pending.relayID)
	}
}

// pickLocked selects the next healthy relay round-robin, preferring
// relays that announced the work item's bundle. When no healthy relay
// announces the bundle the whole healthy set is eligible; the chosen
// relay replies with its own unavailable-command error in that case.
// Relay IDs are walked in sorted order so selection is deterministic
// for a given registration set.
func (s *Supervisor) pickLocked(bundle string) (string, bool) {
	var healthy, serving []string
	for id, state := range s.relays {
		if state.health != Healthy {
			continue
		}
		healthy = append(healthy, id)
		if bundle != "" && slices.Contains(state.bundles, bundle) {
			serving = append(serving, id)
		}
	}
	ids := healthy
	if len(serving) > 0 {
		ids = serving
	}
	if len(ids) == 0 {
		return "", false
	}
	sort.Strings(ids)
	choice := ids[s.cursor%len(ids)]
	s.cursor++
	return choice, true
}

// commandBundle extracts the bundle prefix from a qualified command
// name, "operable" from "operable:group". Unqualified names have no
// bundle.
func commandBundle(command string) string {
	bundle, _, found := strings.Cut(command, ":")
	if !found {
		return ""
	}
	return bundle
}

// Relays returns a snapshot of the registry, sorted by relay ID.
func (s *Supervisor) Relays() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]Info, 0, len(s.relays))
	for _, state := range s.relays {
		infos = append(infos, Info{
			ID:       state.id,
			Health:   state.health,
			Misses:   state.misses,
			InFlight: len(state.inflight),
			Bundles:  append([]string(nil), state.bundles...),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}
