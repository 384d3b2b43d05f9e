// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package supervise

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/marshal-foundation/marshal/lib/clock"
)

const (
	// initialBackoff is the delay before the first restart.
	initialBackoff = time.Second

	// maxBackoff caps the exponential restart delay.
	maxBackoff = 30 * time.Second
)

// Child is one supervised component. Run is expected to block until
// failure or cancellation.
type Child struct {
	// Name identifies the child in logs.
	Name string

	// Run is the child's main loop. Returning ctx.Err() after
	// cancellation is a clean exit; any other return restarts the
	// child.
	Run func(ctx context.Context) error
}

// Supervisor restarts failed children one-for-one with exponential
// backoff. A child's failure never affects its siblings; a crash in
// the adapter gateway must not take down the relay pool.
type Supervisor struct {
	clock  clock.Clock
	logger *slog.Logger

	children []Child
}

// New creates a supervisor for the given children.
func New(clk clock.Clock, logger *slog.Logger, children ...Child) *Supervisor {
	return &Supervisor{clock: clk, logger: logger, children: children}
}

// Run supervises all children until ctx is cancelled, then waits for
// them to exit.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, child := range s.children {
		wg.Add(1)
		go func(child Child) {
			defer wg.Done()
			s.supervise(ctx, child)
		}(child)
	}
	wg.Wait()
}

// supervise runs one child in a restart loop. The backoff doubles per
// consecutive failure and resets after a run that survived long
// enough to be considered healthy.
func (s *Supervisor) supervise(ctx context.Context, child Child) {
	backoff := initialBackoff
	for {
		started := s.clock.Now()
		err := child.Run(ctx)

		if ctx.Err() != nil {
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Info("component exited during shutdown", "component", child.Name, "error", err)
			}
			return
		}

		if s.clock.Now().Sub(started) > maxBackoff {
			backoff = initialBackoff
		}
		s.logger.Error("component failed, restarting",
			"component", child.Name, "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
