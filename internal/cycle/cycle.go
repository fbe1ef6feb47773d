// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cycle implements a scoped periodic-worker primitive: a single
// goroutine that runs a function on a fixed interval, can be paused,
// manually triggered, and shut down deterministically. Every background
// worker in this module (cache refresh, metrics supply, failure-log
// polling) is built on one Cycle instead of a bespoke ticker loop.
package cycle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Cycle runs a function repeatedly on an interval until stopped. The zero
// value is usable once SetInterval has been called; NewCycle is the usual
// constructor.
type Cycle struct {
	mu       sync.Mutex
	interval time.Duration

	initOnce  sync.Once
	stopOnce  sync.Once
	triggerCh chan chan struct{}
	pauseCh   chan struct{}
	restartCh chan struct{}
	stopCh    chan struct{}
}

// NewCycle returns a Cycle that runs its function every interval. An
// interval of zero means the cycle never fires on its own and only runs
// when triggered.
func NewCycle(interval time.Duration) *Cycle {
	c := &Cycle{interval: interval}
	c.ensureInit()
	return c
}

func (c *Cycle) ensureInit() {
	c.initOnce.Do(func() {
		c.triggerCh = make(chan chan struct{}, 64)
		c.pauseCh = make(chan struct{}, 1)
		c.restartCh = make(chan struct{}, 1)
		c.stopCh = make(chan struct{})
	})
}

// SetInterval changes the cycle's interval. It takes effect on the next
// tick or Restart.
func (c *Cycle) SetInterval(interval time.Duration) {
	c.ensureInit()
	c.mu.Lock()
	c.interval = interval
	c.mu.Unlock()
}

func (c *Cycle) currentInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interval
}

// Start runs the cycle's loop as a goroutine under group, calling fn on
// every tick (and on every Trigger) until the context is canceled or the
// cycle is stopped. Start returns immediately.
func (c *Cycle) Start(ctx context.Context, group *errgroup.Group, fn func(ctx context.Context) error) {
	c.ensureInit()
	group.Go(func() error {
		return c.run(ctx, fn)
	})
}

func (c *Cycle) run(ctx context.Context, fn func(context.Context) error) error {
	paused := false

	timer := time.NewTimer(c.nextDelay())
	if c.currentInterval() <= 0 {
		stopTimer(timer)
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-c.stopCh:
			return nil

		case <-c.pauseCh:
			paused = true
			stopTimer(timer)

		case <-c.restartCh:
			paused = false
			stopTimer(timer)
			if c.currentInterval() > 0 {
				timer.Reset(c.currentInterval())
			}

		case done := <-c.triggerCh:
			err := fn(ctx)
			if done != nil {
				close(done)
			}
			if err != nil {
				return err
			}

		case <-timer.C:
			if !paused {
				if err := fn(ctx); err != nil {
					return err
				}
			}
			if c.currentInterval() > 0 {
				timer.Reset(c.currentInterval())
			}
		}
	}
}

func (c *Cycle) nextDelay() time.Duration {
	if d := c.currentInterval(); d > 0 {
		return d
	}
	return time.Hour // placeholder, immediately stopped when interval <= 0
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

// Pause stops automatic ticking until Restart is called. Triggered runs
// still execute while paused.
func (c *Cycle) Pause() {
	c.ensureInit()
	select {
	case c.pauseCh <- struct{}{}:
	default:
	}
}

// Restart resumes automatic ticking after Pause.
func (c *Cycle) Restart() {
	c.ensureInit()
	select {
	case c.restartCh <- struct{}{}:
	default:
	}
}

// Trigger requests an extra run without waiting for it to complete. It
// never blocks, even after the cycle has stopped.
func (c *Cycle) Trigger() {
	c.ensureInit()
	select {
	case c.triggerCh <- nil:
	default:
	}
}

// TriggerWait requests an extra run and blocks until it has completed.
// It must be called while the cycle's loop is still running.
func (c *Cycle) TriggerWait() {
	c.ensureInit()
	done := make(chan struct{})
	c.triggerCh <- done
	<-done
}

// Stop signals the cycle's loop to exit. It does not wait for the loop to
// actually return; callers that need that own the errgroup.Group passed
// to Start and call group.Wait(). Stop is idempotent.
func (c *Cycle) Stop() {
	c.ensureInit()
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

// Close stops the cycle. It is an alias for Stop, kept for symmetry with
// the other scoped-resource types in this module that expose Close.
func (c *Cycle) Close() {
	c.Stop()
}
