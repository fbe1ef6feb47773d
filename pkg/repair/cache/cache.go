// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package cache implements RepairStateCache: a concurrent, self-refreshing
// cache mapping (table, repair-config) pairs to a RepairState, with
// at-most-one factory invocation per key and a background refresh worker.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ringrepair/orchestrator/internal/cycle"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// Error is the error class for this package.
var Error = errs.Class("repair state cache error")

// Config configures a RepairStateCache.
type Config struct {
	// RefreshInterval is how frequently the background worker refreshes
	// every cached entry.
	RefreshInterval time.Duration `help:"how frequently the repair state cache refreshes its entries" default:"5s"`
	// CloseTimeout bounds how long Close waits for the refresh worker to
	// exit.
	CloseTimeout time.Duration `help:"how long Close waits for the refresh worker to stop" default:"30s"`
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{RefreshInterval: 5 * time.Second, CloseTimeout: 30 * time.Second}
}

// RepairStateCache maps (TableRef, RepairConfig) pairs to RepairState,
// constructing entries at most once under concurrent access and
// refreshing them on a fixed background cadence.
type RepairStateCache struct {
	factory state.Factory
	log     *zap.Logger
	cfg     Config

	entries sync.Map // state.CacheKey -> state.RepairState
	flight  singleflight.Group

	cycle *cycle.Cycle
	group errgroup.Group

	closeOnce sync.Once

	failedRefreshCount atomic.Uint64
}

// New constructs a RepairStateCache. The cache does not start refreshing
// until Start is called.
func New(factory state.Factory, log *zap.Logger, cfg Config) *RepairStateCache {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}
	return &RepairStateCache{
		factory: factory,
		log:     log,
		cfg:     cfg,
		cycle:   cycle.NewCycle(cfg.RefreshInterval),
	}
}

// Start launches the background refresh worker. It returns immediately;
// the worker runs until ctx is canceled or Close is called.
func (c *RepairStateCache) Start(ctx context.Context) {
	c.cycle.Start(ctx, &c.group, c.refreshAll)
}

// Snapshot returns the current snapshot for (table, config), loading the
// entry via the injected factory if it doesn't exist yet. Concurrent
// calls for the same key invoke the factory at most once (P5).
func (c *RepairStateCache) Snapshot(ctx context.Context, table state.TableRef, config state.RepairConfig) (*state.Snapshot, error) {
	entry, err := c.getOrCreate(ctx, table, config)
	if err != nil {
		return nil, err
	}
	return entry.Snapshot(), nil
}

// Update ensures the entry for (table, config) exists, then forces an
// immediate RepairState.Update on it.
func (c *RepairStateCache) Update(ctx context.Context, table state.TableRef, config state.RepairConfig) error {
	entry, err := c.getOrCreate(ctx, table, config)
	if err != nil {
		return err
	}
	return Error.Wrap(entry.Update(ctx))
}

func (c *RepairStateCache) getOrCreate(ctx context.Context, table state.TableRef, config state.RepairConfig) (state.RepairState, error) {
	key := state.CacheKey{Table: table, Config: config}

	if existing, ok := c.entries.Load(key); ok {
		return existing.(state.RepairState), nil
	}

	flightKey := fmt.Sprintf("%+v", key)
	v, err, _ := c.flight.Do(flightKey, func() (interface{}, error) {
		if existing, ok := c.entries.Load(key); ok {
			return existing, nil
		}
		entry := c.factory.Create(table, config)
		if err := entry.Update(ctx); err != nil {
			c.log.Warn("initial repair state load failed",
				zap.String("table", table.String()),
				zap.Error(err),
			)
		}
		actual, _ := c.entries.LoadOrStore(key, entry)
		return actual, nil
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return v.(state.RepairState), nil
}

// refreshAll is run by the background cycle. Per-key failures are logged
// at warning and never abort the tick or crash the worker.
func (c *RepairStateCache) refreshAll(ctx context.Context) error {
	c.entries.Range(func(k, v interface{}) bool {
		key := k.(state.CacheKey)
		entry := v.(state.RepairState)
		if err := entry.Update(ctx); err != nil {
			c.failedRefreshCount.Inc()
			c.log.Warn("repair state refresh failed",
				zap.String("table", key.Table.String()),
				zap.Error(err),
			)
		}
		return true
	})
	return nil
}

// FailedRefreshCount returns the number of per-key refresh failures
// observed since the cache was created. It is additive observability,
// not part of the required contract (spec.md §9 Open Question).
func (c *RepairStateCache) FailedRefreshCount() uint64 {
	return c.failedRefreshCount.Load()
}

// Close stops accepting new background refresh ticks and joins the
// worker with a bounded wait. Close is idempotent.
func (c *RepairStateCache) Close() error {
	c.closeOnce.Do(func() {
		c.cycle.Close()
	})

	done := make(chan error, 1)
	go func() { done <- c.group.Wait() }()

	select {
	case err := <-done:
		return Error.Wrap(err)
	case <-time.After(c.cfg.CloseTimeout):
		return Error.New("timed out waiting for refresh worker to stop")
	}
}
