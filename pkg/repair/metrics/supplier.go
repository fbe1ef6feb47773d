// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package metrics implements MetricsSupplier: a background worker that
// periodically pushes each registered table's repair freshness into a
// GaugeSink.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/ringrepair/orchestrator/internal/cycle"
	"github.com/ringrepair/orchestrator/pkg/repair/cache"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

var (
	// Error is the error class for this package.
	Error = errs.Class("metrics supplier error")
	mon   = monkit.Package()
)

const (
	gaugeLastRepairedAt  = "last_repaired_at"
	gaugeRepairedRatio   = "repaired_ratio"
	gaugeRemainingRepair = "remaining_repair_time"
)

// Config configures a MetricsSupplier.
type Config struct {
	// Interval is how frequently registered tables are re-reported.
	Interval time.Duration `help:"how frequently registered tables push gauges" default:"30s"`
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second}
}

// MetricsSupplier periodically reports last_repaired_at, repaired_ratio,
// and remaining_repair_time gauges for every registered (table, config)
// pair, reading each pair's Snapshot through the shared RepairStateCache.
type MetricsSupplier struct {
	repairCache *cache.RepairStateCache
	sink        GaugeSink
	log         *zap.Logger
	cfg         Config

	cycle *cycle.Cycle
	group errgroup.Group

	mu       sync.Mutex
	entries  map[state.CacheKey]struct{}
}

// New constructs a MetricsSupplier. The supplier does not start reporting
// until Start is called.
func New(repairCache *cache.RepairStateCache, sink GaugeSink, log *zap.Logger, cfg Config) *MetricsSupplier {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &MetricsSupplier{
		repairCache: repairCache,
		sink:        sink,
		log:         log,
		cfg:         cfg,
		cycle:       cycle.NewCycle(cfg.Interval),
		entries:     make(map[state.CacheKey]struct{}),
	}
}

// Register adds (table, config) to the set of tables reported on every
// tick. Registering an already-registered pair is a no-op.
func (m *MetricsSupplier) Register(table state.TableRef, config state.RepairConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[state.CacheKey{Table: table, Config: config}] = struct{}{}
}

// Unregister removes (table, config) from the reported set. Unregistering
// an unregistered pair is a no-op.
func (m *MetricsSupplier) Unregister(table state.TableRef, config state.RepairConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, state.CacheKey{Table: table, Config: config})
}

// Start launches the background reporting worker.
func (m *MetricsSupplier) Start(ctx context.Context) {
	m.cycle.Start(ctx, &m.group, m.tick)
}

// Close stops the reporting worker and waits for it to exit.
func (m *MetricsSupplier) Close() error {
	m.cycle.Close()
	return Error.Wrap(m.group.Wait())
}

func (m *MetricsSupplier) registered() []state.CacheKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]state.CacheKey, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

func (m *MetricsSupplier) tick(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	now := time.Now().UnixNano() / int64(time.Millisecond)
	for _, key := range m.registered() {
		if err := m.report(ctx, key, now); err != nil {
			mon.Meter("metrics_report_failed").Mark(1)
			m.log.Warn("gauge report failed",
				zap.String("table", key.Table.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// report forces a fresh RepairState.Update before reading the snapshot: E's
// reporting cadence (Config.Interval) is configured independently of D's
// own refresh cycle (cache.Config.RefreshInterval), so it cannot rely on
// D's background worker having ticked recently.
func (m *MetricsSupplier) report(ctx context.Context, key state.CacheKey, now int64) error {
	if err := m.repairCache.Update(ctx, key.Table, key.Config); err != nil {
		return Error.Wrap(err)
	}

	snap, err := m.repairCache.Snapshot(ctx, key.Table, key.Config)
	if err != nil {
		return Error.Wrap(err)
	}

	ratio := repairedRatio(snap, key.Config.IntervalMs, now)
	remaining := float64(snap.EstimatedRepairTimeMs) * (1 - ratio)
	if remaining < 0 {
		remaining = 0
	}

	gauges := map[string]float64{
		gaugeLastRepairedAt:  float64(snap.LastCompletedAt),
		gaugeRepairedRatio:   ratio,
		gaugeRemainingRepair: remaining,
	}
	for name, value := range gauges {
		if err := m.sink.SetGauge(ctx, key.Table, name, value); err != nil {
			return Error.Wrap(err)
		}
	}
	return nil
}

func repairedRatio(snap *state.Snapshot, intervalMs, now int64) float64 {
	if len(snap.Vnodes) == 0 {
		return 0
	}
	var fresh int
	for _, v := range snap.Vnodes {
		if now-v.LastRepairedAtMs <= intervalMs {
			fresh++
		}
	}
	return float64(fresh) / float64(len(snap.Vnodes))
}
