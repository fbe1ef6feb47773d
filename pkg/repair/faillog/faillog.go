// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package faillog implements FailureLogger: a background worker that polls
// an external meter registry for REPAIR_SESSIONS failure timers and logs
// one warning line per table whose failure count has moved upward since it
// was last observed, but only when the *sum* of those per-table diffs
// across the whole tick reaches a configured threshold. A steady trickle of
// sub-threshold failures spread across many tables can still trip the
// threshold in aggregate even though no single table crosses it alone.
package faillog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ringrepair/orchestrator/internal/cycle"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// Error is the error class for this package.
var Error = errs.Class("failure logger error")

// Config configures a FailureLogger.
type Config struct {
	// Interval is how frequently the meter registry is polled.
	Interval time.Duration `help:"how frequently the failure logger polls the meter registry" default:"10m"`
	// Threshold is the minimum sum of positive per-table diffs, across all
	// meters observed in one tick, required to emit any log line that
	// tick.
	Threshold int64 `help:"minimum sum of failure-count diffs across all meters required to log" default:"1"`
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{Interval: 10 * time.Minute, Threshold: 1}
}

// FailureLogger diffs every table currently reported by the meter registry
// against the count it last observed for that table, and logs a warning
// per contributing table only when the sum of positive diffs observed this
// tick reaches cfg.Threshold.
type FailureLogger struct {
	registry MeterRegistry
	log      *zap.Logger
	cfg      Config

	cycle *cycle.Cycle
	group errgroup.Group

	mu         sync.Mutex
	lastLogged map[state.TableRef]int64
}

// New constructs a FailureLogger. It does not start polling until Start is
// called.
func New(registry MeterRegistry, log *zap.Logger, cfg Config) *FailureLogger {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	return &FailureLogger{
		registry:   registry,
		log:        log,
		cfg:        cfg,
		cycle:      cycle.NewCycle(cfg.Interval),
		lastLogged: make(map[state.TableRef]int64),
	}
}

// Start launches the background polling worker.
func (f *FailureLogger) Start(ctx context.Context) {
	f.cycle.Start(ctx, &f.group, f.tick)
}

// Close stops the polling worker and waits for it to exit.
func (f *FailureLogger) Close() error {
	f.cycle.Close()
	return Error.Wrap(f.group.Wait())
}

type tableDiff struct {
	table state.TableRef
	diff  int64
}

// tick polls the registry once, computes every matching meter's diff
// against its last observed count, and emits one warning per positive-diff
// table if and only if those diffs sum to at least cfg.Threshold. A
// meter's last observed count advances whenever its diff is positive,
// whether or not the tick's sum clears the threshold: diffs are never lost,
// only their logging is gated.
func (f *FailureLogger) tick(ctx context.Context) error {
	meters, err := f.registry.FindFailedSessionMeters(ctx)
	if err != nil {
		f.log.Warn("failed session meter search failed", zap.Error(err))
		return nil // RegistryAbsent: treated as a no-op tick.
	}

	var diffs []tableDiff
	var sum int64

	f.mu.Lock()
	for _, m := range meters {
		last := f.lastLogged[m.Table]
		diff := m.Count - last
		if diff > 0 {
			f.lastLogged[m.Table] = m.Count
			diffs = append(diffs, tableDiff{table: m.Table, diff: diff})
			sum += diff
		}
	}
	f.mu.Unlock()

	if sum < f.cfg.Threshold {
		return nil
	}

	minutes := f.cfg.Interval / time.Minute
	for _, d := range diffs {
		f.log.Warn(fmt.Sprintf("table %s had %d failed repair sessions in the last %d minutes", d.table.String(), d.diff, minutes),
			zap.String("table", d.table.String()),
			zap.Int64("diff", d.diff),
			zap.Int64("sum", sum),
		)
	}
	return nil
}
