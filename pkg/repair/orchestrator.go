// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package repair wires the repair state cache, metrics supplier, failure
// logger, and per-table scheduling facets into one Orchestrator: the
// process-level object a daemon constructs once and runs for its
// lifetime.
package repair

import (
	"context"
	"sync"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/repair/cache"
	"github.com/ringrepair/orchestrator/pkg/repair/faillog"
	"github.com/ringrepair/orchestrator/pkg/repair/metrics"
	"github.com/ringrepair/orchestrator/pkg/repair/scheduler"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
	"github.com/ringrepair/orchestrator/pkg/ring"
)

// Error is the error class for this package.
var Error = errs.Class("repair orchestrator error")

// Config bundles every sub-component's configuration.
type Config struct {
	Cache   cache.Config
	Metrics metrics.Config
	FailLog faillog.Config
}

// DefaultConfig returns the default Config.
func DefaultConfig() Config {
	return Config{
		Cache:   cache.DefaultConfig(),
		Metrics: metrics.DefaultConfig(),
		FailLog: faillog.DefaultConfig(),
	}
}

// Orchestrator owns the RepairStateCache (D), MetricsSupplier (E), and
// FailureLogger (F), plus a TableRepairJob (G) per registered table, all
// sharing one RangePartitioner (B) and RepairHistory/TableTopology
// factory (C).
type Orchestrator struct {
	log *zap.Logger

	repairCache     *cache.RepairStateCache
	metricsSupplier *metrics.MetricsSupplier
	failureLogger   *faillog.FailureLogger
	partitioner     *ring.RangePartitioner

	mu   sync.Mutex
	jobs map[state.TableRef]*scheduler.TableRepairJob
}

// New constructs an Orchestrator. Sub-components are not started until
// Start is called.
func New(factory state.Factory, sink metrics.GaugeSink, meters faillog.MeterRegistry, log *zap.Logger, cfg Config) *Orchestrator {
	repairCache := cache.New(factory, log.Named("cache"), cfg.Cache)
	return &Orchestrator{
		log:             log,
		repairCache:     repairCache,
		metricsSupplier: metrics.New(repairCache, sink, log.Named("metrics"), cfg.Metrics),
		failureLogger:   faillog.New(meters, log.Named("faillog"), cfg.FailLog),
		partitioner:     ring.NewRangePartitioner(),
		jobs:            make(map[state.TableRef]*scheduler.TableRepairJob),
	}
}

// RegisterTable builds a TableRepairJob for (table, config) and registers
// it with the metrics supplier, returning the job for callers that need to
// drive scheduling decisions directly. The failure logger needs no
// registration step: it discovers tables by polling the meter registry.
func (o *Orchestrator) RegisterTable(table state.TableRef, config state.RepairConfig, jobID string, collab scheduler.Collaborators) *scheduler.TableRepairJob {
	job := scheduler.NewTableRepairJob(jobID, table, config, o.repairCache, o.partitioner, collab, o.log.Named("job").With(zap.String("table", table.String())))

	o.mu.Lock()
	o.jobs[table] = job
	o.mu.Unlock()

	o.metricsSupplier.Register(table, config)
	return job
}

// UnregisterTable removes a previously registered table from metrics
// reporting.
func (o *Orchestrator) UnregisterTable(table state.TableRef, config state.RepairConfig) {
	o.mu.Lock()
	delete(o.jobs, table)
	o.mu.Unlock()

	o.metricsSupplier.Unregister(table, config)
}

// Job returns the TableRepairJob registered for table, if any.
func (o *Orchestrator) Job(table state.TableRef) (*scheduler.TableRepairJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	job, ok := o.jobs[table]
	return job, ok
}

// Jobs returns every currently registered TableRepairJob.
func (o *Orchestrator) Jobs() []*scheduler.TableRepairJob {
	o.mu.Lock()
	defer o.mu.Unlock()
	jobs := make([]*scheduler.TableRepairJob, 0, len(o.jobs))
	for _, job := range o.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

// Start launches the cache refresh worker, metrics supplier, and failure
// logger. It returns immediately; every worker runs until ctx is canceled
// or Close is called.
func (o *Orchestrator) Start(ctx context.Context) {
	o.repairCache.Start(ctx)
	o.metricsSupplier.Start(ctx)
	o.failureLogger.Start(ctx)
}

// Close stops every background worker and joins them, collecting every
// non-nil error.
func (o *Orchestrator) Close() error {
	var errGroup errs.Group
	errGroup.Add(o.repairCache.Close())
	errGroup.Add(o.metricsSupplier.Close())
	errGroup.Add(o.failureLogger.Close())
	return Error.Wrap(errGroup.Err())
}
