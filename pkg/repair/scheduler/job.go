// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package scheduler implements TableRepairJob: the scheduling facet that
// turns a RepairStateCache snapshot into a status, a progress ratio, a
// next-run estimate, and an iterator of ready-to-build repair tasks.
package scheduler

import (
	"context"
	"math/big"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
	monkit "gopkg.in/spacemonkeygo/monkit.v2"

	"github.com/ringrepair/orchestrator/pkg/repair/cache"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
	"github.com/ringrepair/orchestrator/pkg/ring"
)

var (
	// Error is the error class for this package.
	Error = errs.Class("table repair job error")
	mon   = monkit.Package()
)

// TableRepairJob is the scheduling facet for a single (table, config)
// pair. It owns no repair state itself; every method reads through to the
// RepairStateCache.
type TableRepairJob struct {
	jobID  string
	table  state.TableRef
	config state.RepairConfig

	cache       *cache.RepairStateCache
	partitioner *ring.RangePartitioner
	storage     TableStorageStates
	base        BaseScheduler
	policy      TableRepairPolicy
	history     state.RepairHistory
	metrics     TableRepairMetrics
	locks       LockFactory
	jmx         JmxProxyFactory
	log         *zap.Logger
}

// Collaborators groups every external collaborator a TableRepairJob
// needs, mirroring the collaborator list in spec.md §6.
type Collaborators struct {
	Storage TableStorageStates
	Base    BaseScheduler
	Policy  TableRepairPolicy
	History state.RepairHistory
	Metrics TableRepairMetrics
	Locks   LockFactory
	Jmx     JmxProxyFactory
}

// NewTableRepairJob constructs a TableRepairJob.
func NewTableRepairJob(jobID string, table state.TableRef, config state.RepairConfig, repairCache *cache.RepairStateCache, partitioner *ring.RangePartitioner, collab Collaborators, log *zap.Logger) *TableRepairJob {
	return &TableRepairJob{
		jobID:       jobID,
		table:       table,
		config:      config,
		cache:       repairCache,
		partitioner: partitioner,
		storage:     collab.Storage,
		base:        collab.Base,
		policy:      collab.Policy,
		history:     collab.History,
		metrics:     collab.Metrics,
		locks:       collab.Locks,
		jmx:         collab.Jmx,
		log:         log,
	}
}

// View returns the job's current Snapshot, loading it through the cache.
func (j *TableRepairJob) View(ctx context.Context) (*state.Snapshot, error) {
	snap, err := j.cache.Snapshot(ctx, j.table, j.config)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return snap, nil
}

// RefreshState forces the cache to recompute this job's snapshot now,
// instead of waiting for the next background refresh tick.
func (j *TableRepairJob) RefreshState(ctx context.Context) error {
	return Error.Wrap(j.cache.Update(ctx, j.table, j.config))
}

// LastSuccessfulRun returns the table-wide last_completed_at carried by
// the current snapshot.
func (j *TableRepairJob) LastSuccessfulRun(ctx context.Context) (int64, error) {
	snap, err := j.View(ctx)
	if err != nil {
		return 0, err
	}
	return snap.LastCompletedAt, nil
}

// RunOffset returns the current snapshot's estimated repair time, the
// offset subtracted from the interval when computing on-time-ness.
func (j *TableRepairJob) RunOffset(ctx context.Context) (int64, error) {
	snap, err := j.View(ctx)
	if err != nil {
		return 0, err
	}
	return snap.EstimatedRepairTimeMs, nil
}

// Priority returns -1 if the table cannot currently be repaired.
// Otherwise it maps the table-wide last_completed_at through the base
// scheduler's priority function.
func (j *TableRepairJob) Priority(ctx context.Context) (int32, error) {
	snap, err := j.View(ctx)
	if err != nil {
		return 0, err
	}
	return j.priorityOf(snap), nil
}

func (j *TableRepairJob) priorityOf(snap *state.Snapshot) int32 {
	if !snap.CanRepair {
		return -1
	}
	return j.base.PriorityFor(snap.LastCompletedAt)
}

// Status computes the job's status at the instant named by now
// (milliseconds since epoch), per the fixed evaluation order: BLOCKED,
// then OVERDUE, then LATE, then ON_TIME, then COMPLETED.
func (j *TableRepairJob) Status(ctx context.Context, now int64) (_ Status, err error) {
	defer mon.Task()(&ctx)(&err)

	snap, err := j.View(ctx)
	if err != nil {
		return "", err
	}

	if priority := j.priorityOf(snap); priority != -1 {
		runnable, err := j.policy.Runnable(ctx, j.table)
		if err != nil {
			return "", Error.Wrap(err)
		}
		if !runnable {
			return StatusBlocked, nil
		}
	}

	delta := now - snap.LastCompletedAt
	switch {
	case delta >= j.config.ErrorMs:
		return StatusOverdue, nil
	case delta >= j.config.WarningMs:
		return StatusLate, nil
	case delta >= j.config.IntervalMs-snap.EstimatedRepairTimeMs:
		return StatusOnTime, nil
	default:
		return StatusCompleted, nil
	}
}

// Runnable reports whether Status(ctx, now) is anything other than
// BLOCKED.
func (j *TableRepairJob) Runnable(ctx context.Context, now int64) (bool, error) {
	status, err := j.Status(ctx, now)
	if err != nil {
		return false, err
	}
	return status != StatusBlocked, nil
}

// Progress returns the fraction of vnodes, in [0, 1], whose last repair
// lies within one interval of now. An empty snapshot reports 0.
func (j *TableRepairJob) Progress(ctx context.Context, now int64) (float64, error) {
	snap, err := j.View(ctx)
	if err != nil {
		return 0, err
	}
	if len(snap.Vnodes) == 0 {
		return 0, nil
	}
	var fresh int
	for _, v := range snap.Vnodes {
		if now-v.LastRepairedAtMs <= j.config.IntervalMs {
			fresh++
		}
	}
	return float64(fresh) / float64(len(snap.Vnodes)), nil
}

// NextRunMs estimates when this job's next repair pass should begin,
// given its current snapshot.
func (j *TableRepairJob) NextRunMs(ctx context.Context) (int64, error) {
	snap, err := j.View(ctx)
	if err != nil {
		return 0, err
	}
	return snap.LastCompletedAt + j.config.IntervalMs - snap.EstimatedRepairTimeMs, nil
}

// tokensPerTask derives how many tokens each task should cover, per
// spec.md §4.G: a full repair config always repairs in one task; an
// unknown table size (including a target size too coarse to produce at
// least one task) also falls back to one task; otherwise the table's
// token mass is divided evenly across the target number of tasks implied
// by its data size.
func (j *TableRepairJob) tokensPerTask(ctx context.Context, snap *state.Snapshot) (*big.Int, error) {
	r := ring.NewTokenRing()
	if j.config.TargetRepairSizeBytes == state.FullRepair {
		return r.FullRangeSize(), nil
	}

	tableBytes, err := j.storage.DataSize(ctx, j.table)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if tableBytes == 0 {
		return r.FullRangeSize(), nil
	}

	targetTasks := tableBytes / j.config.TargetRepairSizeBytes
	if targetTasks <= 0 {
		return r.FullRangeSize(), nil
	}

	sumTokens := big.NewInt(0)
	for _, v := range snap.Vnodes {
		sumTokens.Add(sumTokens, v.Range.Size())
	}
	return new(big.Int).Div(sumTokens, big.NewInt(targetTasks)), nil
}

// Iterator builds one Task per ReplicaRepairGroup in the current
// snapshot, in snapshot order, each carrying the ring sub-ranges the
// RangePartitioner derives for it at the job's current tokens_per_task.
// All tasks from one call observe the same Snapshot.
func (j *TableRepairJob) Iterator(ctx context.Context) (_ *TaskIterator, err error) {
	defer mon.Task()(&ctx)(&err)

	snap, err := j.View(ctx)
	if err != nil {
		return nil, err
	}

	tokensPerTask, err := j.tokensPerTask(ctx, snap)
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(snap.Groups))
	now := time.Now()
	for _, g := range snap.Groups {
		ranges := make([]ring.TokenRange, 0, len(g.Vnodes))
		for _, v := range g.Vnodes {
			ranges = append(ranges, v.Range)
		}
		partitioned, err := j.partitioner.Partition(ranges, tokensPerTask)
		if err != nil {
			return nil, Error.Wrap(err)
		}

		tasks = append(tasks, Task{
			JobID:         j.jobID,
			Table:         j.table,
			Config:        j.config,
			Group:         g,
			TokensPerTask: tokensPerTask,
			Ranges:        partitioned,
			Priority:      j.base.PriorityFor(g.LastCompletedAt),
			History:       j.history,
			Metrics:       j.metrics,
			LockFactory:   j.locks,
			Policy:        j.policy,
			JmxFactory:    j.jmx,
			CreatedAt:     now,
		})
	}
	return &TaskIterator{tasks: tasks}, nil
}

// PostExecute forces a state refresh for this job's table and logs the
// task's outcome, then delegates to the base scheduler. Refresh failures
// are logged at warning and never returned: a stale snapshot until the
// next tick is preferable to failing an otherwise-successful task.
func (j *TableRepairJob) PostExecute(ctx context.Context, success bool, task Task) error {
	if err := j.cache.Update(ctx, j.table, j.config); err != nil {
		j.log.Warn("post-execute state refresh failed",
			zap.String("table", j.table.String()),
			zap.Error(err),
		)
	}
	j.log.Info("repair task executed",
		zap.String("table", j.table.String()),
		zap.String("replica_set", task.Group.ReplicaSetID),
		zap.Bool("success", success),
		zap.Duration("elapsed", time.Since(task.CreatedAt)),
	)
	return Error.Wrap(j.base.PostExecute(ctx, success, task))
}
