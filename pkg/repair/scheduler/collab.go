// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package scheduler

import (
	"context"

	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// TableStorageStates reports how much data a table currently holds, in
// bytes. A job uses this to translate its target_repair_size_bytes into a
// concrete tokens-per-task value. Zero means unknown, and a job falls
// back to repairing the table in a single task.
type TableStorageStates interface {
	DataSize(ctx context.Context, table state.TableRef) (int64, error)
}

// TableRepairPolicy gates whether a table is currently allowed to run,
// independent of its schedule. A cluster operator might wire this to a
// maintenance window, an admission controller, or a manual pause switch.
type TableRepairPolicy interface {
	Runnable(ctx context.Context, table state.TableRef) (bool, error)
}

// LockFactory is the opaque handle TableRepairJob threads through to
// tasks for downstream mutual exclusion between replica groups. Nothing
// in this package calls its methods; it is carried, not consumed.
type LockFactory interface{}

// TableRepairMetrics is the opaque per-task metrics handle threaded
// through to tasks, analogous to LockFactory.
type TableRepairMetrics interface{}

// JmxProxyFactory is the opaque handle for obtaining a live connection to
// a replica during task execution. It is carried through to tasks and
// never consumed by the scheduling facet itself.
type JmxProxyFactory interface{}

// BaseScheduler supplies the priority mapping shared by every job in an
// orchestrator, and is given a chance to react after every task runs.
type BaseScheduler interface {
	PriorityFor(lastCompletedAtMs int64) int32
	PostExecute(ctx context.Context, success bool, task Task) error
}
