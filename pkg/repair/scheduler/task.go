// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package scheduler

import (
	"math/big"
	"time"

	"github.com/ringrepair/orchestrator/pkg/ring"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// Task is one unit of repair work: a single ReplicaRepairGroup, the token
// sub-ranges within it sized to tokens_per_task, and every collaborator a
// consumer needs to actually run it. TableRepairJob never executes a
// Task; it only produces them.
type Task struct {
	JobID  string
	Table  state.TableRef
	Config state.RepairConfig
	Group  state.ReplicaRepairGroup

	TokensPerTask *big.Int
	Ranges        [][]ring.TokenRange
	Priority      int32

	History     state.RepairHistory
	Metrics     TableRepairMetrics
	LockFactory LockFactory
	Policy      TableRepairPolicy
	JmxFactory  JmxProxyFactory

	CreatedAt time.Time
}

// TaskIterator yields the tasks built from a single Snapshot, in the
// snapshot's group order. It follows the pull idiom of bufio.Scanner and
// database/sql.Rows: call Next until it returns false, reading Task in
// between.
type TaskIterator struct {
	tasks []Task
	idx   int
}

// Next advances the iterator. It returns false once every task has been
// consumed.
func (it *TaskIterator) Next() bool {
	if it.idx >= len(it.tasks) {
		return false
	}
	it.idx++
	return true
}

// Task returns the task at the iterator's current position. It must only
// be called after a call to Next returned true.
func (it *TaskIterator) Task() Task {
	return it.tasks[it.idx-1]
}

// Len returns the total number of tasks the iterator will yield,
// regardless of how far it has been advanced.
func (it *TaskIterator) Len() int {
	return len(it.tasks)
}
