// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package state

import (
	"context"

	"github.com/ringrepair/orchestrator/pkg/ring"
)

// RepairHistory is the opaque handle to a table's repair history. The
// core treats it as a collaborator carried through to tasks: callers
// downstream of a TableRepairJob never call its methods directly, only
// hold the reference. RepairState itself queries it to learn when each
// vnode was last repaired, which is the one place inside this module the
// handle stops being opaque.
type RepairHistory interface {
	LastRepaired(ctx context.Context, table TableRef, r ring.TokenRange) (lastRepairedAtMs, estimatedRepairTimeMs int64, err error)
}

// VnodeTopology describes one vnode's token range and the identifier of
// the replica set that owns it. Vnodes sharing a ReplicaSetID are grouped
// into one ReplicaRepairGroup.
type VnodeTopology struct {
	Range        ring.TokenRange
	ReplicaSetID string
}

// TableTopology supplies a table's current vnode layout, in ring order,
// and whether the table is currently in a repairable state at all (e.g.
// not mid-bootstrap, not missing a quorum of replicas).
type TableTopology interface {
	Vnodes(ctx context.Context, table TableRef) ([]VnodeTopology, error)
	CanRepair(ctx context.Context, table TableRef) (bool, error)
}

// RepairState is produced by a RepairStateFactory and owned by the
// RepairStateCache entry for one (TableRef, RepairConfig) pair. Update
// recomputes the snapshot from history and topology; Snapshot returns the
// most recently computed value without recomputation.
type RepairState interface {
	Update(ctx context.Context) error
	Snapshot() *Snapshot
}

// Factory constructs a fresh RepairState for a (table, config) pair. It
// is the RepairStateFactory named in spec.md §6.
type Factory interface {
	Create(table TableRef, config RepairConfig) RepairState
}
