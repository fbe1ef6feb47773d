// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package state

import (
	"github.com/ringrepair/orchestrator/pkg/ring"
)

// VnodeRepairState is the per-vnode repair freshness: the token range it
// covers, when it was last repaired, and how long repairing it is
// estimated to take.
type VnodeRepairState struct {
	Range                 ring.TokenRange
	LastRepairedAtMs      int64
	EstimatedRepairTimeMs int64
}

// ReplicaRepairGroup is a maximal set of vnode states sharing an
// identical replica set. Groups are the unit of lock acquisition
// downstream: a TableRepairJob produces one task per group.
type ReplicaRepairGroup struct {
	ReplicaSetID    string
	Vnodes          []VnodeRepairState
	LastCompletedAt int64
}

func newReplicaRepairGroup(replicaSetID string, vnodes []VnodeRepairState) ReplicaRepairGroup {
	min := vnodes[0].LastRepairedAtMs
	for _, v := range vnodes[1:] {
		if v.LastRepairedAtMs < min {
			min = v.LastRepairedAtMs
		}
	}
	return ReplicaRepairGroup{
		ReplicaSetID:    replicaSetID,
		Vnodes:          vnodes,
		LastCompletedAt: min,
	}
}

// Snapshot is an immutable, point-in-time planning view of a table's
// repair state: its vnodes in ring order, the replica repair groups
// derived from them (in the same ring order, by first appearance),
// whether the table can currently be repaired at all, and an estimate of
// how long a full repair pass takes.
type Snapshot struct {
	Vnodes                []VnodeRepairState
	Groups                []ReplicaRepairGroup
	LastCompletedAt       int64
	CanRepair             bool
	EstimatedRepairTimeMs int64
}

// VnodeCount returns the number of vnodes covered by the snapshot.
func (s *Snapshot) VnodeCount() int {
	if s == nil {
		return 0
	}
	return len(s.Vnodes)
}

// BuildSnapshot assembles a Snapshot from vnode states in ring order,
// grouping consecutive-or-not vnodes sharing a replica set identifier
// into ReplicaRepairGroups (first-appearance order is preserved), and
// computing the table-wide LastCompletedAt as the minimum over all
// groups. estimatedRepairTimeMs is the sum of the per-vnode estimates,
// i.e. the time to repair the whole table in one pass.
func BuildSnapshot(vnodes []VnodeRepairState, replicaSetOf func(ring.TokenRange) string, canRepair bool) *Snapshot {
	if len(vnodes) == 0 {
		return &Snapshot{CanRepair: canRepair}
	}

	order := make([]string, 0, len(vnodes))
	byGroup := make(map[string][]VnodeRepairState, len(vnodes))
	seen := make(map[string]bool, len(vnodes))

	var totalEstimate int64
	for _, v := range vnodes {
		id := replicaSetOf(v.Range)
		if !seen[id] {
			seen[id] = true
			order = append(order, id)
		}
		byGroup[id] = append(byGroup[id], v)
		totalEstimate += v.EstimatedRepairTimeMs
	}

	groups := make([]ReplicaRepairGroup, 0, len(order))
	overallMin := vnodes[0].LastRepairedAtMs
	for _, id := range order {
		g := newReplicaRepairGroup(id, byGroup[id])
		groups = append(groups, g)
		if g.LastCompletedAt < overallMin {
			overallMin = g.LastCompletedAt
		}
	}

	return &Snapshot{
		Vnodes:                vnodes,
		Groups:                groups,
		LastCompletedAt:       overallMin,
		CanRepair:             canRepair,
		EstimatedRepairTimeMs: totalEstimate,
	}
}
