// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package state

import (
	"context"

	"github.com/zeebo/errs"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/ring"
)

// Error is the error class for this package.
var Error = errs.Class("repair state error")

// tableRepairState is the default RepairState implementation: it queries
// an injected TableTopology and RepairHistory to rebuild its Snapshot on
// Update, and hands out the most recently built Snapshot without ever
// blocking a reader on a writer (the snapshot pointer is swapped with a
// single atomic store, never a lock).
type tableRepairState struct {
	table    TableRef
	config   RepairConfig
	history  RepairHistory
	topology TableTopology
	log      *zap.Logger

	current atomic.Value // holds *Snapshot
}

// NewRepairState constructs a RepairState backed by the given
// collaborators. The returned state reports an empty, non-repairable
// Snapshot until the first successful Update.
func NewRepairState(table TableRef, config RepairConfig, history RepairHistory, topology TableTopology, log *zap.Logger) RepairState {
	s := &tableRepairState{
		table:    table,
		config:   config,
		history:  history,
		topology: topology,
		log:      log,
	}
	s.current.Store(&Snapshot{})
	return s
}

// Update rebuilds the snapshot from history and topology. On any
// collaborator failure the previous snapshot remains authoritative: the
// error is returned to the caller (RepairStateCache logs it at warning
// and moves on) but nothing is swapped.
func (s *tableRepairState) Update(ctx context.Context) (err error) {
	vnodeTopo, err := s.topology.Vnodes(ctx, s.table)
	if err != nil {
		return Error.Wrap(err)
	}

	canRepair, err := s.topology.CanRepair(ctx, s.table)
	if err != nil {
		return Error.Wrap(err)
	}

	vnodes := make([]VnodeRepairState, 0, len(vnodeTopo))
	replicaSetByRange := make(map[ring.TokenRange]string, len(vnodeTopo))
	for _, v := range vnodeTopo {
		lastRepairedAtMs, estimatedRepairTimeMs, err := s.history.LastRepaired(ctx, s.table, v.Range)
		if err != nil {
			return Error.Wrap(err)
		}
		vnodes = append(vnodes, VnodeRepairState{
			Range:                 v.Range,
			LastRepairedAtMs:      lastRepairedAtMs,
			EstimatedRepairTimeMs: estimatedRepairTimeMs,
		})
		replicaSetByRange[v.Range] = v.ReplicaSetID
	}

	snapshot := BuildSnapshot(vnodes, func(r ring.TokenRange) string {
		return replicaSetByRange[r]
	}, canRepair)

	s.current.Store(snapshot)
	s.log.Debug("repair state updated",
		zap.String("table", s.table.String()),
		zap.Int("vnodes", len(snapshot.Vnodes)),
		zap.Int("groups", len(snapshot.Groups)),
	)
	return nil
}

// Snapshot returns the most recently computed snapshot without
// recomputing it.
func (s *tableRepairState) Snapshot() *Snapshot {
	return s.current.Load().(*Snapshot)
}
