// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/ring"
)

var errTopologyUnavailable = errors.New("topology unavailable")

type fakeTopology struct {
	vnodes    []VnodeTopology
	canRepair bool
	err       error
}

func (f *fakeTopology) Vnodes(ctx context.Context, table TableRef) ([]VnodeTopology, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vnodes, nil
}

func (f *fakeTopology) CanRepair(ctx context.Context, table TableRef) (bool, error) {
	return f.canRepair, nil
}

type fakeHistory struct {
	lastRepairedAtMs      map[ring.TokenRange]int64
	estimatedRepairTimeMs map[ring.TokenRange]int64
	err                   error
}

func (f *fakeHistory) LastRepaired(ctx context.Context, table TableRef, r ring.TokenRange) (int64, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	return f.lastRepairedAtMs[r], f.estimatedRepairTimeMs[r], nil
}

func testTable() TableRef { return TableRef{Keyspace: "ks", Table: "tbl"} }

func TestRepairStateInitialSnapshotIsEmpty(t *testing.T) {
	t.Parallel()
	s := NewRepairState(testTable(), RepairConfig{}, &fakeHistory{}, &fakeTopology{}, zap.NewNop())
	require.Equal(t, 0, s.Snapshot().VnodeCount())
}

func TestRepairStateUpdateBuildsSnapshot(t *testing.T) {
	t.Parallel()

	r1 := ring.NewTokenRange(0, 10)
	topology := &fakeTopology{
		vnodes:    []VnodeTopology{{Range: r1, ReplicaSetID: "A"}},
		canRepair: true,
	}
	history := &fakeHistory{
		lastRepairedAtMs:      map[ring.TokenRange]int64{r1: 42},
		estimatedRepairTimeMs: map[ring.TokenRange]int64{r1: 3},
	}

	s := NewRepairState(testTable(), RepairConfig{}, history, topology, zap.NewNop())
	require.NoError(t, s.Update(context.Background()))

	snap := s.Snapshot()
	require.True(t, snap.CanRepair)
	require.Equal(t, 1, snap.VnodeCount())
	require.Equal(t, int64(42), snap.LastCompletedAt)
}

func TestRepairStateUpdateFailurePreservesPreviousSnapshot(t *testing.T) {
	t.Parallel()

	r1 := ring.NewTokenRange(0, 10)
	topology := &fakeTopology{
		vnodes:    []VnodeTopology{{Range: r1, ReplicaSetID: "A"}},
		canRepair: true,
	}
	history := &fakeHistory{
		lastRepairedAtMs:      map[ring.TokenRange]int64{r1: 99},
		estimatedRepairTimeMs: map[ring.TokenRange]int64{r1: 1},
	}

	s := NewRepairState(testTable(), RepairConfig{}, history, topology, zap.NewNop())
	require.NoError(t, s.Update(context.Background()))
	require.Equal(t, int64(99), s.Snapshot().LastCompletedAt)

	topology.err = errTopologyUnavailable
	err := s.Update(context.Background())
	require.Error(t, err)

	require.Equal(t, int64(99), s.Snapshot().LastCompletedAt, "a failed update must not clobber the last good snapshot")
}
