// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/repair/cache"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

type fixedState struct{ snap *state.Snapshot }

func (f *fixedState) Update(ctx context.Context) error { return nil }
func (f *fixedState) Snapshot() *state.Snapshot         { return f.snap }

type fixedFactory struct{ snap *state.Snapshot }

func (f *fixedFactory) Create(table state.TableRef, config state.RepairConfig) state.RepairState {
	return &fixedState{snap: f.snap}
}

type recordingSink struct {
	values map[string]float64
}

func (s *recordingSink) SetGauge(ctx context.Context, table state.TableRef, name string, value float64) error {
	if s.values == nil {
		s.values = map[string]float64{}
	}
	s.values[name] = value
	return nil
}

func testTable() state.TableRef { return state.TableRef{Keyspace: "ks", Table: "tbl"} }

func TestReportPushesAllThreeGauges(t *testing.T) {
	t.Parallel()

	snap := &state.Snapshot{
		LastCompletedAt:       500,
		EstimatedRepairTimeMs: 1000,
		Vnodes: []state.VnodeRepairState{
			{LastRepairedAtMs: 900},
			{LastRepairedAtMs: -1000},
		},
	}
	repairCache := cache.New(&fixedFactory{snap: snap}, zap.NewNop(), cache.DefaultConfig())
	sink := &recordingSink{}
	m := New(repairCache, sink, zap.NewNop(), Config{})

	config := state.RepairConfig{IntervalMs: 1000}
	m.Register(testTable(), config)

	err := m.report(context.Background(), state.CacheKey{Table: testTable(), Config: config}, 1000)
	require.NoError(t, err)

	require.Equal(t, 500.0, sink.values[gaugeLastRepairedAt])
	require.Equal(t, 0.5, sink.values[gaugeRepairedRatio])
	require.Equal(t, 500.0, sink.values[gaugeRemainingRepair]) // 1000 * (1 - 0.5)
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	t.Parallel()

	repairCache := cache.New(&fixedFactory{snap: &state.Snapshot{}}, zap.NewNop(), cache.DefaultConfig())
	m := New(repairCache, &recordingSink{}, zap.NewNop(), DefaultConfig())

	config := state.RepairConfig{}
	m.Register(testTable(), config)
	require.Len(t, m.registered(), 1)

	m.Unregister(testTable(), config)
	require.Empty(t, m.registered())
}

func TestRepairedRatioEmptySnapshot(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0.0, repairedRatio(&state.Snapshot{}, 1000, 0))
}
