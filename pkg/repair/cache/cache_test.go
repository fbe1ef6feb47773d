// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

type countingFactory struct {
	creates int64
}

type countingState struct {
	updates int64
	snap    *state.Snapshot
	fail    bool
}

func (s *countingState) Update(ctx context.Context) error {
	atomic.AddInt64(&s.updates, 1)
	if s.fail {
		return errUpdateFailed
	}
	return nil
}

func (s *countingState) Snapshot() *state.Snapshot { return s.snap }

var errUpdateFailed = errFixture("update failed")

type errFixture string

func (e errFixture) Error() string { return string(e) }

func (f *countingFactory) Create(table state.TableRef, config state.RepairConfig) state.RepairState {
	atomic.AddInt64(&f.creates, 1)
	return &countingState{snap: &state.Snapshot{}}
}

func testTable() state.TableRef { return state.TableRef{Keyspace: "ks", Table: "tbl"} }

// TestGetOrCreateAtMostOnce is P5: concurrent callers for the same key
// must invoke the factory at most once.
func TestGetOrCreateAtMostOnce(t *testing.T) {
	t.Parallel()

	factory := &countingFactory{}
	c := New(factory, zap.NewNop(), DefaultConfig())

	const concurrency = 50
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			_, err := c.Snapshot(context.Background(), testTable(), state.RepairConfig{})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, factory.creates)
}

func TestSnapshotReusesExistingEntry(t *testing.T) {
	t.Parallel()

	factory := &countingFactory{}
	c := New(factory, zap.NewNop(), DefaultConfig())

	_, err := c.Snapshot(context.Background(), testTable(), state.RepairConfig{})
	require.NoError(t, err)
	_, err = c.Snapshot(context.Background(), testTable(), state.RepairConfig{})
	require.NoError(t, err)

	require.EqualValues(t, 1, factory.creates)
}

func TestUpdateForcesImmediateRefresh(t *testing.T) {
	t.Parallel()

	factory := &countingFactory{}
	c := New(factory, zap.NewNop(), DefaultConfig())

	require.NoError(t, c.Update(context.Background(), testTable(), state.RepairConfig{}))

	key := state.CacheKey{Table: testTable(), Config: state.RepairConfig{}}
	entry, ok := c.entries.Load(key)
	require.True(t, ok)
	require.EqualValues(t, 2, entry.(*countingState).updates, "one initial load + one forced update")
}

// TestRefreshAllNeverAbortsOnPerKeyFailure is the cache's resilience
// contract: a failing entry must not stop other entries from refreshing,
// and must not cause the background cycle to exit.
func TestRefreshAllNeverAbortsOnPerKeyFailure(t *testing.T) {
	t.Parallel()

	factory := &countingFactory{}
	c := New(factory, zap.NewNop(), DefaultConfig())

	failing := state.TableRef{Keyspace: "ks", Table: "failing"}
	ok := state.TableRef{Keyspace: "ks", Table: "ok"}

	_, err := c.Snapshot(context.Background(), failing, state.RepairConfig{})
	require.NoError(t, err)
	_, err = c.Snapshot(context.Background(), ok, state.RepairConfig{})
	require.NoError(t, err)

	failingEntry, _ := c.entries.Load(state.CacheKey{Table: failing, Config: state.RepairConfig{}})
	failingEntry.(*countingState).fail = true

	require.NoError(t, c.refreshAll(context.Background()))
	require.EqualValues(t, 1, c.FailedRefreshCount())

	okEntry, _ := c.entries.Load(state.CacheKey{Table: ok, Config: state.RepairConfig{}})
	require.EqualValues(t, 2, okEntry.(*countingState).updates)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New(&countingFactory{}, zap.NewNop(), Config{RefreshInterval: time.Minute, CloseTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
