// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package cycle

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTriggerWaitRunsFnOnce(t *testing.T) {
	t.Parallel()

	var runs int64
	c := NewCycle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	c.Start(ctx, group, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})

	c.TriggerWait()
	require.EqualValues(t, 1, atomic.LoadInt64(&runs))

	c.Stop()
	require.NoError(t, group.Wait())
}

func TestPauseSuppressesAutomaticTicks(t *testing.T) {
	t.Parallel()

	var runs int64
	c := NewCycle(5 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	c.Start(ctx, group, func(ctx context.Context) error {
		atomic.AddInt64(&runs, 1)
		return nil
	})

	c.Pause()
	time.Sleep(30 * time.Millisecond)
	paused := atomic.LoadInt64(&runs)

	c.Restart()
	time.Sleep(30 * time.Millisecond)

	c.Stop()
	require.NoError(t, group.Wait())

	require.Greater(t, atomic.LoadInt64(&runs), paused, "ticks should resume after Restart")
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	c := NewCycle(time.Hour)
	c.Stop()
	c.Stop()
	c.Close()
}

func TestFnErrorPropagatesThroughGroup(t *testing.T) {
	t.Parallel()

	boom := context.Canceled
	c := NewCycle(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)
	c.Start(ctx, group, func(ctx context.Context) error {
		return boom
	})

	c.TriggerWait()
	require.Equal(t, boom, group.Wait())
}
