// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"

	"github.com/ringrepair/orchestrator/pkg/repair/faillog"
	"github.com/ringrepair/orchestrator/pkg/repair/scheduler"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
	"github.com/ringrepair/orchestrator/pkg/ring"
)

// The noop* collaborators below let repaird start end-to-end before a
// cluster-specific topology, history, and policy backend is wired in. A
// real deployment replaces every one of them.

type noopHistory struct{}

func (noopHistory) LastRepaired(ctx context.Context, table state.TableRef, r ring.TokenRange) (int64, int64, error) {
	return 0, 0, nil
}

type noopTopology struct{}

func (noopTopology) Vnodes(ctx context.Context, table state.TableRef) ([]state.VnodeTopology, error) {
	return nil, nil
}

func (noopTopology) CanRepair(ctx context.Context, table state.TableRef) (bool, error) {
	return false, nil
}

type noopPolicy struct{}

func (noopPolicy) Runnable(ctx context.Context, table state.TableRef) (bool, error) {
	return true, nil
}

type noopStorage struct{}

func (noopStorage) DataSize(ctx context.Context, table state.TableRef) (int64, error) {
	return 0, nil
}

type noopScheduler struct{}

func (noopScheduler) PriorityFor(lastCompletedAtMs int64) int32 {
	return 0
}

func (noopScheduler) PostExecute(ctx context.Context, success bool, task scheduler.Task) error {
	return nil
}

type noopMeters struct{}

func (noopMeters) FindFailedSessionMeters(ctx context.Context) ([]faillog.Meter, error) {
	return nil, nil
}
