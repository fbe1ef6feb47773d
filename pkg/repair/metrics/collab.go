// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package metrics

import (
	"context"

	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// GaugeSink publishes a named gauge value for a table to whatever
// time-series backend the deployment uses. Values are pushed, never
// pulled: MetricsSupplier decides when each gauge is fresh enough to
// re-report.
type GaugeSink interface {
	SetGauge(ctx context.Context, table state.TableRef, name string, value float64) error
}
