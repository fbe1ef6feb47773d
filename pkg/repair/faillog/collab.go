// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package faillog

import (
	"context"

	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// Meter is one REPAIR_SESSIONS timer matching tags (successful=false)
// discovered by MeterRegistry: the table it is tagged with, and its
// current failure count.
type Meter struct {
	Table state.TableRef
	Count int64
}

// MeterRegistry searches an external metrics registry for timers under
// the REPAIR_SESSIONS meter name tagged (successful=false), returning the
// current failure count for every table with a matching meter.
// FailureLogger never resets these counts; it only tracks what it last
// observed per table.
type MeterRegistry interface {
	FindFailedSessionMeters(ctx context.Context) ([]Meter, error)
}
