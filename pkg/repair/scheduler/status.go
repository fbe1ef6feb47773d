// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package scheduler

// Status is the externally visible state of a TableRepairJob at a given
// instant. Evaluation order is fixed: the first matching rule in
// TableRepairJob.Status wins.
type Status string

const (
	// StatusBlocked means the job has a priority (the table can be
	// repaired) but an external policy gate currently refuses to run it.
	StatusBlocked Status = "BLOCKED"
	// StatusOverdue means at least error_ms have passed since the table's
	// last completed repair.
	StatusOverdue Status = "OVERDUE"
	// StatusLate means at least warning_ms, but less than error_ms, have
	// passed since the table's last completed repair.
	StatusLate Status = "LATE"
	// StatusOnTime means the table is due: at least interval_ms minus the
	// estimated repair time has passed since its last completed repair,
	// but less than warning_ms.
	StatusOnTime Status = "ON_TIME"
	// StatusCompleted means the table was repaired recently enough that
	// no further action is owed within this interval.
	StatusCompleted Status = "COMPLETED"
)
