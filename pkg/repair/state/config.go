// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Package state implements the immutable per-table repair state and
// snapshot model: what a table's vnodes look like, how they group into
// replica repair groups, and the configuration that governs when a table
// is due for repair.
package state

// FullRepair is the sentinel value for RepairConfig.TargetRepairSizeBytes
// meaning "don't target a byte size, repair the whole ring in one pass."
const FullRepair int64 = -1

// RepairType distinguishes how a table's vnode states are expected to be
// grouped and repaired. It is recorded on RepairConfig and passed through
// to the injected RepairStateFactory; this module does not itself branch
// on it; grouping remains entirely the factory/collaborator's concern
// (see DESIGN.md).
type RepairType int

// Supported repair types.
const (
	RepairTypeVnode RepairType = iota
	RepairTypeParallelVnode
	RepairTypeIncremental
)

// String implements fmt.Stringer.
func (t RepairType) String() string {
	switch t {
	case RepairTypeVnode:
		return "vnode"
	case RepairTypeParallelVnode:
		return "parallel_vnode"
	case RepairTypeIncremental:
		return "incremental"
	default:
		return "unknown"
	}
}

// TableRef identifies a table within a keyspace. It is comparable and
// usable as a map key alongside a RepairConfig.
type TableRef struct {
	Keyspace string
	Table    string
}

// String returns "keyspace.table", the form used in log lines and the
// failure logger's message format.
func (t TableRef) String() string {
	return t.Keyspace + "." + t.Table
}

// RepairConfig carries the per-table scheduling thresholds and
// partitioning target. RepairConfig is comparable, so (TableRef,
// RepairConfig) pairs can be used directly as cache keys.
type RepairConfig struct {
	IntervalMs            int64
	WarningMs             int64
	ErrorMs               int64
	TargetRepairSizeBytes int64
	RepairType            RepairType
}

// CacheKey identifies a RepairState entry in RepairStateCache.
type CacheKey struct {
	Table  TableRef
	Config RepairConfig
}
