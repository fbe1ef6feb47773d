// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

package state

import (
	"go.uber.org/zap"
)

// DefaultFactory builds tableRepairState instances directly from a single
// shared RepairHistory and TableTopology collaborator pair. It is the
// RepairStateFactory named in spec.md §6 for the common case where one
// history/topology implementation serves every table.
type DefaultFactory struct {
	History  RepairHistory
	Topology TableTopology
	Log      *zap.Logger
}

// NewDefaultFactory constructs a DefaultFactory.
func NewDefaultFactory(history RepairHistory, topology TableTopology, log *zap.Logger) *DefaultFactory {
	return &DefaultFactory{History: history, Topology: topology, Log: log}
}

// Create implements Factory.
func (f *DefaultFactory) Create(table TableRef, config RepairConfig) RepairState {
	return NewRepairState(table, config, f.History, f.Topology, f.Log.With(zap.String("table", table.String())))
}
