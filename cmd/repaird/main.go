// Copyright (C) 2019 Storj Labs, Inc.
// See LICENSE for copying information.

// Command repaird runs the repair state cache, metrics supplier, and
// failure logger for a fixed set of tables, logging each table's ready
// tasks without ever executing them. Execution is an explicit
// external responsibility; this daemon only decides what is ready.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ringrepair/orchestrator/pkg/repair"
	"github.com/ringrepair/orchestrator/pkg/repair/faillog"
	"github.com/ringrepair/orchestrator/pkg/repair/metrics/redissink"
	"github.com/ringrepair/orchestrator/pkg/repair/scheduler"
	"github.com/ringrepair/orchestrator/pkg/repair/state"
)

// runConfig is the daemon's top-level configuration, bound from flags and
// environment by viper. Its fields keep the same help/default tag
// vocabulary as every other Config in this module, even though viper
// (rather than reflection over those tags) is what actually populates
// them here.
type runConfig struct {
	RedisURL   string `mapstructure:"redis-url" help:"connection string for the gauge sink redis instance" default:"redis://localhost:6379/0"`
	GaugeKey   string `mapstructure:"gauge-key-prefix" help:"key prefix used when writing gauges to redis" default:"ringrepair"`
	Keyspace   string `mapstructure:"keyspace" help:"keyspace of the table to schedule repairs for"`
	Table      string `mapstructure:"table" help:"name of the table to schedule repairs for"`
	IntervalMs int64  `mapstructure:"interval-ms" help:"target repair interval in milliseconds" default:"86400000"`
	WarningMs  int64  `mapstructure:"warning-ms" help:"warning threshold in milliseconds" default:"259200000"`
	ErrorMs    int64  `mapstructure:"error-ms" help:"error threshold in milliseconds" default:"604800000"`
}

// newRootCmd builds the root command. ctx is closed over rather than
// read from cmd.Context(), since the cobra version this module depends
// on predates Command.Context/ExecuteContext.
func newRootCmd(ctx context.Context) *cobra.Command {
	cfg := &runConfig{}

	cmd := &cobra.Command{
		Use:   "repaird",
		Short: "Schedule repairs for a token-partitioned wide-column table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.Unmarshal(cfg); err != nil {
				return err
			}
			return run(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("redis-url", "redis://localhost:6379/0", "connection string for the gauge sink redis instance")
	flags.String("gauge-key-prefix", "ringrepair", "key prefix used when writing gauges to redis")
	flags.String("keyspace", "", "keyspace of the table to schedule repairs for")
	flags.String("table", "", "name of the table to schedule repairs for")
	flags.Int64("interval-ms", 86400000, "target repair interval in milliseconds")
	flags.Int64("warning-ms", 259200000, "warning threshold in milliseconds")
	flags.Int64("error-ms", 604800000, "error threshold in milliseconds")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("REPAIRD")
	viper.AutomaticEnv()

	return cmd
}

func run(ctx context.Context, cfg *runConfig) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	sink, err := redissink.New(cfg.RedisURL, cfg.GaugeKey)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	factory, history, topology, policy, storage, base, meters := wireStubCollaborators(log)

	orch := repair.New(factory, sink, meters, log, repair.DefaultConfig())

	table := state.TableRef{Keyspace: cfg.Keyspace, Table: cfg.Table}
	config := state.RepairConfig{
		IntervalMs: cfg.IntervalMs,
		WarningMs:  cfg.WarningMs,
		ErrorMs:    cfg.ErrorMs,
		TargetRepairSizeBytes: state.FullRepair,
		RepairType:            state.RepairTypeVnode,
	}

	job := orch.RegisterTable(table, config, "repaird-"+table.String(), scheduler.Collaborators{
		Storage: storage,
		Base:    base,
		Policy:  policy,
		History: history,
	})
	_ = topology // retained on the factory, not the job; named here for clarity at the call site

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.Start(ctx)
	log.Info("repaird started", zap.String("table", table.String()))

	go reportReadyTasks(ctx, log, job)

	<-ctx.Done()
	log.Info("repaird shutting down")
	return orch.Close()
}

// reportReadyTasks logs every ready task once a minute, but never
// executes one: running a task against a live cluster
// is an explicit external responsibility (spec.md §1 Non-goals).
func reportReadyTasks(ctx context.Context, log *zap.Logger, job *scheduler.TableRepairJob) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logReadyTasks(ctx, log, job)
		}
	}
}

func logReadyTasks(ctx context.Context, log *zap.Logger, job *scheduler.TableRepairJob) {
	now := time.Now().UnixNano() / int64(time.Millisecond)

	status, err := job.Status(ctx, now)
	if err != nil {
		log.Warn("status check failed", zap.Error(err))
		return
	}
	if status == scheduler.StatusBlocked || status == scheduler.StatusCompleted {
		return
	}

	iter, err := job.Iterator(ctx)
	if err != nil {
		log.Warn("task iterator failed", zap.Error(err))
		return
	}
	for iter.Next() {
		task := iter.Task()
		log.Info("task ready",
			zap.String("job_id", task.JobID),
			zap.String("replica_set", task.Group.ReplicaSetID),
			zap.Int32("priority", task.Priority),
			zap.Int("ranges", len(task.Ranges)),
		)
	}
}

// wireStubCollaborators builds the smallest possible no-op collaborator
// set so the daemon can run end-to-end without an external topology or
// history backend wired in yet. A real deployment replaces every return
// value here with a client against its own cluster metadata service.
func wireStubCollaborators(log *zap.Logger) (state.Factory, state.RepairHistory, state.TableTopology, scheduler.TableRepairPolicy, scheduler.TableStorageStates, scheduler.BaseScheduler, faillog.MeterRegistry) {
	history := noopHistory{}
	topology := noopTopology{}
	factory := state.NewDefaultFactory(history, topology, log)
	return factory, history, topology, noopPolicy{}, noopStorage{}, noopScheduler{}, noopMeters{}
}

func main() {
	viper.SetConfigName("repaird")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	if err := newRootCmd(context.Background()).Execute(); err != nil {
		os.Exit(1)
	}
}
