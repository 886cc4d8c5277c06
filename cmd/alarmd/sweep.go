package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Alarmd/internal/config"
	"github.com/shaiso/Alarmd/internal/maintenance"
	"github.com/shaiso/Alarmd/internal/mq"
	"github.com/shaiso/Alarmd/internal/notify"
)

func newSweepCmd(loadFn func() (*config.Config, error)) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one delivery cycle over all shards",
		Long: "Runs one delivery cycle over all shards. With --wait the command " +
			"stays alive until every picked-up alarm is delivered; otherwise the " +
			"picked-up alarms are returned to the store unclaimed.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFn()
			if err != nil {
				return err
			}
			return sweep(cmd.Context(), cfg, wait)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", true, "Wait until scheduled alarms are delivered")

	return cmd
}

func sweep(ctx context.Context, cfg *config.Config, wait bool) error {
	logger := newLogger(cfg)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var publisher notify.Publisher
	if conn := a.connectMQ(ctx); conn != nil {
		publisher = mq.NewPublisher(conn, logger)
	}

	registry, err := a.buildRegistry(publisher)
	if err != nil {
		return err
	}
	scheduler, worker, _ := a.newDelivery(registry)
	defer shutdown(scheduler, logger)

	runner, err := maintenance.New(maintenance.Config{
		Schedule: cfg.Delivery.Schedule,
		Worker:   worker,
		Shards:   a.maintenanceShards(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	a.runKeepers(ctx)
	cycleErr := runner.RunOnce(ctx)

	if wait {
		logger.Info("waiting for scheduled alarms", "tasks", scheduler.Len())
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		// Idle учитывает и сработавшие задачи, чья доставка ещё идёт
		for !scheduler.Idle() {
			select {
			case <-ctx.Done():
				return cycleErr
			case <-ticker.C:
			}
		}
	}
	return cycleErr
}
