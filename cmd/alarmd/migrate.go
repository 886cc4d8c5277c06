package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Alarmd/internal/config"
	"github.com/shaiso/Alarmd/internal/repo"
)

func newMigrateCmd(loadFn func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the trigger schema to every non-legacy shard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFn()
			if err != nil {
				return err
			}
			return migrate(cmd.Context(), cfg)
		},
	}
}

func migrate(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	for _, sc := range cfg.Shards {
		if sc.Legacy {
			logger.Info("skipping legacy shard", "shard", sc.Name)
			continue
		}

		pool, err := repo.NewPool(ctx, repo.PoolConfig{DSN: sc.WriteDSN, MaxConns: 2})
		if err != nil {
			return fmt.Errorf("shard %s: %w", sc.Name, err)
		}
		err = repo.Migrate(ctx, pool)
		pool.Close()
		if err != nil {
			return fmt.Errorf("shard %s: %w", sc.Name, err)
		}
		logger.Info("shard migrated", "shard", sc.Name, "task", repo.MigrationTask)
	}
	return nil
}
