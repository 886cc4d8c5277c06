package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shaiso/Alarmd/internal/delivery"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// Shard — хранилище шарда, обслуживаемое циклом.
type Shard interface {
	delivery.Store

	// Shard возвращает имя шарда.
	Shard() string

	// IsApplicable проверяет, выполнена ли на шарде миграция воркера.
	IsApplicable(ctx context.Context) (bool, error)
}

// Worker — один проход доставки по шарду.
type Worker interface {
	Run(ctx context.Context, shard string, store delivery.Store) (delivery.Result, error)
}

// Результаты прохода для alarmd_worker_runs_total.
const (
	resultOK      = "ok"
	resultEmpty   = "empty"
	resultSkipped = "skipped"
	resultError   = "error"
)

// Runner запускает воркер по расписанию.
type Runner struct {
	schedule cron.Schedule
	worker   Worker
	shards   []Shard
	logger   *slog.Logger
}

// Config — конфигурация Runner.
type Config struct {
	Schedule string // cron-выражение (default: "*/30 * * * *")
	Worker   Worker
	Shards   []Shard
	Logger   *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) (*Runner, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = "*/30 * * * *"
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		schedule: schedule,
		worker:   cfg.Worker,
		shards:   cfg.Shards,
		logger:   logger.With("component", "maintenance"),
	}, nil
}

// RunOnce выполняет один цикл по всем шардам.
// Возвращает объединённые ошибки шардов.
func (r *Runner) RunOnce(ctx context.Context) error {
	var errs []error
	for _, shard := range r.shards {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runShard(ctx, shard); err != nil {
			errs = append(errs, fmt.Errorf("shard %s: %w", shard.Shard(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) runShard(ctx context.Context, shard Shard) error {
	name := shard.Shard()
	logger := telemetry.WithShard(r.logger, name)

	applicable, err := shard.IsApplicable(ctx)
	if err != nil {
		telemetry.WorkerRuns.WithLabelValues(name, resultError).Inc()
		logger.Error("failed to check shard eligibility", "error", err)
		return err
	}
	if !applicable {
		telemetry.WorkerRuns.WithLabelValues(name, resultSkipped).Inc()
		logger.Debug("delivery worker migration missing, skipping shard")
		return nil
	}

	res, err := r.worker.Run(ctx, name, shard)
	switch {
	case err != nil:
		telemetry.WorkerRuns.WithLabelValues(name, resultError).Inc()
		return err
	case res.Locked == 0:
		telemetry.WorkerRuns.WithLabelValues(name, resultEmpty).Inc()
	default:
		telemetry.WorkerRuns.WithLabelValues(name, resultOK).Inc()
	}
	return nil
}

// Start выполняет цикл сразу и далее по расписанию до отмены контекста.
// Ошибки циклов логируются в RunOnce и не останавливают Runner.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("maintenance runner started", "shards", len(r.shards))

	for {
		started := time.Now()
		if err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Warn("maintenance cycle finished with errors", "error", err)
		}
		r.logger.Debug("maintenance cycle completed", "took", time.Since(started))

		timer := time.NewTimer(nextRun(r.schedule, time.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("maintenance runner stopped")
			return
		case <-timer.C:
		}
	}
}
