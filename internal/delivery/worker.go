package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// State — шаг прохода воркера.
type State string

const (
	StateIdle  State = "IDLE"
	StateProbe State = "PROBE"
	StateLock  State = "LOCK"
	StateSpawn State = "SPAWN"
	StateError State = "ERROR"
)

// Result — итог одного прохода.
type Result struct {
	Probed    int
	Locked    int
	Scheduled int
	Failed    int
	// Last — последний достигнутый шаг (ERROR при ошибке).
	Last State
}

// Worker — периодическая точка входа: находит наступающие и брошенные
// триггеры шарда, захватывает их и передаёт планировщику.
type Worker struct {
	scheduler   *Scheduler
	registry    Registry
	lookAhead   time.Duration
	overdueWait time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	Scheduler   *Scheduler
	Registry    Registry
	LookAhead   time.Duration    // default: 35m
	OverdueWait time.Duration    // default: 10m
	Logger      *slog.Logger
	Now         func() time.Time // default: time.Now
}

// NewWorker создаёт новый Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	lookAhead := cfg.LookAhead
	if lookAhead <= 0 {
		lookAhead = 35 * time.Minute
	}
	overdueWait := cfg.OverdueWait
	if overdueWait <= 0 {
		overdueWait = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		scheduler:   cfg.Scheduler,
		registry:    cfg.Registry,
		lookAhead:   lookAhead,
		overdueWait: overdueWait,
		logger:      logger.With("component", "delivery-worker"),
		now:         now,
	}
}

// Run выполняет один проход IDLE → PROBE → LOCK → SPAWN → IDLE по шарду.
//
// Ошибка хранилища прерывает проход (повтор — в следующем цикле).
// Ошибки отдельных триггеров на шаге SPAWN проход не прерывают.
// Всё захваченное, но не переданное планировщику, разблокируется
// перед возвратом, в том числе при отмене контекста.
func (w *Worker) Run(ctx context.Context, shard string, store Store) (res Result, err error) {
	logger := telemetry.WithShard(w.logger, shard)
	res.Last = StateIdle

	defer func() {
		if err == nil {
			return
		}
		res.Last = StateError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Debug("delivery worker interrupted", "error", err)
			return
		}
		logger.Error("delivery worker failed", "error", err)
	}()

	actions := w.registry.Actions()
	if len(actions) == 0 {
		return res, nil
	}

	now := w.now()
	until := now.Add(w.lookAhead)
	overdueBefore := domain.OverdueBefore(now, w.overdueWait)

	// PROBE: дешёвое чтение без блокировок
	res.Last = StateProbe
	probed, err := store.ProbeDue(ctx, until, overdueBefore, actions)
	if err != nil {
		return res, fmt.Errorf("probe: %w", err)
	}
	res.Probed = len(probed)
	// реплика может отставать: проход на запись нужен, только если
	// хотя бы один триггер действительно можно захватить
	claimable := slices.ContainsFunc(probed, func(t *domain.Trigger) bool {
		return t.DueWithin(until, overdueBefore)
	})
	if !claimable {
		res.Last = StateIdle
		return res, nil
	}

	// LOCK: авторитетный проход с захватом
	res.Last = StateLock
	locked, err := store.LockDue(ctx, until, overdueBefore, actions)
	if err != nil {
		return res, fmt.Errorf("lock: %w", err)
	}
	res.Locked = len(locked)
	telemetry.TriggersLocked.Add(float64(len(locked)))

	// ближайшие триггеры планируются первыми
	slices.SortFunc(locked, func(a, b *domain.LockedTrigger) int {
		return domain.CompareByTime(a.Trigger, b.Trigger)
	})

	handed := 0
	defer func() {
		for _, lt := range locked[handed:] {
			lt.Unlock(ctx)
		}
	}()

	if len(locked) == 0 {
		res.Last = StateIdle
		return res, nil
	}

	// SPAWN: ScheduleTask забирает владение триггером в любом случае
	res.Last = StateSpawn
	for _, lt := range locked {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("spawn: %w", err)
		}

		handed++
		if err := w.scheduler.ScheduleTask(ctx, lt.Key(), lt); err != nil {
			res.Failed++
			continue
		}
		res.Scheduled++
	}

	logger.Info("delivery worker run completed",
		"probed", res.Probed,
		"locked", res.Locked,
		"scheduled", res.Scheduled,
		"failed", res.Failed,
	)
	res.Last = StateIdle
	return res, nil
}
