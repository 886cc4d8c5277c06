package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// Hook пересчитывает напоминания событий после их создания или изменения.
//
// Двухфазный: сначала чтение без блокировок, и только если нашлось
// что-то в окне look-ahead, захват в транзакции на write-пуле.
type Hook struct {
	scheduler *Scheduler
	stores    StoreResolver
	registry  Registry
	lookAhead time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// HookConfig — конфигурация Hook.
type HookConfig struct {
	Scheduler *Scheduler
	Stores    StoreResolver
	Registry  Registry
	LookAhead time.Duration    // default: 35m
	Logger    *slog.Logger
	Now       func() time.Time // default: time.Now
}

// NewHook создаёт новый Hook.
func NewHook(cfg HookConfig) *Hook {
	lookAhead := cfg.LookAhead
	if lookAhead <= 0 {
		lookAhead = 35 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Hook{
		scheduler: cfg.Scheduler,
		stores:    cfg.Stores,
		registry:  cfg.Registry,
		lookAhead: lookAhead,
		logger:    logger.With("component", "event-hook"),
		now:       now,
	}
}

// CheckAndScheduleTasksForEvents пересчитывает напоминания событий аккаунта.
//
// Триггеры за пределами окна look-ahead не планируются, а их
// устаревшие задачи отменяются. Ошибки логируются и не возвращаются:
// следующий проход воркера подберёт всё пропущенное.
func (h *Hook) CheckAndScheduleTasksForEvents(ctx context.Context, events []domain.Event, tenantID, accountID int) {
	if len(events) == 0 {
		return
	}
	logger := telemetry.WithTenant(h.logger, tenantID, accountID)

	actions := h.registry.Actions()
	if len(actions) == 0 {
		return
	}

	store, err := h.stores.ForTenant(tenantID)
	if err != nil {
		logger.Error("failed to resolve trigger store", "error", err)
		return
	}

	ref := domain.AccountRef{TenantID: tenantID, AccountID: accountID}
	until := h.now().Add(h.lookAhead)

	// Фаза 1: чтение без блокировок
	var relevant []string
	for _, e := range events {
		triggers, err := store.ProbeEvent(ctx, ref, e.ID, actions)
		if err != nil {
			logger.Error("failed to probe event triggers", "event_id", e.ID, "error", err)
			return
		}

		inWindow := false
		for _, t := range triggers {
			if !t.Time().Before(until) {
				// событие изменилось: прежнее расписание могло устареть
				h.scheduler.CancelTask(ctx, domain.KeyOf(t))
				continue
			}
			inWindow = true
		}
		if inWindow {
			relevant = append(relevant, e.ID)
		}
	}
	if len(relevant) == 0 {
		return
	}

	// Фаза 2: захват в транзакции
	tx, err := store.Begin(ctx)
	if err != nil {
		logger.Error("failed to begin lock transaction", "error", err)
		return
	}

	var (
		locked []*domain.LockedTrigger
		// событие могло уйти за окно между фазами
		moved []*domain.Trigger
	)
	cancelMoved := func() {
		for _, t := range moved {
			h.scheduler.CancelTask(ctx, domain.KeyOf(t))
		}
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// сначала откат: снятие блокировки ждало бы строк транзакции
		if err := tx.Rollback(ctx); err != nil {
			logger.Error("failed to rollback lock transaction", "error", err)
		}
		for _, lt := range locked {
			lt.Unlock(ctx)
		}
		cancelMoved()
	}()

	for _, eventID := range relevant {
		lts, beyond, err := tx.LockEvent(ctx, ref, eventID, until, actions)
		if err != nil {
			logger.Error("failed to lock event triggers", "event_id", eventID, "error", err)
			return
		}
		locked = append(locked, lts...)
		moved = append(moved, beyond...)
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("failed to commit lock transaction", "error", err)
		return
	}
	committed = true
	telemetry.TriggersLocked.Add(float64(len(locked)))
	cancelMoved()

	// Планирование после commit: сработавшая сразу задача
	// должна видеть свой claim в хранилище.
	scheduled := 0
	for _, lt := range locked {
		if err := h.scheduler.ScheduleTask(ctx, lt.Key(), lt); err == nil {
			scheduled++
		}
	}

	logger.Debug("event alarms rescheduled",
		"events", len(events),
		"locked", len(locked),
		"scheduled", scheduled,
	)
}

// CancelAll отменяет задачи удалённых событий.
func (h *Hook) CancelAll(ctx context.Context, tenantID, accountID int, eventIDs ...string) int {
	return h.scheduler.CancelAll(ctx, tenantID, accountID, eventIDs...)
}
