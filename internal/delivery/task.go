package delivery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/notify"
	"github.com/shaiso/Alarmd/internal/repo"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// Состояния задачи. Из pending возможен ровно один переход:
// в fired (сработал таймер) или в cancelled (отмена).
// Выигравший переход отвечает за разблокировку триггера.
const (
	taskPending int32 = iota
	taskFired
	taskCancelled
)

// scheduledTask — запланированная доставка одного триггера.
type scheduledTask struct {
	key        domain.Key
	locked     *domain.LockedTrigger
	store      Store
	dispatcher notify.Dispatcher
	fireAt     time.Time
	sched      *Scheduler

	state atomic.Int32

	mu     sync.Mutex
	handle Handle
}

func (t *scheduledTask) setHandle(h Handle) {
	t.mu.Lock()
	t.handle = h
	t.mu.Unlock()
}

// cancel переводит задачу в cancelled и останавливает таймер.
// Возвращает false, если задача уже сработала или отменена.
// Уже начатую доставку отмена не прерывает.
func (t *scheduledTask) cancel() bool {
	if !t.state.CompareAndSwap(taskPending, taskCancelled) {
		return false
	}

	t.mu.Lock()
	h := t.handle
	t.mu.Unlock()
	if h != nil {
		h.Stop()
	}
	return true
}

// run — обработчик таймера.
func (t *scheduledTask) run() {
	ctx, cancel := t.sched.deliveryContext()
	defer cancel()

	if !t.sched.start(t) {
		// планировщик остановлен: задачу из индекса вернёт Cancel,
		// а убранную через Remove разблокируем здесь
		if t.cancel() {
			t.locked.Unlock(ctx)
		}
		return
	}
	defer t.sched.finish()
	t.sched.removeTask(t)

	outcome := t.deliver(ctx)
	telemetry.DeliveriesTotal.WithLabelValues(t.locked.Action().String(), outcome).Inc()
}

// deliver проверяет claim, отправляет уведомление и завершает триггер.
// Триггер разблокируется ровно один раз на любом исходе; после
// Complete разблокировка в хранилище ничего не меняет.
func (t *scheduledTask) deliver(ctx context.Context) string {
	logger := telemetry.WithKey(t.sched.logger, t.key)
	defer t.locked.Unlock(ctx)

	valid, err := t.store.Verify(ctx, t.locked)
	if err != nil {
		logger.Error("failed to verify claim", "error", err)
		return telemetry.OutcomeFailed
	}
	if !valid {
		logger.Warn("claim lost before delivery, skipping")
		return telemetry.OutcomeStale
	}

	outcome := telemetry.OutcomeDelivered
	err = t.dispatcher.Deliver(ctx, notify.NewNotification(t.locked.Trigger))
	switch {
	case errors.Is(err, notify.ErrRateLimited):
		logger.Warn("delivery rate limited, dropping", "error", err)
		outcome = telemetry.OutcomeRateLimited
	case err != nil:
		logger.Error("delivery failed", "action", t.locked.Action(), "error", err)
		return telemetry.OutcomeFailed
	}

	if err := t.store.Complete(ctx, t.locked); err != nil {
		if errors.Is(err, repo.ErrClaimLost) {
			logger.Warn("trigger completed by another claim", "error", err)
		} else {
			logger.Error("failed to complete trigger", "error", err)
		}
		return outcome
	}

	logger.Info("alarm delivered", "action", t.locked.Action(), "outcome", outcome)
	return outcome
}
