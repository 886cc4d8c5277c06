package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/notify"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// Scheduler владеет индексом Key → запланированная задача.
//
// Все изменения индекса атомарны по ключу; для одного ключа
// побеждает последний вызов ScheduleTask. Индекс видит только
// задачи этого узла.
type Scheduler struct {
	registry        Registry
	stores          StoreResolver
	timer           Timer
	logger          *slog.Logger
	now             func() time.Time
	deliveryTimeout time.Duration

	index sync.Map // domain.Key → *scheduledTask
	size  atomic.Int64

	// mu упорядочивает установку задач и старт доставок относительно
	// Cancel: после closed ни одна задача не попадает в индекс
	// и ни одна доставка не начинается.
	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup
	active   atomic.Int64
}

// Config — конфигурация Scheduler.
type Config struct {
	Registry        Registry
	Stores          StoreResolver
	Timer           Timer            // default: RuntimeTimer
	Logger          *slog.Logger
	Now             func() time.Time // default: time.Now
	DeliveryTimeout time.Duration    // default: 1m
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	timer := cfg.Timer
	if timer == nil {
		timer = RuntimeTimer{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	return &Scheduler{
		registry:        cfg.Registry,
		stores:          cfg.Stores,
		timer:           timer,
		logger:          logger.With("component", "delivery-scheduler"),
		now:             now,
		deliveryTimeout: timeout,
	}
}

// FireDelay — задержка до запуска доставки: due − now − shift,
// не меньше нуля.
func FireDelay(due, now time.Time, shift time.Duration) time.Duration {
	return max(due.Sub(now)-shift, 0)
}

// ScheduleTask планирует доставку захваченного триггера.
//
// Scheduler забирает владение lt: при любой ошибке до установки
// таймера триггер разблокируется, а ошибка логируется и возвращается.
// Существующая задача для key отменяется.
func (s *Scheduler) ScheduleTask(ctx context.Context, key domain.Key, lt *domain.LockedTrigger) error {
	logger := telemetry.WithKey(s.logger, key)

	fail := func(err error) error {
		logger.Error("failed to schedule delivery", "action", lt.Action(), "error", err)
		lt.Unlock(ctx)
		return err
	}

	dispatcher, ok := s.registry.Resolve(lt.Action())
	if !ok {
		return fail(fmt.Errorf("%s: %w", lt.Action(), ErrNoDispatcher))
	}

	store, err := s.stores.ForTenant(key.TenantID())
	if err != nil {
		return fail(fmt.Errorf("resolve store: %w", err))
	}

	now := s.now()
	delay := FireDelay(lt.Time(), now, dispatcher.Shift())
	task := &scheduledTask{
		key:        key,
		locked:     lt,
		store:      store,
		dispatcher: dispatcher,
		fireAt:     now.Add(delay),
		sched:      s,
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fail(ErrClosed)
	}

	// Новая задача заменяет старую атомарно: две задачи на один
	// ключ в индексе не сосуществуют.
	prev, replaced := s.index.Swap(key, task)
	if !replaced {
		s.grow(1)
	}

	handle, err := s.timer.Schedule(task.run, delay)
	if err == nil {
		task.setHandle(handle)
	} else if s.index.CompareAndDelete(key, task) {
		s.grow(-1)
	}
	s.mu.RUnlock()

	if replaced {
		s.cancelTask(ctx, prev.(*scheduledTask))
		logger.Debug("replaced scheduled delivery")
	}

	if err != nil {
		if task.cancel() {
			return fail(fmt.Errorf("register timer: %w", err))
		}
		logger.Error("failed to register timer", "error", err)
		return err
	}

	logger.Debug("delivery scheduled",
		"action", lt.Action(),
		"due", lt.Time(),
		"delay", delay,
	)
	return nil
}

// CancelTask отменяет задачу для key. Отсутствие задачи — не ошибка.
// Отменённая до срабатывания задача разблокирует свой триггер.
func (s *Scheduler) CancelTask(ctx context.Context, key domain.Key) bool {
	v, ok := s.index.LoadAndDelete(key)
	if !ok {
		return false
	}
	s.grow(-1)
	s.cancelTask(ctx, v.(*scheduledTask))

	telemetry.WithKey(s.logger, key).Debug("delivery cancelled")
	return true
}

func (s *Scheduler) cancelTask(ctx context.Context, task *scheduledTask) {
	if task.cancel() {
		task.locked.Unlock(ctx)
	}
}

// CancelAll отменяет задачи всех алармов перечисленных событий.
// Возвращает количество отменённых задач.
func (s *Scheduler) CancelAll(ctx context.Context, tenantID, accountID int, eventIDs ...string) int {
	cancelled := 0
	s.index.Range(func(k, v any) bool {
		key := k.(domain.Key)
		if !slices.ContainsFunc(eventIDs, func(id string) bool { return key.BelongsTo(tenantID, accountID, id) }) {
			return true
		}
		if s.index.CompareAndDelete(key, v) {
			s.grow(-1)
			s.cancelTask(ctx, v.(*scheduledTask))
			cancelled++
		}
		return true
	})

	if cancelled > 0 {
		telemetry.WithTenant(s.logger, tenantID, accountID).Debug("deliveries cancelled for events",
			"events", eventIDs,
			"count", cancelled,
		)
	}
	return cancelled
}

// Remove убирает ключ из индекса, не отменяя таймер.
// Для диспетчеров, которые сами обнаружили устаревшую запись.
func (s *Scheduler) Remove(key domain.Key) bool {
	if _, ok := s.index.LoadAndDelete(key); ok {
		s.grow(-1)
		return true
	}
	return false
}

// removeTask убирает из индекса именно эту задачу.
func (s *Scheduler) removeTask(task *scheduledTask) {
	if s.index.CompareAndDelete(task.key, task) {
		s.grow(-1)
	}
}

// start отмечает начало доставки сработавшей задачи.
// Возвращает false, если задача отменена или планировщик остановлен.
func (s *Scheduler) start(task *scheduledTask) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed || !task.state.CompareAndSwap(taskPending, taskFired) {
		return false
	}
	s.inflight.Add(1)
	s.active.Add(1)
	return true
}

func (s *Scheduler) finish() {
	s.active.Add(-1)
	s.inflight.Done()
}

// Cancel останавливает планировщик: очищает индекс, отменяет таймеры
// и возвращает несработавшие триггеры в хранилище, сгруппировав
// их по тенантам. Затем ждёт уже начатые доставки, но не дольше ctx.
// Ошибки логируются; восстановление в худшем случае выполнит
// overdue-проход другого узла.
func (s *Scheduler) Cancel(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	byTenant := make(map[int][]*scheduledTask)
	s.index.Range(func(k, v any) bool {
		if s.index.CompareAndDelete(k, v) {
			s.grow(-1)
			task := v.(*scheduledTask)
			if task.cancel() {
				byTenant[task.key.TenantID()] = append(byTenant[task.key.TenantID()], task)
			}
		}
		return true
	})

	total := 0
	for tenantID, tasks := range byTenant {
		total += len(tasks)

		grouped := make(map[domain.AccountRef][]*domain.Trigger)
		for _, task := range tasks {
			ref := task.key.Ref()
			grouped[ref] = append(grouped[ref], task.locked.Trigger)
		}

		// все задачи тенанта разрешены через один шард
		if err := tasks[0].store.DropProcessingStatus(ctx, grouped); err != nil {
			telemetry.UnlockFailures.Inc()
			s.logger.Error("failed to drop processing status",
				"tenant_id", tenantID,
				"triggers", len(tasks),
				"error", err,
			)
		}

		for _, task := range tasks {
			task.locked.Unlock(ctx)
		}
	}

	if err := s.waitInFlight(ctx); err != nil {
		s.logger.Warn("deliveries still in flight", "count", s.InFlight(), "error", err)
	}
	s.logger.Info("delivery scheduler stopped", "released", total)
}

// waitInFlight ждёт завершения начатых доставок.
// Вызывается только после closed: новые доставки уже не начинаются.
func (s *Scheduler) waitInFlight(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight возвращает количество выполняющихся доставок.
func (s *Scheduler) InFlight() int {
	return int(s.active.Load())
}

// Idle сообщает, что нет ни запланированных, ни выполняющихся доставок.
// Сработавшая задача сначала учитывается в InFlight и только потом
// покидает индекс.
func (s *Scheduler) Idle() bool {
	return s.Len() == 0 && s.InFlight() == 0
}

// Len возвращает количество запланированных задач.
func (s *Scheduler) Len() int {
	return int(s.size.Load())
}

// TaskInfo — описание запланированной задачи.
type TaskInfo struct {
	Key    domain.Key
	Action domain.Action
	DueAt  time.Time
	FireAt time.Time
}

// Snapshot возвращает запланированные задачи, отсортированные по ключу.
func (s *Scheduler) Snapshot() []TaskInfo {
	var tasks []TaskInfo
	s.index.Range(func(_, v any) bool {
		task := v.(*scheduledTask)
		tasks = append(tasks, TaskInfo{
			Key:    task.key,
			Action: task.locked.Action(),
			DueAt:  task.locked.Time(),
			FireAt: task.fireAt,
		})
		return true
	})
	slices.SortFunc(tasks, func(a, b TaskInfo) int { return a.Key.Compare(b.Key) })
	return tasks
}

func (s *Scheduler) grow(delta int64) {
	telemetry.TasksScheduled.Set(float64(s.size.Add(delta)))
}

// deliveryContext — контекст сработавшей задачи. Не зависит от
// вызывавшего ScheduleTask: таймер срабатывает позже.
func (s *Scheduler) deliveryContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.deliveryTimeout)
}

var _ Registry = (*notify.Registry)(nil)
