package notify

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
)

// Notification — данные напоминания, передаваемые транспорту.
type Notification struct {
	TenantID     int           `json:"tenant_id"`
	AccountID    int           `json:"account_id"`
	UserID       int           `json:"user_id"`
	Action       domain.Action `json:"action"`
	AlarmID      int           `json:"alarm_id"`
	EventID      string        `json:"event_id"`
	RecurrenceID *string       `json:"recurrence_id,omitempty"`
	Folder       string        `json:"folder,omitempty"`
	DueAt        time.Time     `json:"due_at"`
	Timezone     string        `json:"timezone"`
}

// NewNotification собирает уведомление из триггера.
func NewNotification(t *domain.Trigger) *Notification {
	return &Notification{
		TenantID:     t.Ref.TenantID,
		AccountID:    t.Ref.AccountID,
		UserID:       t.UserID(),
		Action:       t.Action(),
		AlarmID:      t.AlarmID(),
		EventID:      t.EventID(),
		RecurrenceID: t.RecurrenceID(),
		Folder:       t.Folder(),
		DueAt:        t.Time().In(t.Location()),
		Timezone:     t.Location().String(),
	}
}

// Dispatcher доставляет уведомления одного типа.
type Dispatcher interface {
	// Action — тип уведомления, который обслуживает диспетчер.
	Action() domain.Action

	// Shift — насколько раньше срока нужно начать доставку.
	Shift() time.Duration

	// Deliver отправляет уведомление.
	Deliver(ctx context.Context, n *Notification) error
}

// Registry — реестр диспетчеров по типу уведомления.
type Registry struct {
	mu          sync.RWMutex
	dispatchers map[domain.Action]Dispatcher
}

// NewRegistry создаёт реестр с переданными диспетчерами.
func NewRegistry(dispatchers ...Dispatcher) (*Registry, error) {
	r := &Registry{dispatchers: make(map[domain.Action]Dispatcher)}
	for _, d := range dispatchers {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register добавляет диспетчер.
func (r *Registry) Register(d Dispatcher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dispatchers[d.Action()]; ok {
		return fmt.Errorf("%s: %w", d.Action(), ErrDuplicateDispatcher)
	}
	r.dispatchers[d.Action()] = d
	return nil
}

// Resolve возвращает диспетчер для action.
func (r *Registry) Resolve(action domain.Action) (Dispatcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.dispatchers[action]
	return d, ok
}

// Actions возвращает зарегистрированные типы в отсортированном порядке.
func (r *Registry) Actions() []domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	actions := make([]domain.Action, 0, len(r.dispatchers))
	for a := range r.dispatchers {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}
