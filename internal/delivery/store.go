package delivery

import (
	"context"
	"time"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/notify"
	"github.com/shaiso/Alarmd/internal/repo"
)

// Store — хранилище триггеров одного шарда.
type Store interface {
	// ProbeDue читает кандидатов без блокировки.
	ProbeDue(ctx context.Context, until, overdueBefore time.Time, actions []domain.Action) ([]*domain.Trigger, error)

	// LockDue захватывает кандидатов. Авторитетен только этот результат.
	LockDue(ctx context.Context, until, overdueBefore time.Time, actions []domain.Action) ([]*domain.LockedTrigger, error)

	// ProbeEvent читает незахваченные триггеры события без блокировки.
	ProbeEvent(ctx context.Context, ref domain.AccountRef, eventID string, actions []domain.Action) ([]*domain.Trigger, error)

	// Begin открывает транзакцию захвата триггеров событий.
	Begin(ctx context.Context) (repo.LockTx, error)

	// DropProcessingStatus возвращает триггеры в хранилище незахваченными.
	DropProcessingStatus(ctx context.Context, triggers map[domain.AccountRef][]*domain.Trigger) error

	// Complete удаляет доставленный триггер.
	Complete(ctx context.Context, lt *domain.LockedTrigger) error

	// Verify проверяет, что claim триггера всё ещё действителен.
	Verify(ctx context.Context, lt *domain.LockedTrigger) (bool, error)
}

// StoreResolver находит хранилище шарда тенанта.
type StoreResolver interface {
	ForTenant(tenantID int) (Store, error)
}

// ResolverFunc адаптирует функцию к StoreResolver.
type ResolverFunc func(tenantID int) (Store, error)

func (f ResolverFunc) ForTenant(tenantID int) (Store, error) {
	return f(tenantID)
}

// Registry — реестр диспетчеров уведомлений.
type Registry interface {
	Resolve(action domain.Action) (notify.Dispatcher, bool)
	Actions() []domain.Action
}
