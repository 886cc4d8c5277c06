package domain

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Lock — захваченная блокировка триггера в хранилище.
type Lock interface {
	// Release снимает блокировку. Вызывается не более одного раза.
	Release(ctx context.Context) error
}

// LockFunc адаптирует функцию к интерфейсу Lock.
type LockFunc func(ctx context.Context) error

func (f LockFunc) Release(ctx context.Context) error {
	return f(ctx)
}

type noopLock struct{}

func (noopLock) Release(context.Context) error { return nil }

// LockedTrigger — триггер вместе с доказательством владения.
//
// Единственная форма, в которой вызывающий код может действовать
// над наступившим триггером. Каждый LockedTrigger, полученный из
// хранилища, должен быть разблокирован ровно один раз на любом пути
// выполнения.
type LockedTrigger struct {
	*Trigger

	lock     Lock
	logger   *slog.Logger
	once     sync.Once
	unlocked atomic.Bool
}

// NewLockedTrigger оборачивает триггер и захваченную блокировку.
func NewLockedTrigger(t *Trigger, lock Lock, logger *slog.Logger) *LockedTrigger {
	if lock == nil {
		lock = noopLock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LockedTrigger{Trigger: t, lock: lock, logger: logger}
}

// NewUnlocked оборачивает результат пробного чтения без блокировки.
func NewUnlocked(t *Trigger) *LockedTrigger {
	return NewLockedTrigger(t, noopLock{}, nil)
}

// Key возвращает идентичность триггера.
func (l *LockedTrigger) Key() Key {
	return KeyOf(l.Trigger)
}

// ClaimID возвращает токен блокировки или uuid.Nil.
func (l *LockedTrigger) ClaimID() uuid.UUID {
	if c := l.Trigger.Claim(); c != nil {
		return *c
	}
	return uuid.Nil
}

// Unlock снимает блокировку ровно один раз.
// Ошибки логируются, а не возвращаются. Возвращает true,
// если именно этот вызов выполнил разблокировку.
func (l *LockedTrigger) Unlock(ctx context.Context) bool {
	released := false
	l.once.Do(func() {
		released = true
		l.unlocked.Store(true)
		if err := l.lock.Release(ctx); err != nil {
			l.logger.Error("failed to unlock trigger",
				"key", l.Key().String(),
				"error", err,
			)
		}
	})
	return released
}

// Unlocked сообщает, была ли блокировка уже снята.
func (l *LockedTrigger) Unlocked() bool {
	return l.unlocked.Load()
}
