package delivery

import (
	"errors"
	"time"
)

// Handle — отменяемый запланированный вызов.
type Handle interface {
	// Stop отменяет вызов. Возвращает true, если вызов ещё не начался.
	Stop() bool
}

// Timer планирует отложенные вызовы.
type Timer interface {
	Schedule(fn func(), delay time.Duration) (Handle, error)
}

// RuntimeTimer — Timer на таймерах рантайма Go.
type RuntimeTimer struct{}

func (RuntimeTimer) Schedule(fn func(), delay time.Duration) (Handle, error) {
	if fn == nil {
		return nil, errors.New("schedule: nil func")
	}
	return time.AfterFunc(max(delay, 0), fn), nil
}
