package delivery

import "errors"

var (
	// ErrNoDispatcher — для action триггера не зарегистрирован диспетчер.
	ErrNoDispatcher = errors.New("no dispatcher for action")

	// ErrClosed — планировщик остановлен.
	ErrClosed = errors.New("scheduler closed")
)
