package repo

import "errors"

// Общие ошибки хранилища триггеров.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrClaimLost — строка больше не принадлежит этому claim
	// (перехвачена другим узлом после overdue или уже удалена).
	ErrClaimLost = errors.New("claim lost")

	// ErrNoShard — для тенанта не настроен шард.
	ErrNoShard = errors.New("no shard for tenant")

	// ErrUnsupportedStorage — хранилище тенанта не поддерживает триггеры
	// (legacy-шард без таблицы alarm_trigger).
	ErrUnsupportedStorage = errors.New("storage does not support alarm triggers")
)
