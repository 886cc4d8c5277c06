package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Alarmd/internal/delivery"
	"github.com/shaiso/Alarmd/internal/domain"
)

// TaskLister — источник снимка запланированных задач.
type TaskLister interface {
	Snapshot() []delivery.TaskInfo
}

// EventHook пересчитывает напоминания изменённых событий.
type EventHook interface {
	CheckAndScheduleTasksForEvents(ctx context.Context, events []domain.Event, tenantID, accountID int)
}

// Canceller отменяет задачи удалённых событий.
type Canceller interface {
	CancelAll(ctx context.Context, tenantID, accountID int, eventIDs ...string) int
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	tasks     TaskLister
	hook      EventHook
	canceller Canceller
	stores    delivery.StoreResolver
	logger    *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Tasks     TaskLister
	Hook      EventHook
	Canceller Canceller
	// Stores используется для проверки, что тенант обслуживается.
	// Может быть nil.
	Stores delivery.StoreResolver
	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		tasks:     cfg.Tasks,
		hook:      cfg.Hook,
		canceller: cfg.Canceller,
		stores:    cfg.Stores,
		logger:    logger,
	}
}
