package feed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Alarmd/internal/domain"
	"github.com/shaiso/Alarmd/internal/mq"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// EventHook пересчитывает напоминания изменённых событий.
type EventHook interface {
	CheckAndScheduleTasksForEvents(ctx context.Context, events []domain.Event, tenantID, accountID int)
}

// Canceller отменяет задачи удалённых событий.
type Canceller interface {
	CancelAll(ctx context.Context, tenantID, accountID int, eventIDs ...string) int
}

// EventsChanged — payload сообщений event.created|updated|deleted.
type EventsChanged struct {
	TenantID  int      `json:"tenant_id"`
	AccountID int      `json:"account_id"`
	EventIDs  []string `json:"event_ids"`
	Folder    string   `json:"folder,omitempty"`
}

// Validate проверяет payload.
func (p EventsChanged) Validate() error {
	if p.TenantID <= 0 {
		return fmt.Errorf("tenant_id must be positive, got %d", p.TenantID)
	}
	if p.AccountID <= 0 {
		return fmt.Errorf("account_id must be positive, got %d", p.AccountID)
	}
	if len(p.EventIDs) == 0 {
		return fmt.Errorf("event_ids is empty")
	}
	for i, id := range p.EventIDs {
		if id == "" {
			return fmt.Errorf("event_ids[%d] is empty", i)
		}
	}
	return nil
}

// Events возвращает события payload.
func (p EventsChanged) Events() []domain.Event {
	events := make([]domain.Event, 0, len(p.EventIDs))
	for _, id := range p.EventIDs {
		events = append(events, domain.Event{ID: id, Folder: p.Folder})
	}
	return events
}

// Handler направляет изменения календаря в хук и планировщик.
type Handler struct {
	hook      EventHook
	canceller Canceller
	logger    *slog.Logger
}

// NewHandler создаёт Handler.
func NewHandler(hook EventHook, canceller Canceller, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hook:      hook,
		canceller: canceller,
		logger:    logger.With("component", "calendar-feed"),
	}
}

// Handle обрабатывает одно сообщение. Подходит как mq.Handler.
func (h *Handler) Handle(ctx context.Context, msg *mq.Delivery) error {
	payload, err := mq.ParsePayload[EventsChanged](&msg.Message)
	if err != nil {
		return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
	}

	logger := telemetry.WithTenant(h.logger, payload.TenantID, payload.AccountID)

	switch msg.Message.Type {
	case mq.MessageTypeEventCreated, mq.MessageTypeEventUpdated:
		h.hook.CheckAndScheduleTasksForEvents(ctx, payload.Events(), payload.TenantID, payload.AccountID)
		logger.Debug("events rescheduled", "type", msg.Message.Type, "events", len(payload.EventIDs))

	case mq.MessageTypeEventDeleted:
		n := h.canceller.CancelAll(ctx, payload.TenantID, payload.AccountID, payload.EventIDs...)
		logger.Debug("tasks of deleted events cancelled", "events", len(payload.EventIDs), "cancelled", n)

	default:
		return fmt.Errorf("%w: unexpected message type %q", mq.ErrMalformed, msg.Message.Type)
	}

	return nil
}
