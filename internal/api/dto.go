package api

import (
	"time"

	"github.com/shaiso/Alarmd/internal/delivery"
	"github.com/shaiso/Alarmd/internal/domain"
)

// Task DTOs

// TaskResponse — запланированная задача доставки.
type TaskResponse struct {
	Key       string        `json:"key"`
	TenantID  int           `json:"tenant_id"`
	AccountID int           `json:"account_id"`
	EventID   *string       `json:"event_id"`
	AlarmID   int           `json:"alarm_id"`
	Action    domain.Action `json:"action"`
	DueAt     time.Time     `json:"due_at"`
	FireAt    time.Time     `json:"fire_at"`
}

// TaskFromInfo конвертирует delivery.TaskInfo в TaskResponse.
func TaskFromInfo(t delivery.TaskInfo) TaskResponse {
	return TaskResponse{
		Key:       t.Key.String(),
		TenantID:  t.Key.TenantID(),
		AccountID: t.Key.AccountID(),
		EventID:   t.Key.EventID(),
		AlarmID:   t.Key.AlarmID(),
		Action:    t.Action,
		DueAt:     t.DueAt,
		FireAt:    t.FireAt,
	}
}

// Event DTOs

// EventsChangedRequest — запрос на пересчёт напоминаний событий.
type EventsChangedRequest struct {
	EventIDs []string `json:"event_ids"`
	Folder   string   `json:"folder,omitempty"`
}

// Events возвращает события запроса.
func (r EventsChangedRequest) Events() []domain.Event {
	events := make([]domain.Event, 0, len(r.EventIDs))
	for _, id := range r.EventIDs {
		events = append(events, domain.Event{ID: id, Folder: r.Folder})
	}
	return events
}

// EventsChangedResponse — ответ на пересчёт.
type EventsChangedResponse struct {
	Events int `json:"events"`
}

// CancelResponse — ответ на удаление события.
type CancelResponse struct {
	Cancelled int `json:"cancelled"`
}
