package repo

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/Alarmd/internal/domain"
)

// columns — соответствие полей Trigger колонкам alarm_trigger.
var columns = map[domain.Field]string{
	domain.FieldAction:       "action",
	domain.FieldAlarmID:      "alarm_id",
	domain.FieldEventID:      "event_id",
	domain.FieldRecurrenceID: "recurrence_id",
	domain.FieldFolder:       "folder",
	domain.FieldUserID:       "user_id",
	domain.FieldTime:         "trigger_time",
	domain.FieldRelatedTime:  "related_time",
	domain.FieldProcessed:    "processed",
	domain.FieldPushed:       "pushed",
	domain.FieldTimezone:     "timezone",
	domain.FieldClaim:        "claim",
}

// dueFields — поля, нужные для планирования доставки.
var dueFields = []domain.Field{
	domain.FieldAction,
	domain.FieldAlarmID,
	domain.FieldEventID,
	domain.FieldRecurrenceID,
	domain.FieldFolder,
	domain.FieldUserID,
	domain.FieldTime,
	domain.FieldProcessed,
	domain.FieldTimezone,
}

// selectColumns возвращает список колонок для SELECT.
// tenant_id и account_id читаются всегда.
func selectColumns(fields []domain.Field) string {
	cols := make([]string, 0, len(fields)+2)
	cols = append(cols, "tenant_id", "account_id")
	for _, f := range fields {
		cols = append(cols, columns[f])
	}
	return strings.Join(cols, ", ")
}

// scanTrigger читает строку, заполняя только запрошенные поля.
// Остальные поля триггера остаются отсутствующими.
func scanTrigger(row pgx.Row, fields []domain.Field) (*domain.Trigger, error) {
	t := &domain.Trigger{}

	var (
		action       string
		alarmID      int
		eventID      string
		recurrenceID *string
		folder       string
		userID       int
		triggerTime  time.Time
		relatedTime  *time.Time
		processed    *time.Time
		pushed       bool
		timezone     *string
		claim        *uuid.UUID
	)

	dest := []any{&t.Ref.TenantID, &t.Ref.AccountID}
	for _, f := range fields {
		switch f {
		case domain.FieldAction:
			dest = append(dest, &action)
		case domain.FieldAlarmID:
			dest = append(dest, &alarmID)
		case domain.FieldEventID:
			dest = append(dest, &eventID)
		case domain.FieldRecurrenceID:
			dest = append(dest, &recurrenceID)
		case domain.FieldFolder:
			dest = append(dest, &folder)
		case domain.FieldUserID:
			dest = append(dest, &userID)
		case domain.FieldTime:
			dest = append(dest, &triggerTime)
		case domain.FieldRelatedTime:
			dest = append(dest, &relatedTime)
		case domain.FieldProcessed:
			dest = append(dest, &processed)
		case domain.FieldPushed:
			dest = append(dest, &pushed)
		case domain.FieldTimezone:
			dest = append(dest, &timezone)
		case domain.FieldClaim:
			dest = append(dest, &claim)
		}
	}

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	for _, f := range fields {
		switch f {
		case domain.FieldAction:
			t.SetAction(domain.ParseAction(action))
		case domain.FieldAlarmID:
			t.SetAlarmID(alarmID)
		case domain.FieldEventID:
			t.SetEventID(eventID)
		case domain.FieldRecurrenceID:
			t.SetRecurrenceID(recurrenceID)
		case domain.FieldFolder:
			t.SetFolder(folder)
		case domain.FieldUserID:
			t.SetUserID(userID)
		case domain.FieldTime:
			t.SetTime(triggerTime)
		case domain.FieldRelatedTime:
			t.SetRelatedTime(relatedTime)
		case domain.FieldProcessed:
			t.SetProcessed(processed)
		case domain.FieldPushed:
			t.SetPushed(pushed)
		case domain.FieldTimezone:
			t.SetTimezone(timezone)
		case domain.FieldClaim:
			t.SetClaim(claim)
		}
	}
	return t, nil
}

func collectTriggers(rows pgx.Rows, fields []domain.Field) ([]*domain.Trigger, error) {
	defer rows.Close()

	var triggers []*domain.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows, fields)
		if err != nil {
			return nil, err
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func actionNames(actions []domain.Action) []string {
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = a.String()
	}
	return names
}

// partition режет срез на части не длиннее size.
func partition[T any](items []T, size int) [][]T {
	var parts [][]T
	for size < len(items) {
		parts = append(parts, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		parts = append(parts, items)
	}
	return parts
}
