package domain

import (
	"cmp"
	"fmt"
	"strings"
)

// Key — идентичность одного экземпляра триггера внутри процесса:
// (tenant, account, event, alarm).
//
// Используется только как ключ индекса запланированных задач,
// никогда как идентификатор строки в БД. Key — значение и может
// напрямую использоваться как ключ map: EventID хранится строкой
// с отдельным флагом наличия.
type Key struct {
	tenantID  int
	accountID int
	eventID   string
	hasEvent  bool
	alarmID   int
}

// NewKey создаёт ключ. eventID == nil означает отсутствие события.
func NewKey(tenantID, accountID int, eventID *string, alarmID int) Key {
	k := Key{tenantID: tenantID, accountID: accountID, alarmID: alarmID}
	if eventID != nil {
		k.eventID = *eventID
		k.hasEvent = true
	}
	return k
}

// EventKey — сокращение для ключа с известным event id.
func EventKey(tenantID, accountID int, eventID string, alarmID int) Key {
	return NewKey(tenantID, accountID, &eventID, alarmID)
}

// KeyOf строит ключ по триггеру.
// Пустой или не загруженный event id трактуется как отсутствующий.
func KeyOf(t *Trigger) Key {
	var eventID *string
	if t.Contains(FieldEventID) && t.EventID() != "" {
		id := t.EventID()
		eventID = &id
	}
	return NewKey(t.Ref.TenantID, t.Ref.AccountID, eventID, t.AlarmID())
}

func (k Key) TenantID() int  { return k.tenantID }
func (k Key) AccountID() int { return k.accountID }
func (k Key) AlarmID() int   { return k.alarmID }

// EventID возвращает идентификатор события, nil если его нет.
func (k Key) EventID() *string {
	if !k.hasEvent {
		return nil
	}
	id := k.eventID
	return &id
}

// Ref возвращает владельца ключа.
func (k Key) Ref() AccountRef {
	return AccountRef{TenantID: k.tenantID, AccountID: k.accountID}
}

// BelongsTo проверяет, относится ли ключ к событию eventID аккаунта.
func (k Key) BelongsTo(tenantID, accountID int, eventID string) bool {
	return k.tenantID == tenantID && k.accountID == accountID &&
		k.hasEvent && k.eventID == eventID
}

// Compare сравнивает ключи лексикографически: tenant, account,
// event id (отсутствующий раньше любого), alarm id.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.tenantID, other.tenantID); c != 0 {
		return c
	}
	if c := cmp.Compare(k.accountID, other.accountID); c != 0 {
		return c
	}
	switch {
	case !k.hasEvent && other.hasEvent:
		return -1
	case k.hasEvent && !other.hasEvent:
		return 1
	case k.hasEvent:
		if c := strings.Compare(k.eventID, other.eventID); c != 0 {
			return c
		}
	}
	return cmp.Compare(k.alarmID, other.alarmID)
}

// Equal согласован с Compare.
func (k Key) Equal(other Key) bool {
	return k == other
}

// String возвращает ключ в виде "tenant/account/event/alarm".
func (k Key) String() string {
	event := "-"
	if k.hasEvent {
		event = k.eventID
	}
	return fmt.Sprintf("%d/%d/%s/%d", k.tenantID, k.accountID, event, k.alarmID)
}
