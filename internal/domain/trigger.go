package domain

import (
	"cmp"
	"time"

	"github.com/google/uuid"
)

// Field — флаг поля Trigger.
//
// Trigger хранит набор флагов присутствия отдельно от значений:
// «поле не загружалось» и «поле явно равно NULL» — разные состояния,
// слой хранения обрабатывает их по-разному.
type Field uint16

const (
	FieldAction Field = 1 << iota
	FieldAlarmID
	FieldEventID
	FieldRecurrenceID
	FieldFolder
	FieldUserID
	FieldTime
	FieldRelatedTime
	FieldProcessed
	FieldPushed
	FieldTimezone
	FieldClaim
)

// AllFields — все поля Trigger в порядке объявления.
var AllFields = []Field{
	FieldAction,
	FieldAlarmID,
	FieldEventID,
	FieldRecurrenceID,
	FieldFolder,
	FieldUserID,
	FieldTime,
	FieldRelatedTime,
	FieldProcessed,
	FieldPushed,
	FieldTimezone,
	FieldClaim,
}

var fieldNames = map[Field]string{
	FieldAction:       "action",
	FieldAlarmID:      "alarm_id",
	FieldEventID:      "event_id",
	FieldRecurrenceID: "recurrence_id",
	FieldFolder:       "folder",
	FieldUserID:       "user_id",
	FieldTime:         "time",
	FieldRelatedTime:  "related_time",
	FieldProcessed:    "processed",
	FieldPushed:       "pushed",
	FieldTimezone:     "timezone",
	FieldClaim:        "claim",
}

// String возвращает имя поля.
func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// AccountRef — владелец триггера: тенант и календарный аккаунт.
type AccountRef struct {
	TenantID  int `json:"tenant_id"`
	AccountID int `json:"account_id"`
}

// Trigger — запись об одном ожидающем напоминании.
//
// Значения читаются геттерами, пишутся сеттерами; сеттер всегда
// помечает поле как присутствующее. Для nullable-полей сеттер с nil
// означает «присутствует, но NULL».
//
// Инвариант: Claim присутствует и не nil тогда и только тогда,
// когда триггер заблокирован каким-то воркером.
type Trigger struct {
	// Ref — владелец записи. Не отслеживается флагами: известен всегда.
	Ref AccountRef

	set Field

	action       Action
	alarmID      int
	eventID      string
	recurrenceID *string
	folder       string
	userID       int
	time         time.Time
	relatedTime  *time.Time
	processed    *time.Time
	pushed       bool
	timezone     *string
	claim        *uuid.UUID
}

// Contains проверяет, присутствует ли поле.
func (t *Trigger) Contains(f Field) bool {
	return t.set&f == f
}

// Fields возвращает присутствующие поля в порядке AllFields.
func (t *Trigger) Fields() []Field {
	var fields []Field
	for _, f := range AllFields {
		if t.Contains(f) {
			fields = append(fields, f)
		}
	}
	return fields
}

// Remove сбрасывает значение поля и флаг присутствия.
func (t *Trigger) Remove(f Field) {
	t.set &^= f
	switch f {
	case FieldAction:
		t.action = ""
	case FieldAlarmID:
		t.alarmID = 0
	case FieldEventID:
		t.eventID = ""
	case FieldRecurrenceID:
		t.recurrenceID = nil
	case FieldFolder:
		t.folder = ""
	case FieldUserID:
		t.userID = 0
	case FieldTime:
		t.time = time.Time{}
	case FieldRelatedTime:
		t.relatedTime = nil
	case FieldProcessed:
		t.processed = nil
	case FieldPushed:
		t.pushed = false
	case FieldTimezone:
		t.timezone = nil
	case FieldClaim:
		t.claim = nil
	}
}

func (t *Trigger) Action() Action { return t.action }

func (t *Trigger) SetAction(a Action) {
	t.action = a
	t.set |= FieldAction
}

func (t *Trigger) AlarmID() int { return t.alarmID }

func (t *Trigger) SetAlarmID(id int) {
	t.alarmID = id
	t.set |= FieldAlarmID
}

func (t *Trigger) EventID() string { return t.eventID }

func (t *Trigger) SetEventID(id string) {
	t.eventID = id
	t.set |= FieldEventID
}

// RecurrenceID возвращает идентификатор экземпляра серии (nil — не серия).
func (t *Trigger) RecurrenceID() *string { return t.recurrenceID }

func (t *Trigger) SetRecurrenceID(id *string) {
	t.recurrenceID = id
	t.set |= FieldRecurrenceID
}

func (t *Trigger) Folder() string { return t.folder }

func (t *Trigger) SetFolder(folder string) {
	t.folder = folder
	t.set |= FieldFolder
}

func (t *Trigger) UserID() int { return t.userID }

func (t *Trigger) SetUserID(id int) {
	t.userID = id
	t.set |= FieldUserID
}

// Time возвращает время срабатывания.
func (t *Trigger) Time() time.Time { return t.time }

func (t *Trigger) SetTime(at time.Time) {
	t.time = at
	t.set |= FieldTime
}

func (t *Trigger) RelatedTime() *time.Time { return t.relatedTime }

func (t *Trigger) SetRelatedTime(at *time.Time) {
	t.relatedTime = at
	t.set |= FieldRelatedTime
}

// Processed возвращает время последнего захвата (nil — не захватывался).
func (t *Trigger) Processed() *time.Time { return t.processed }

func (t *Trigger) SetProcessed(at *time.Time) {
	t.processed = at
	t.set |= FieldProcessed
}

func (t *Trigger) Pushed() bool { return t.pushed }

func (t *Trigger) SetPushed(pushed bool) {
	t.pushed = pushed
	t.set |= FieldPushed
}

func (t *Trigger) Timezone() *string { return t.timezone }

func (t *Trigger) SetTimezone(tz *string) {
	t.timezone = tz
	t.set |= FieldTimezone
}

// Claim возвращает токен текущего владельца блокировки.
func (t *Trigger) Claim() *uuid.UUID { return t.claim }

func (t *Trigger) SetClaim(claim *uuid.UUID) {
	t.claim = claim
	t.set |= FieldClaim
}

// IsLocked проверяет, захвачен ли триггер каким-либо воркером.
func (t *Trigger) IsLocked() bool {
	return t.claim != nil
}

// Location возвращает часовой пояс триггера, UTC если не задан или невалиден.
func (t *Trigger) Location() *time.Location {
	if t.timezone == nil || *t.timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(*t.timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OverdueBefore возвращает границу брошенных захватов для момента now:
// захват, сделанный раньше неё, считается брошенным.
func OverdueBefore(now time.Time, overdueWait time.Duration) time.Time {
	return now.Add(-overdueWait)
}

// Claimable проверяет, может ли воркер захватить триггер в момент now.
//
// Незахваченный триггер доступен всегда. Захваченный считается
// брошенным (overdue), если с момента захвата прошло строго больше overdueWait.
func (t *Trigger) Claimable(now time.Time, overdueWait time.Duration) bool {
	return t.ClaimableBefore(OverdueBefore(now, overdueWait))
}

// ClaimableBefore — Claimable для уже вычисленной границы OverdueBefore.
func (t *Trigger) ClaimableBefore(overdueBefore time.Time) bool {
	if t.processed == nil || t.processed.IsZero() {
		return true
	}
	return t.processed.Before(overdueBefore)
}

// DueWithin проверяет, что триггер попадает в проход воркера:
// срабатывает раньше until и может быть захвачен.
func (t *Trigger) DueWithin(until, overdueBefore time.Time) bool {
	return t.time.Before(until) && t.ClaimableBefore(overdueBefore)
}

// Clone возвращает независимую копию триггера.
func (t *Trigger) Clone() *Trigger {
	c := *t
	if t.recurrenceID != nil {
		v := *t.recurrenceID
		c.recurrenceID = &v
	}
	if t.relatedTime != nil {
		v := *t.relatedTime
		c.relatedTime = &v
	}
	if t.processed != nil {
		v := *t.processed
		c.processed = &v
	}
	if t.timezone != nil {
		v := *t.timezone
		c.timezone = &v
	}
	if t.claim != nil {
		v := *t.claim
		c.claim = &v
	}
	return &c
}

// CompareByTime задаёт полный порядок по времени срабатывания.
// При равном времени порядок определяется тенантом, аккаунтом и alarm id.
func CompareByTime(a, b *Trigger) int {
	if c := a.time.Compare(b.time); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Ref.TenantID, b.Ref.TenantID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Ref.AccountID, b.Ref.AccountID); c != 0 {
		return c
	}
	return cmp.Compare(a.alarmID, b.alarmID)
}

