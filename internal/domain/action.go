package domain

import "strings"

// Action — тип уведомления, которое должен отправить триггер.
//
// Сервис доставляет только message-алармы (EMAIL, SMS).
// DISPLAY и AUDIO обрабатываются клиентами и никогда
// не регистрируются в реестре диспетчеров.
type Action string

const (
	// ActionEmail — напоминание письмом.
	ActionEmail Action = "EMAIL"

	// ActionSMS — напоминание через SMS.
	ActionSMS Action = "SMS"

	// ActionDisplay — всплывающее напоминание на клиенте.
	ActionDisplay Action = "DISPLAY"

	// ActionAudio — звуковое напоминание на клиенте.
	ActionAudio Action = "AUDIO"
)

// String возвращает строковое представление Action.
func (a Action) String() string {
	return string(a)
}

// ParseAction парсит строку в Action без учёта регистра.
// Неизвестные значения возвращаются как есть в верхнем регистре.
func ParseAction(s string) Action {
	return Action(strings.ToUpper(strings.TrimSpace(s)))
}
