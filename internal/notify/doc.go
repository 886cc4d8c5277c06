// Package notify содержит диспетчеры уведомлений и их реестр.
//
// Диспетчер отвечает за один тип уведомления (EMAIL, SMS): знает
// свой lead time (shift) и умеет доставить напоминание. Реестр
// передаётся компонентам явно через конструктор.
package notify
