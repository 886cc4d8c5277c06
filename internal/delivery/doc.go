// Package delivery — планировщик доставки напоминаний.
//
// Компоненты:
//   - Scheduler — индекс Key → таймер, schedule/cancel
//   - Worker    — периодический проход: probe → lock → spawn
//   - Hook      — пересчёт напоминаний изменённых событий
//
// Межузловое исключение обеспечивает только хранилище:
// строку может захватить один claim. Индекс задач локален для узла.
//
// Каждый LockedTrigger, попавший в пакет, либо передаётся
// планировщику (и тогда разблокируется после доставки или отмены),
// либо разблокируется на пути ошибки.
package delivery
