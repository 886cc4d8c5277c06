// Package feed обрабатывает поток изменений календаря из RabbitMQ.
//
// Созданные и изменённые события отправляются в хук пересчёта
// напоминаний, удалённые отменяют запланированные задачи. Сообщения
// с некорректным payload уходят в DLQ.
package feed
