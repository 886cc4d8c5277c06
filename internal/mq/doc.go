// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с переподключением
//   - topology.go   — обменники, очереди, привязки
//   - publisher.go  — публикация JSON-сообщений
//   - consumer.go   — потребление с ack/nack и DLQ
//
// Exchanges:
//   - alarmd.notifications — письма-напоминания для mail-сервиса
//   - alarmd.calendar      — изменения календарных событий
//   - alarmd.dlq           — dead letter queue
package mq
