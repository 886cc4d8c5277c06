// Package api содержит HTTP API сервиса доставки.
//
// Структура:
//   - handler.go       — Handler с DI (планировщик, хук, хранилища, logger)
//   - routes.go        — регистрация маршрутов
//   - middleware.go    — middleware (logging, recovery)
//   - response.go      — унифицированные JSON-ответы и обработка ошибок
//   - dto.go           — Data Transfer Objects (request/response)
//   - task_handler.go  — просмотр запланированных задач
//   - event_handler.go — уведомления об изменении и удалении событий
//
// API предназначен для администраторов и сервисов календаря,
// которые не публикуют изменения в RabbitMQ.
package api
