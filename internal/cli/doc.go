// Package cli реализует административные команды alarmd.
//
// # Обзор
//
// Команды работают через HTTP API запущенного процесса alarmd
// и не обращаются к БД напрямую.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент (resty) для API. Инкапсулирует запросы, разбор
// ответов (DataResponse, ListResponse, ErrorResponse) и ошибки.
//
//	client := cli.NewClient("http://localhost:8084")
//	tasks, err := client.ListTasks(ctx, cli.ListTasksOpts{TenantID: 1})
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: alarmd tasks list --json | jq .
//
// ## Commands
//
//   - tasks: list
//   - events: changed, delete
//
// Каждая группа создаётся через фабричную функцию (NewTasksCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
