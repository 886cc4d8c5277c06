// Package maintenance запускает воркер доставки по расписанию.
//
// Каждый цикл обходит шарды, проверяет, что на шарде выполнена
// миграция воркера, и вызывает Worker.Run. Ошибка одного шарда
// не мешает остальным.
//
// Использование:
//
//	runner, err := maintenance.New(maintenance.Config{
//	    Schedule: "*/30 * * * *",
//	    Worker:   worker,
//	    Shards:   shards,
//	    Logger:   logger,
//	})
//	go runner.Start(ctx)
package maintenance
