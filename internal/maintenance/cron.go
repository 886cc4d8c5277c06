package maintenance

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser понимает 5-польные выражения и дескрипторы (@every 1m, @hourly).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule разбирает расписание цикла обслуживания.
func ParseSchedule(expr string) (cron.Schedule, error) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// ValidateSchedule проверяет расписание.
func ValidateSchedule(expr string) error {
	_, err := ParseSchedule(expr)
	return err
}

// nextRun возвращает задержку до следующего цикла после from.
func nextRun(schedule cron.Schedule, from time.Time) time.Duration {
	return max(schedule.Next(from).Sub(from), 0)
}
