package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы доставки для DeliveriesTotal.
const (
	OutcomeDelivered   = "delivered"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
	OutcomeStale       = "stale"
)

var (
	// WorkerRuns — запуски воркера доставки по шардам и результату.
	WorkerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmd_worker_runs_total",
		Help: "Delivery worker invocations by shard and result",
	}, []string{"shard", "result"})

	// TriggersLocked — триггеры, захваченные этим узлом.
	TriggersLocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_triggers_locked_total",
		Help: "Triggers claimed by this node",
	})

	// TasksScheduled — текущий размер индекса запланированных задач.
	TasksScheduled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alarmd_tasks_scheduled",
		Help: "Delivery tasks currently waiting for their timer",
	})

	// DeliveriesTotal — результаты доставок по типу уведомления.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmd_deliveries_total",
		Help: "Fired delivery tasks by action and outcome",
	}, []string{"action", "outcome"})

	// UnlockFailures — неудачные попытки вернуть триггеры в хранилище.
	UnlockFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_unlock_failures_total",
		Help: "Failed attempts to drop processing status",
	})

	// ClaimsRefreshed — строки, у которых продлена блокировка.
	ClaimsRefreshed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alarmd_claims_refreshed_total",
		Help: "Trigger rows whose claim was refreshed",
	})
)
