package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationTask — маркер миграции, после которой шард обслуживается
// воркером доставки.
const MigrationTask = "alarm-delivery-worker"

// migrateLockKey — ключ advisory lock, сериализующего миграции шарда.
const migrateLockKey = 0x616c61726d64

var schema = []string{
	`CREATE TABLE IF NOT EXISTS alarm_trigger (
		tenant_id     INTEGER     NOT NULL,
		account_id    INTEGER     NOT NULL,
		alarm_id      INTEGER     NOT NULL,
		event_id      TEXT        NOT NULL,
		recurrence_id TEXT,
		folder        TEXT        NOT NULL DEFAULT '',
		user_id       INTEGER     NOT NULL,
		action        TEXT        NOT NULL,
		trigger_time  TIMESTAMPTZ NOT NULL,
		related_time  TIMESTAMPTZ,
		processed     TIMESTAMPTZ,
		pushed        BOOLEAN     NOT NULL DEFAULT FALSE,
		timezone      TEXT,
		claim         UUID,
		PRIMARY KEY (tenant_id, account_id, alarm_id)
	)`,
	`CREATE INDEX IF NOT EXISTS alarm_trigger_due_idx
		ON alarm_trigger (action, trigger_time)`,
	`CREATE INDEX IF NOT EXISTS alarm_trigger_event_idx
		ON alarm_trigger (tenant_id, account_id, event_id)`,
	`CREATE INDEX IF NOT EXISTS alarm_trigger_claim_idx
		ON alarm_trigger (claim) WHERE claim IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS update_task (
		task_name  TEXT        PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate создаёт таблицы шарда и отмечает миграцию выполненной.
// Повторный вызов безопасен.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", int64(migrateLockKey)); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}

	for _, stmt := range schema {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO update_task (task_name) VALUES ($1)
		ON CONFLICT (task_name) DO NOTHING
	`, MigrationTask)
	if err != nil {
		return fmt.Errorf("mark migration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
