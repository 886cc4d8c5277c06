package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Alarmd/internal/domain"
)

// dropBatch — сколько триггеров сбрасывается одним запросом.
const dropBatch = 100

// releaseTimeout ограничивает снятие блокировки, которое выполняется
// даже после отмены контекста вызывающего.
const releaseTimeout = 5 * time.Second

// LockTx — транзакция захвата триггеров изменённых событий.
type LockTx interface {
	// LockEvent захватывает незахваченные триггеры события,
	// срабатывающие раньше until. Незахваченные триггеры за пределами
	// окна возвращаются отдельно без захвата.
	LockEvent(ctx context.Context, ref domain.AccountRef, eventID string, until time.Time, actions []domain.Action) (locked []*domain.LockedTrigger, beyond []*domain.Trigger, err error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TriggerRepo — хранилище триггеров одного шарда.
//
// Чтение без блокировок идёт через read-пул, захват и сброс —
// через write-пул.
type TriggerRepo struct {
	shard  string
	write  *pgxpool.Pool
	read   *pgxpool.Pool
	keeper *ClaimKeeper
	logger *slog.Logger
	now    func() time.Time
}

// TriggerRepoConfig — конфигурация TriggerRepo.
type TriggerRepoConfig struct {
	Shard  string
	Write  *pgxpool.Pool
	Read   *pgxpool.Pool // default: Write
	Keeper *ClaimKeeper  // default: новый keeper на Write
	Logger *slog.Logger
}

// NewTriggerRepo создаёт новый TriggerRepo.
func NewTriggerRepo(cfg TriggerRepoConfig) *TriggerRepo {
	read := cfg.Read
	if read == nil {
		read = cfg.Write
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	keeper := cfg.Keeper
	if keeper == nil {
		keeper = NewClaimKeeper(cfg.Write, KeeperConfig{Logger: logger})
	}

	return &TriggerRepo{
		shard:  cfg.Shard,
		write:  cfg.Write,
		read:   read,
		keeper: keeper,
		logger: logger.With("shard", cfg.Shard),
		now:    time.Now,
	}
}

// Shard возвращает имя шарда.
func (r *TriggerRepo) Shard() string { return r.shard }

// Keeper возвращает keeper блокировок шарда.
func (r *TriggerRepo) Keeper() *ClaimKeeper { return r.keeper }

func (r *TriggerRepo) dueQuery() string {
	return `
		SELECT ` + selectColumns(dueFields) + `
		FROM alarm_trigger
		WHERE action = ANY($1)
		  AND trigger_time < $2
		  AND (processed IS NULL OR processed < $3)
		ORDER BY trigger_time ASC
	`
}

// ProbeDue находит наступающие и брошенные триггеры без блокировки.
func (r *TriggerRepo) ProbeDue(ctx context.Context, until, overdueBefore time.Time, actions []domain.Action) ([]*domain.Trigger, error) {
	rows, err := r.read.Query(ctx, r.dueQuery(), actionNames(actions), until, overdueBefore)
	if err != nil {
		return nil, fmt.Errorf("probe due triggers: %w", err)
	}
	triggers, err := collectTriggers(rows, dueFields)
	if err != nil {
		return nil, fmt.Errorf("scan due triggers: %w", err)
	}
	return triggers, nil
}

// LockDue повторяет выборку ProbeDue и захватывает каждую строку
// атомарным compare-and-set по processed. Возвращаются только строки,
// захват которых удался. При ошибке уже захваченные строки освобождаются.
func (r *TriggerRepo) LockDue(ctx context.Context, until, overdueBefore time.Time, actions []domain.Action) ([]*domain.LockedTrigger, error) {
	rows, err := r.write.Query(ctx, r.dueQuery(), actionNames(actions), until, overdueBefore)
	if err != nil {
		return nil, fmt.Errorf("select due triggers: %w", err)
	}
	candidates, err := collectTriggers(rows, dueFields)
	if err != nil {
		return nil, fmt.Errorf("scan due triggers: %w", err)
	}

	locked := make([]*domain.LockedTrigger, 0, len(candidates))
	for _, t := range candidates {
		if !t.DueWithin(until, overdueBefore) {
			continue
		}
		lt, err := r.acquire(ctx, r.write, t, `processed IS NOT DISTINCT FROM $6`, t.Processed())
		if err != nil {
			releaseAll(ctx, locked)
			return nil, err
		}
		if lt != nil {
			locked = append(locked, lt)
		}
	}
	return locked, nil
}

// execer — общий интерфейс пула и транзакции.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// acquire выполняет compare-and-set захват одной строки.
// Возвращает nil без ошибки, если строку перехватил кто-то другой.
func (r *TriggerRepo) acquire(ctx context.Context, db execer, t *domain.Trigger, guard string, guardArgs ...any) (*domain.LockedTrigger, error) {
	claim := uuid.New()
	now := r.now().UTC().Truncate(time.Microsecond)

	args := append([]any{t.Ref.TenantID, t.Ref.AccountID, t.AlarmID(), now, claim}, guardArgs...)
	result, err := db.Exec(ctx, `
		UPDATE alarm_trigger
		SET processed = $4, claim = $5
		WHERE tenant_id = $1 AND account_id = $2 AND alarm_id = $3
		  AND `+guard, args...)
	if err != nil {
		return nil, fmt.Errorf("acquire trigger %s: %w", domain.KeyOf(t), err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Debug("trigger claimed concurrently", "key", domain.KeyOf(t).String())
		return nil, nil
	}

	t.SetProcessed(&now)
	t.SetClaim(&claim)
	r.keeper.Hold(claim)

	lock := &claimLock{repo: r, ref: t.Ref, alarmID: t.AlarmID(), claim: claim}
	return domain.NewLockedTrigger(t, lock, r.logger), nil
}

const eventQuery = `
	SELECT %s
	FROM alarm_trigger
	WHERE tenant_id = $1 AND account_id = $2 AND event_id = $3
	  AND action = ANY($4)
	  AND processed IS NULL
`

// ProbeEvent читает незахваченные триггеры события без блокировки.
func (r *TriggerRepo) ProbeEvent(ctx context.Context, ref domain.AccountRef, eventID string, actions []domain.Action) ([]*domain.Trigger, error) {
	query := fmt.Sprintf(eventQuery, selectColumns(dueFields)) + ` ORDER BY trigger_time ASC`
	rows, err := r.read.Query(ctx, query, ref.TenantID, ref.AccountID, eventID, actionNames(actions))
	if err != nil {
		return nil, fmt.Errorf("probe event triggers: %w", err)
	}
	triggers, err := collectTriggers(rows, dueFields)
	if err != nil {
		return nil, fmt.Errorf("scan event triggers: %w", err)
	}
	return triggers, nil
}

// Begin открывает транзакцию захвата на write-пуле.
func (r *TriggerRepo) Begin(ctx context.Context) (LockTx, error) {
	tx, err := r.write.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &lockTx{repo: r, tx: tx}, nil
}

type lockTx struct {
	repo *TriggerRepo
	tx   pgx.Tx
}

func (l *lockTx) LockEvent(ctx context.Context, ref domain.AccountRef, eventID string, until time.Time, actions []domain.Action) ([]*domain.LockedTrigger, []*domain.Trigger, error) {
	query := fmt.Sprintf(eventQuery, selectColumns(dueFields)) + `
		ORDER BY trigger_time ASC
		FOR UPDATE SKIP LOCKED`
	rows, err := l.tx.Query(ctx, query, ref.TenantID, ref.AccountID, eventID, actionNames(actions))
	if err != nil {
		return nil, nil, fmt.Errorf("select event triggers: %w", err)
	}
	candidates, err := collectTriggers(rows, dueFields)
	if err != nil {
		return nil, nil, fmt.Errorf("scan event triggers: %w", err)
	}

	var beyond []*domain.Trigger
	locked := make([]*domain.LockedTrigger, 0, len(candidates))
	for _, t := range candidates {
		if !t.Time().Before(until) {
			beyond = append(beyond, t)
			continue
		}
		lt, err := l.repo.acquire(ctx, l.tx, t, `processed IS NULL`)
		if err != nil {
			return nil, nil, errors.Join(err, unlockAfterRollback(ctx, l.tx, locked))
		}
		if lt != nil {
			locked = append(locked, lt)
		}
	}
	return locked, beyond, nil
}

// unlockAfterRollback откатывает транзакцию, чтобы снятие блокировок
// не ждало строк, удерживаемых самой транзакцией.
func unlockAfterRollback(ctx context.Context, tx pgx.Tx, locked []*domain.LockedTrigger) error {
	err := tx.Rollback(ctx)
	releaseAll(ctx, locked)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

func (l *lockTx) Commit(ctx context.Context) error {
	if err := l.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback откатывает транзакцию. Повторный вызов после Commit безопасен.
func (l *lockTx) Rollback(ctx context.Context) error {
	if err := l.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// DropProcessingStatus сбрасывает processed и claim у переданных
// триггеров, чтобы их могли захватить другие узлы.
// Обрабатывает все группы, даже если часть запросов упала.
func (r *TriggerRepo) DropProcessingStatus(ctx context.Context, triggers map[domain.AccountRef][]*domain.Trigger) error {
	var errs []error
	for ref, list := range triggers {
		for _, part := range partition(list, dropBatch) {
			alarmIDs := make([]int, len(part))
			for i, t := range part {
				alarmIDs[i] = t.AlarmID()
			}

			_, err := r.write.Exec(ctx, `
				UPDATE alarm_trigger
				SET processed = NULL, claim = NULL
				WHERE tenant_id = $1 AND account_id = $2 AND alarm_id = ANY($3)
			`, ref.TenantID, ref.AccountID, alarmIDs)
			if err != nil {
				errs = append(errs, fmt.Errorf("drop processing status %d/%d: %w", ref.TenantID, ref.AccountID, err))
				continue
			}

			for _, t := range part {
				if c := t.Claim(); c != nil {
					r.keeper.Release(*c)
				}
			}
		}
	}
	return errors.Join(errs...)
}

// Complete удаляет доставленный триггер, если claim ещё наш.
func (r *TriggerRepo) Complete(ctx context.Context, lt *domain.LockedTrigger) error {
	claim := lt.ClaimID()
	result, err := r.write.Exec(ctx, `
		DELETE FROM alarm_trigger
		WHERE tenant_id = $1 AND account_id = $2 AND alarm_id = $3 AND claim = $4
	`, lt.Ref.TenantID, lt.Ref.AccountID, lt.AlarmID(), claim)
	if err != nil {
		return fmt.Errorf("complete trigger %s: %w", lt.Key(), err)
	}

	r.keeper.Release(claim)
	if result.RowsAffected() == 0 {
		return ErrClaimLost
	}
	return nil
}

// Verify проверяет, что строка всё ещё несёт claim этого узла.
func (r *TriggerRepo) Verify(ctx context.Context, lt *domain.LockedTrigger) (bool, error) {
	var claim *uuid.UUID
	err := r.write.QueryRow(ctx, `
		SELECT claim FROM alarm_trigger
		WHERE tenant_id = $1 AND account_id = $2 AND alarm_id = $3
	`, lt.Ref.TenantID, lt.Ref.AccountID, lt.AlarmID()).Scan(&claim)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("verify claim %s: %w", lt.Key(), err)
	}
	return claim != nil && *claim == lt.ClaimID(), nil
}

// undefinedTable — SQLSTATE отсутствующей таблицы.
const undefinedTable = "42P01"

// IsApplicable проверяет, выполнена ли на шарде миграция воркера доставки.
func (r *TriggerRepo) IsApplicable(ctx context.Context) (bool, error) {
	var applied bool
	err := r.write.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM update_task WHERE task_name = $1)
	`, MigrationTask).Scan(&applied)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
			return false, nil
		}
		return false, fmt.Errorf("check migration: %w", err)
	}
	return applied, nil
}

// claimLock — блокировка строки, удерживаемая этим узлом.
type claimLock struct {
	repo    *TriggerRepo
	ref     domain.AccountRef
	alarmID int
	claim   uuid.UUID
}

// Release сбрасывает processed и claim, только если строка всё ещё
// несёт этот claim. Блокировки, уже сброшенные через Complete или
// DropProcessingStatus, не трогаются.
func (l *claimLock) Release(ctx context.Context) error {
	if !l.repo.keeper.Release(l.claim) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	_, err := l.repo.write.Exec(ctx, `
		UPDATE alarm_trigger
		SET processed = NULL, claim = NULL
		WHERE tenant_id = $1 AND account_id = $2 AND alarm_id = $3 AND claim = $4
	`, l.ref.TenantID, l.ref.AccountID, l.alarmID, l.claim)
	if err != nil {
		return fmt.Errorf("release claim %s: %w", l.claim, err)
	}
	return nil
}

func releaseAll(ctx context.Context, locked []*domain.LockedTrigger) {
	for _, lt := range locked {
		lt.Unlock(ctx)
	}
}
