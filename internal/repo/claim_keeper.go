package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// ClaimKeeper продлевает блокировки, которые держит этот узел.
//
// Пока узел жив, processed его триггеров регулярно обновляется,
// поэтому они не становятся overdue и не перехватываются другими
// узлами. После падения узла обновления прекращаются, и через
// overdue_wait триггеры снова доступны для захвата.
type ClaimKeeper struct {
	pool     *pgxpool.Pool
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	claims map[uuid.UUID]struct{}
}

// KeeperConfig — конфигурация ClaimKeeper.
type KeeperConfig struct {
	Interval time.Duration // период продления (default: 1m)
	Logger   *slog.Logger
}

// refreshBatch — сколько claim обновляется одним запросом.
const refreshBatch = 100

// NewClaimKeeper создаёт keeper для пула шарда.
func NewClaimKeeper(pool *pgxpool.Pool, cfg KeeperConfig) *ClaimKeeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ClaimKeeper{
		pool:     pool,
		interval: interval,
		logger:   logger,
		claims:   make(map[uuid.UUID]struct{}),
	}
}

// Hold регистрирует захваченный claim.
func (k *ClaimKeeper) Hold(claim uuid.UUID) {
	k.mu.Lock()
	k.claims[claim] = struct{}{}
	k.mu.Unlock()
}

// Release перестаёт продлевать claim.
// Возвращает true, если claim ещё удерживался.
func (k *ClaimKeeper) Release(claim uuid.UUID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, ok := k.claims[claim]; !ok {
		return false
	}
	delete(k.claims, claim)
	return true
}

// Holds проверяет, удерживается ли claim.
func (k *ClaimKeeper) Holds(claim uuid.UUID) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	_, ok := k.claims[claim]
	return ok
}

// Len возвращает количество удерживаемых claim.
func (k *ClaimKeeper) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.claims)
}

func (k *ClaimKeeper) snapshot() []uuid.UUID {
	k.mu.Lock()
	defer k.mu.Unlock()

	claims := make([]uuid.UUID, 0, len(k.claims))
	for c := range k.claims {
		claims = append(claims, c)
	}
	return claims
}

// Refresh обновляет processed для всех удерживаемых claim.
// Возвращает количество обновлённых строк.
func (k *ClaimKeeper) Refresh(ctx context.Context) (int64, error) {
	claims := k.snapshot()
	if len(claims) == 0 {
		return 0, nil
	}

	var (
		refreshed int64
		errs      []error
	)
	now := time.Now().UTC()
	for _, part := range partition(claims, refreshBatch) {
		result, err := k.pool.Exec(ctx, `
			UPDATE alarm_trigger SET processed = $1 WHERE claim = ANY($2)
		`, now, part)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refreshed += result.RowsAffected()
	}

	telemetry.ClaimsRefreshed.Add(float64(refreshed))
	if err := errors.Join(errs...); err != nil {
		return refreshed, fmt.Errorf("refresh claims: %w", err)
	}
	return refreshed, nil
}

// Run продлевает claim каждые interval до отмены контекста.
func (k *ClaimKeeper) Run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := k.Refresh(ctx)
			if err != nil {
				k.logger.Error("claim refresh failed", "error", err)
				continue
			}
			if n > 0 {
				k.logger.Debug("claims refreshed", "count", n)
			}
		}
	}
}
