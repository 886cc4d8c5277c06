package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter ограничивает частоту уведомлений по ключу.
type Limiter interface {
	// Allow сообщает, можно ли отправить ещё одно уведомление.
	Allow(ctx context.Context, key string) (bool, error)
}

// ParseLimit разбирает лимит вида "5/1h" (5 событий за час).
func ParseLimit(s string) (int, time.Duration, error) {
	count, window, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, fmt.Errorf("parse limit %q: expected <count>/<window>", s)
	}

	n, err := strconv.Atoi(count)
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("parse limit %q: invalid count", s)
	}

	d, err := time.ParseDuration(window)
	if err != nil || d <= 0 {
		return 0, 0, fmt.Errorf("parse limit %q: invalid window", s)
	}
	return n, d, nil
}

// fixedWindow атомарно увеличивает счётчик окна и ставит TTL
// при первом событии.
var fixedWindow = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
	end
	if current > tonumber(ARGV[1]) then
		return 0
	end
	return 1
`)

// RedisLimiter — общий для всех узлов лимит в фиксированном окне.
//
// При недоступности Redis уведомление пропускается (fail open):
// лучше лишняя SMS, чем потерянное напоминание.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRedisLimiter создаёт лимитер на limit событий за window.
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration, logger *slog.Logger) *RedisLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client: client,
		prefix: "alarmd:ratelimit:",
		limit:  limit,
		window: window,
		logger: logger,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := fixedWindow.Run(ctx, r.client, []string{r.prefix + key}, r.limit, r.window.Milliseconds()).Int()
	if err != nil {
		r.logger.Warn("redis rate limiter failed, allowing", "key", key, "error", err)
		return true, nil
	}
	return result == 1, nil
}

// LocalLimiter — лимит в памяти процесса на token bucket.
// Используется, когда Redis не настроен.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    rate.Limit
	burst    int
}

// NewLocalLimiter создаёт лимитер на limit событий за window.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	return &LocalLimiter{
		limiters: make(map[string]*rate.Limiter),
		every:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow(), nil
}
