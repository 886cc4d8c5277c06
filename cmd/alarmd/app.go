package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Alarmd/internal/config"
	"github.com/shaiso/Alarmd/internal/delivery"
	"github.com/shaiso/Alarmd/internal/maintenance"
	"github.com/shaiso/Alarmd/internal/mq"
	"github.com/shaiso/Alarmd/internal/notify"
	"github.com/shaiso/Alarmd/internal/repo"
	"github.com/shaiso/Alarmd/internal/telemetry"
)

// app — общие для команд ресурсы: пулы, keepers, кластер шардов.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pools   []*pgxpool.Pool
	keepers []*repo.ClaimKeeper
	cluster *repo.Cluster
	closers []func()
}

func newLogger(cfg *config.Config) *slog.Logger {
	return telemetry.NewLogger(telemetry.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}

// newApp подключается ко всем шардам. При ошибке уже открытые
// пулы закрываются.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	shards := make([]*repo.Shard, 0, len(cfg.Shards))
	for _, sc := range cfg.Shards {
		shard := &repo.Shard{
			Name:      sc.Name,
			MinTenant: sc.MinTenant,
			MaxTenant: sc.MaxTenant,
			Legacy:    sc.Legacy,
		}
		if !sc.Legacy {
			if shard.Store, err = a.openShard(ctx, sc); err != nil {
				return nil, fmt.Errorf("shard %s: %w", sc.Name, err)
			}
		}
		shards = append(shards, shard)
	}

	if a.cluster, err = repo.NewCluster(shards...); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openShard(ctx context.Context, sc config.ShardConfig) (*repo.TriggerRepo, error) {
	write, err := repo.NewPool(ctx, repo.PoolConfig{DSN: sc.WriteDSN, MaxConns: sc.MaxConns})
	if err != nil {
		return nil, fmt.Errorf("write pool: %w", err)
	}
	a.pools = append(a.pools, write)

	read := write
	if sc.ReadDSN != sc.WriteDSN {
		if read, err = repo.NewPool(ctx, repo.PoolConfig{DSN: sc.ReadDSN, MaxConns: sc.MaxConns}); err != nil {
			return nil, fmt.Errorf("read pool: %w", err)
		}
		a.pools = append(a.pools, read)
	}

	logger := telemetry.WithShard(a.logger, sc.Name)
	keeper := repo.NewClaimKeeper(write, repo.KeeperConfig{
		Interval: a.cfg.Delivery.ClaimRefresh,
		Logger:   logger,
	})
	a.keepers = append(a.keepers, keeper)

	a.logger.Info("shard connected", "shard", sc.Name, "replica", sc.ReadDSN != sc.WriteDSN)

	return repo.NewTriggerRepo(repo.TriggerRepoConfig{
		Shard:  sc.Name,
		Write:  write,
		Read:   read,
		Keeper: keeper,
		Logger: logger,
	}), nil
}

// stores адаптирует кластер к delivery.StoreResolver.
func (a *app) stores() delivery.StoreResolver {
	return delivery.ResolverFunc(func(tenantID int) (delivery.Store, error) {
		store, err := a.cluster.ForTenant(tenantID)
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}

// maintenanceShards возвращает шарды, обслуживаемые воркером.
func (a *app) maintenanceShards() []maintenance.Shard {
	var shards []maintenance.Shard
	for _, s := range a.cluster.Shards() {
		if s.Legacy || s.Store == nil {
			continue
		}
		shards = append(shards, s.Store)
	}
	return shards
}

// runKeepers продлевает claim'ы до отмены ctx.
func (a *app) runKeepers(ctx context.Context) {
	for _, k := range a.keepers {
		go k.Run(ctx)
	}
}

// buildRegistry собирает диспетчеры по конфигурации.
// publisher может быть nil, тогда почта не доставляется.
func (a *app) buildRegistry(publisher notify.Publisher) (*notify.Registry, error) {
	registry, err := notify.NewRegistry()
	if err != nil {
		return nil, err
	}

	if a.cfg.Mail.Enabled {
		if publisher == nil {
			a.logger.Warn("mail delivery disabled: RabbitMQ is not available")
		} else if err := registry.Register(notify.NewMailDispatcher(notify.MailConfig{
			Publisher: publisher,
			Shift:     a.cfg.Mail.Shift,
			Logger:    a.logger,
		})); err != nil {
			return nil, err
		}
	}

	if sms := a.cfg.SMS; sms.GatewayURL != "" {
		limiter, err := a.smsLimiter()
		if err != nil {
			return nil, err
		}
		tmpl, err := notify.ParseTemplate(sms.Template)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(notify.NewSMSDispatcher(notify.SMSConfig{
			BaseURL:  sms.GatewayURL,
			Token:    sms.Token,
			Timeout:  sms.Timeout,
			Retries:  sms.Retries,
			Shift:    sms.Shift,
			Limiter:  limiter,
			Template: tmpl,
			Logger:   a.logger,
		})); err != nil {
			return nil, err
		}
	}

	if len(registry.Actions()) == 0 {
		a.logger.Warn("no notification dispatchers configured, nothing will be delivered")
	}
	return registry, nil
}

func (a *app) smsLimiter() (notify.Limiter, error) {
	if a.cfg.SMS.Limit == "" {
		return nil, nil
	}
	limit, window, err := notify.ParseLimit(a.cfg.SMS.Limit)
	if err != nil {
		return nil, err
	}

	if a.cfg.Redis.Addr == "" {
		a.logger.Info("sms rate limit is process-local", "limit", a.cfg.SMS.Limit)
		return notify.NewLocalLimiter(limit, window), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { client.Close() })
	return notify.NewRedisLimiter(client, limit, window, a.logger), nil
}

// newDelivery собирает планировщик, воркер и хук.
func (a *app) newDelivery(registry *notify.Registry) (*delivery.Scheduler, *delivery.Worker, *delivery.Hook) {
	d := a.cfg.Delivery
	scheduler := delivery.New(delivery.Config{
		Registry:        registry,
		Stores:          a.stores(),
		Logger:          a.logger,
		DeliveryTimeout: d.DeliveryTimeout,
	})
	worker := delivery.NewWorker(delivery.WorkerConfig{
		Scheduler:   scheduler,
		Registry:    registry,
		LookAhead:   d.LookAhead,
		OverdueWait: d.OverdueWait,
		Logger:      a.logger,
	})
	hook := delivery.NewHook(delivery.HookConfig{
		Scheduler: scheduler,
		Stores:    a.stores(),
		Registry:  registry,
		LookAhead: d.LookAhead,
		Logger:    a.logger,
	})
	return scheduler, worker, hook
}

// connectMQ подключается к RabbitMQ. Недоступный брокер не фатален:
// процесс работает без почты и без потока изменений календаря.
func (a *app) connectMQ(ctx context.Context) *mq.Connection {
	conn, err := mq.NewConnection(mq.ConnectionConfig{URL: a.cfg.RabbitMQ.URL, Logger: a.logger})
	if err != nil {
		a.logger.Warn("RabbitMQ not available", "error", err)
		return nil
	}
	a.logger.Info("RabbitMQ connected")

	if err := mq.SetupTopology(ctx, conn); err != nil {
		a.logger.Warn("failed to setup topology", "error", err)
	}
	a.closers = append(a.closers, func() { conn.Close() })
	return conn
}

// shutdown возвращает все незавершённые задачи в хранилище.
// Выполняется с собственным контекстом: ctx процесса уже отменён.
func shutdown(scheduler *delivery.Scheduler, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pending := scheduler.Len()
	scheduler.Cancel(ctx)
	logger.Info("scheduler stopped", "returned", pending)
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	for _, p := range a.pools {
		p.Close()
	}
}

var _ maintenance.Shard = (*repo.TriggerRepo)(nil)
