package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/Alarmd/internal/api"
	"github.com/shaiso/Alarmd/internal/config"
	"github.com/shaiso/Alarmd/internal/feed"
	"github.com/shaiso/Alarmd/internal/maintenance"
	"github.com/shaiso/Alarmd/internal/mq"
	"github.com/shaiso/Alarmd/internal/notify"
)

func newServeCmd(loadFn func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the delivery service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadFn()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	logger := newLogger(cfg)
	logger.Info("starting alarmd", "version", version, "shards", len(cfg.Shards))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// RabbitMQ
	conn := a.connectMQ(ctx)
	var publisher notify.Publisher
	if conn != nil {
		publisher = mq.NewPublisher(conn, logger)
	}

	registry, err := a.buildRegistry(publisher)
	if err != nil {
		return err
	}
	scheduler, worker, hook := a.newDelivery(registry)
	defer shutdown(scheduler, logger)

	runner, err := maintenance.New(maintenance.Config{
		Schedule: cfg.Delivery.Schedule,
		Worker:   worker,
		Shards:   a.maintenanceShards(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	a.runKeepers(ctx)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Start(ctx)
	}()

	// Поток изменений календаря
	if conn != nil && cfg.RabbitMQ.Feed {
		consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
			Queue:    mq.QueueCalendarEvents,
			Handler:  feed.NewHandler(hook, scheduler, logger).Handle,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Logger:   logger,
		})
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("calendar feed stopped", "error", err)
			}
		}()
		defer consumer.Stop()
	}

	// HTTP: API + /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	api.NewHandler(api.Config{
		Tasks:     scheduler,
		Hook:      hook,
		Canceller: scheduler,
		Stores:    a.stores(),
		Logger:    logger,
	}).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("failed to notify systemd", "error", err)
	}

	// Ожидаем сигнал завершения или падение HTTP сервера
	select {
	case <-ctx.Done():
	case err = <-errCh:
		logger.Error("http server error", "error", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)
	stop()
	// текущий цикл обслуживания может ещё планировать задачи
	<-runnerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	logger.Info("alarmd stopping")
	return err
}
