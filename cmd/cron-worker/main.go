package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/supplyhub-backend/internal/app"
	"github.com/angelmondragon/supplyhub-backend/internal/cron"
	"github.com/angelmondragon/supplyhub-backend/internal/notifications"
	"github.com/angelmondragon/supplyhub-backend/pkg/config"
	"github.com/angelmondragon/supplyhub-backend/pkg/db"
	"github.com/angelmondragon/supplyhub-backend/pkg/logger"
	"github.com/angelmondragon/supplyhub-backend/pkg/metrics"
	"github.com/angelmondragon/supplyhub-backend/pkg/migrate"
	"github.com/angelmondragon/supplyhub-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Env:         cfg.App.Env,
		Format:      cfg.App.LogFormat,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	lock, closeLock := buildLock(ctx, cfg, logg)
	defer closeLock()

	// Settlement events from the sweep go to the log; the API owns the Kafka
	// publisher.
	svcs, err := app.NewServices(app.Params{
		DB:       dbClient,
		Store:    cfg.Store,
		Notifier: notifications.NewLogNotifier(logg),
		Logger:   logg,
		Metrics:  metrics.NewEngine(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to wire services", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry()
	if err != nil {
		logg.Error(ctx, "failed to create job registry", err)
		os.Exit(1)
	}
	if cfg.FeatureFlags.EscrowAutoRelease {
		job, err := cron.NewEscrowReleaseJob(cron.EscrowReleaseJobParams{
			Logger:  logg,
			Escrows: svcs.Ledger,
			Orders:  svcs.Orders,
			Batch:   cfg.Cron.ReleaseBatch,
		})
		if err != nil {
			logg.Error(ctx, "failed to create escrow release job", err)
			os.Exit(1)
		}
		if err := registry.Register(job); err != nil {
			logg.Error(ctx, "failed to register escrow release job", err)
			os.Exit(1)
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(ctx, "failed to create cron service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Len(),
	})
	if registry.Len() == 0 {
		logg.Warn(ctx, "no cron jobs enabled")
	}

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// buildLock prefers the shared Redis lock. Dev runs without Redis fall back
// to an in-process lock, which is only safe with a single worker.
func buildLock(ctx context.Context, cfg *config.Config, logg *logger.Logger) (cron.Lock, func()) {
	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		if !cfg.App.IsDev() {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "redis unavailable, using local cron lock")
		return &cron.LocalLock{}, func() {}
	}
	closeFn := func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}
	lock, err := cron.NewRedisLock(redisClient, redis.LockKey("cron-worker:"+cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		closeFn()
		logg.Error(ctx, "failed to create cron lock", err)
		os.Exit(1)
	}
	return lock, closeFn
}
