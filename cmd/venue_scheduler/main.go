package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Freeeeeet/venue_scheduler/internal/app"
	"github.com/Freeeeeet/venue_scheduler/internal/config"
	"github.com/Freeeeeet/venue_scheduler/internal/lease"
	"github.com/Freeeeeet/venue_scheduler/internal/repository"
	"github.com/Freeeeeet/venue_scheduler/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.GetDBDSN())
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	migrator, err := app.NewMigrator(pool, cfg.MigrationsDir, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	scheduleRepo := repository.NewScheduleRepository(pool, logger)
	eventRepo := repository.NewEventRepository(pool)

	eventService := service.NewEventService(eventRepo, logger)

	var locker lease.Locker = lease.NewLocalLocker()
	if cfg.UseRedisLease() {
		redisLocker := lease.NewRedisLocker(lease.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword))
		if err := redisLocker.Ping(ctx); err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		locker = redisLocker
	}

	scheduler := app.NewScheduler(scheduleRepo, eventService, locker, app.SchedulerOptions{
		Enabled:    cfg.EnableCron,
		Spec:       cfg.CronSpec,
		Location:   cfg.Location,
		LeaseTTL:   cfg.LeaseTTL,
		JobTimeout: cfg.JobTimeout,
	}, logger)

	logger.Info("Starting venue scheduler",
		zap.Bool("enable_cron", cfg.EnableCron),
		zap.String("cron_spec", cfg.CronSpec),
		zap.String("timezone", cfg.Timezone),
		zap.Bool("redis_lease", cfg.UseRedisLease()),
	)

	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	if cfg.EnableCron && cfg.RunOnStart {
		go scheduler.RunNow(ctx)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("Scheduler did not stop in time")
	}
}
