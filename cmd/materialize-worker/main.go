package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hackgods/clinic-slot-booking/internal/config"
	"github.com/hackgods/clinic-slot-booking/internal/db"
	"github.com/hackgods/clinic-slot-booking/internal/logging"
	"github.com/hackgods/clinic-slot-booking/internal/notify"
	redisclient "github.com/hackgods/clinic-slot-booking/internal/redis"
	"github.com/hackgods/clinic-slot-booking/internal/scheduling"
	"github.com/hackgods/clinic-slot-booking/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New("prod", "info")
		bootLogger.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "materialize-worker").Logger()
	logger.Info().
		Str("env", cfg.Env).
		Str("schedule", cfg.MaterializeCron).
		Int("horizon_days", cfg.MaterializeHorizonDays).
		Msg("materialize-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	// Materializing never creates bookings, so nothing is published.
	repo := scheduling.NewPgRepository(pgPool)
	svc := scheduling.NewService(repo, notify.NewLogPublisher(logger), cfg, logger)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	job := worker.NewMaterializeJob(svc, locker, cfg.Location, cfg.MaterializeHorizonDays, cfg.LockTTL, logger)

	// Run once at startup
	_ = job.RunOnce(rootCtx)

	c := cron.New(cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc(cfg.MaterializeCron, func() {
		_ = job.RunOnce(rootCtx)
	}); err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.MaterializeCron).Msg("invalid MATERIALIZE_CRON")
	}
	c.Start()

	<-rootCtx.Done()
	logger.Info().Msg("shutdown signal received, stopping materialize worker")

	// Wait for a run in progress.
	<-c.Stop().Done()
	logger.Info().Msg("materialize-worker stopped")
}
