// Package main is the entry point for the progression evaluation worker.
//
// The worker owns the whole pipeline: it accepts triggers over HTTP,
// routes them onto per-user dispatcher lanes, applies SRS progress,
// maintains streaks and aggregate stats, awards achievements and runs
// the periodic streak/achievement sweeps.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kotoba-hub/progress-engine/config"
	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/application/eventhandler"
	"github.com/kotoba-hub/progress-engine/internal/application/query"
	"github.com/kotoba-hub/progress-engine/internal/application/saga"
	"github.com/kotoba-hub/progress-engine/internal/domain/achievement"
	"github.com/kotoba-hub/progress-engine/internal/domain/notification"
	"github.com/kotoba-hub/progress-engine/internal/domain/progress"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/domain/srs"
	"github.com/kotoba-hub/progress-engine/internal/domain/stats"
	"github.com/kotoba-hub/progress-engine/internal/domain/streak"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/messaging"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/postgres"
	redisstore "github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/redis"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/scheduler"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/service"
	httpapi "github.com/kotoba-hub/progress-engine/internal/interface/http"
	"github.com/kotoba-hub/progress-engine/pkg/circuitbreaker"
	"github.com/kotoba-hub/progress-engine/pkg/logger"
	"github.com/kotoba-hub/progress-engine/pkg/retry"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// repos bundles the storage implementations the pipeline runs on,
// whichever backend provides them.
type repos struct {
	stats     stats.Repository
	items     progress.Repository
	refs      progress.RefChecker
	activity  streak.Repository
	awards    achievement.Repository
	catalogue achievement.CatalogueRepository
	tokens    command.TokenStore
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// Configuration and logging
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.Setup(logger.Options{
		Env:   string(cfg.App.Environment),
		Level: cfg.App.LogLevel,
	})
	log.Info("starting progress engine worker",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.String("timezone", cfg.App.Timezone),
	)

	cal := timeutil.NewCalendar(cfg.App.Location)

	// ─────────────────────────────────────────────────────────────────────────
	// Storage
	// ─────────────────────────────────────────────────────────────────────────
	var (
		rs     repos
		dbConn *postgres.Connection
	)

	if cfg.Database.URL != "" {
		log.Info("connecting to postgres")
		dbConn, err = postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer dbConn.Close()

		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		catalogueRepo := postgres.NewCatalogueRepo(dbConn)
		if err := catalogueRepo.Seed(ctx, achievement.Builtin()); err != nil {
			return fmt.Errorf("failed to seed achievement catalogue: %w", err)
		}

		rs = repos{
			stats:     postgres.NewStatRepo(dbConn),
			items:     postgres.NewProgressRepo(dbConn),
			refs:      postgres.NewStudyItemRepo(dbConn),
			activity:  postgres.NewActivityRepo(dbConn),
			awards:    postgres.NewAchievementRepo(dbConn),
			catalogue: catalogueRepo,
		}
		log.Info("postgres storage ready")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		rs = repos{
			stats:     memory.NewStatStore(),
			items:     memory.NewProgressStore(),
			refs:      memory.NewPermissiveRefTable(),
			activity:  memory.NewActivityStore(),
			awards:    memory.NewAchievementStore(),
			catalogue: memory.NewCatalogueStore(achievement.Builtin()...),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (dedup tokens and cross-process events)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		redisClient *goredis.Client
		bus         shared.EventBus
	)

	if !cfg.Redis.Disabled {
		redisCfg := redisstore.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisClient, err = redisstore.NewClient(ctx, redisCfg)
		if err != nil {
			log.Warn("redis unavailable, falling back to in-memory dedup and events",
				slog.Any("error", err))
			redisClient = nil
		}
	}

	if redisClient != nil {
		defer redisClient.Close()
		rs.tokens = redisstore.NewDedupStore(redisClient, cfg.Redis.DedupRetention)
		bus = messaging.NewRedisEventBus(redisClient, messaging.DefaultEventChannel, log)
		log.Info("redis ready",
			slog.String("addr", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))
	} else {
		rs.tokens = memory.NewTokenStore()
		bus = messaging.NewInMemoryEventBus(log)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Outbound notifications
	// ─────────────────────────────────────────────────────────────────────────
	var notifier notification.Notifier = service.NopNotifier{}
	if cfg.Notifier.BaseURL != "" {
		breaker := circuitbreaker.New(circuitbreaker.Config{
			Name:                "notifier",
			FailureThreshold:    cfg.Notifier.BreakerFailureThreshold,
			SuccessThreshold:    2,
			Timeout:             cfg.Notifier.BreakerTimeout,
			MaxHalfOpenRequests: 1,
		})
		notifier = service.NewWebhookNotifier(service.WebhookNotifierConfig{
			BaseURL:   cfg.Notifier.BaseURL,
			AuthToken: cfg.Notifier.AuthToken,
			Timeout:   cfg.Notifier.Timeout,
			Breaker:   breaker,
			Logger:    log,
		})
		log.Info("webhook notifier configured", slog.String("base_url", cfg.Notifier.BaseURL))
	} else {
		log.Info("notifier not configured, notifications disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application pipeline
	// ─────────────────────────────────────────────────────────────────────────
	mapper := srs.NewMapper(log)

	applyEvent := command.NewApplyEventHandler(
		rs.stats, rs.items, rs.refs, rs.tokens,
		mapper, progress.DefaultPointsTable(), cal, log,
	)
	recordActivity := command.NewRecordActivityHandler(
		rs.activity, rs.stats, streak.DefaultRewardTable(),
		cal, command.DefaultRecordActivityConfig(), log,
	)
	applyFreeze := command.NewApplyFreezeHandler(rs.activity, cal, log)
	awardFlow := saga.NewAwardFlow(rs.catalogue, rs.awards, rs.stats, notifier, bus, log)
	pipeline := eventhandler.NewOnTriggerHandler(
		applyEvent, recordActivity, awardFlow, notifier, bus, log,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// Dispatcher
	// ─────────────────────────────────────────────────────────────────────────
	dispatcherCfg := messaging.DefaultDispatcherConfig()
	dispatcherCfg.LaneCount = cfg.Dispatcher.LaneCount
	dispatcherCfg.LaneBuffer = cfg.Dispatcher.LaneBuffer
	dispatcherCfg.JobTimeout = cfg.Dispatcher.JobTimeout
	dispatcherCfg.RetryConfig = retry.Config{
		MaxAttempts:  cfg.Dispatcher.MaxAttempts,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
	dispatcherCfg.DeadLetterQueueSize = cfg.Dispatcher.DeadLetterQueueSize
	dispatcherCfg.Logger = log

	dispatcher := messaging.NewDispatcher(pipeline.Handle, dispatcherCfg)
	dispatcher.Start()
	log.Info("dispatcher started", slog.Int("lanes", cfg.Dispatcher.LaneCount))

	// ─────────────────────────────────────────────────────────────────────────
	// Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(rs.activity, notifier, dispatcher, cal, scheduler.Config{
			AtRiskInterval: cfg.Scheduler.AtRiskInterval,
			ReevalHour:     cfg.Scheduler.ReevalHour,
		}, log)
		if err := sched.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("scheduler started",
			slog.Duration("at_risk_interval", cfg.Scheduler.AtRiskInterval),
			slog.Int("reeval_hour", cfg.Scheduler.ReevalHour),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// HTTP API
	// ─────────────────────────────────────────────────────────────────────────
	health := httpapi.NewHealthChecker()
	if dbConn != nil {
		health.AddCheck("postgres", dbConn.Ping)
	}
	if redisClient != nil {
		health.AddCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	serverCfg := httpapi.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverCfg.AuthToken = cfg.HTTP.AuthToken

	server := httpapi.NewServer(serverCfg, httpapi.Dependencies{
		Enqueuer:      dispatcher,
		Metrics:       dispatcher.Metrics(),
		Freeze:        applyFreeze,
		UserProgress:  query.NewGetUserProgressHandler(rs.stats, rs.items, mapper),
		DailyProgress: query.NewGetDailyProgressHandler(rs.stats, rs.activity, cal),
		Calendar:      cal,
		Health:        health,
		Logger:        log,
	})

	serverErr := server.StartAsync()
	log.Info("trigger intake listening", slog.String("address", server.Address()))

	// ─────────────────────────────────────────────────────────────────────────
	// Shutdown
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			log.Error("http server failed", slog.Any("error", err))
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown", slog.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", slog.Any("error", err))
	}
	if sched != nil {
		sched.Stop()
	}
	// Stop drains every lane before returning, so accepted triggers
	// finish even during shutdown.
	dispatcher.Stop()

	log.Info("shutdown completed")
	return nil
}
