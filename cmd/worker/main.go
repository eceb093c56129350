// Package main - точка входа для фоновых процессов (Worker) Avalia Hub.
//
// Worker отвечает за периодические задачи:
//   - Полный пересчёт агрегатов заданий (исправляет значения, записанные
//     в обход API)
//   - Возобновление каскадов состава класса, остановленных на сбойном шаге
//
// Worker работает только с PostgreSQL. Курсоры каскадов читаются из Redis,
// поэтому без Redis задача возобновления не регистрируется.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avalia-hub/avalia-hub/config"
	"github.com/avalia-hub/avalia-hub/internal/application/aggregate"
	"github.com/avalia-hub/avalia-hub/internal/application/saga"
	"github.com/avalia-hub/avalia-hub/internal/domain/shared"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/postgres"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/redis"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/scheduler"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/scheduler/jobs"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
	"github.com/avalia-hub/avalia-hub/pkg/retry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.UsesMemoryStore() {
		return errors.New("DATABASE_URL is required")
	}
	if !cfg.Scheduler.Enabled {
		return errors.New("scheduler is disabled (SCHEDULER_ENABLED=false)")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.ParseFormat(cfg.Observability.LogFormat),
	}).With(logger.String("service", "worker"))

	log.Info("starting Avalia Hub Worker",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПОДКЛЮЧЕНИЕ К БАЗЕ ДАННЫХ
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, postgres.Config{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		log.Info("checking database migrations...")
		if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	classes := postgres.NewClassRepository(dbConn)
	students := postgres.NewStudentRepository(dbConn)
	assignments := postgres.NewAssignmentRepository(dbConn)
	evaluations := postgres.NewEvaluationRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (блокировка пересчёта и курсоры каскадов)
	// ─────────────────────────────────────────────────────────────────────────
	maintainerOpts := []aggregate.Option{
		aggregate.WithConfig(aggregate.Config{LockWait: cfg.Consistency.LockWait}),
	}
	var cursors *redis.CursorStore

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err := openRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()
		log.Info("Redis connection established")

		cursors = redis.NewCursorStore(redisCache)
		if cfg.Consistency.DistributedLock {
			maintainerOpts = append(maintainerOpts, aggregate.WithLocker(redis.NewRecomputeLock(redisCache, redis.LockConfig{
				TTL:           cfg.Consistency.LockTTL,
				RetryInterval: redis.DefaultLockConfig().RetryInterval,
			}, appLog)))
		}
	}

	maintainer := aggregate.NewMaintainer(assignments, evaluations, appLog, maintainerOpts...)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.Config{
		Logger:            log,
		MaxConcurrentJobs: cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        cfg.Scheduler.JobTimeout,
	})

	rebuildSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.RebuildAggregatesSchedule)
	if err != nil {
		return err
	}
	rebuild := jobs.NewRebuildAggregatesJob(assignments, maintainer, log, jobs.RebuildAggregatesConfig{
		PageSize: cfg.Scheduler.RebuildPageSize,
		Strategy: cfg.Consistency.EvaluationStrategy,
		Retrier:  retry.StoreRetrier(shared.IsRetryable),
	})
	if err := sched.Register(rebuild, rebuildSchedule); err != nil {
		return fmt.Errorf("failed to register %s: %w", rebuild.Name(), err)
	}

	if cursors != nil {
		resumeSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.ResumeCascadesSchedule)
		if err != nil {
			return err
		}
		cascade := saga.NewRosterCascade(
			classes, students, assignments, evaluations, maintainer, cursors,
			saga.CascadeConfig{
				StepTimeout: cfg.Consistency.CascadeStepTimeout,
				Strategy:    cfg.Consistency.CascadeStrategy,
				StaleAfter:  cfg.Scheduler.CascadeStaleAfter,
			},
			appLog,
		)
		resume := jobs.NewResumeCascadesJob(cascade, log, jobs.ResumeCascadesConfig{
			StaleAfter: cfg.Scheduler.CascadeStaleAfter,
			MaxRuns:    jobs.DefaultResumeCascadesConfig().MaxRuns,
		})
		if err := sched.Register(resume, resumeSchedule); err != nil {
			return fmt.Errorf("failed to register %s: %w", resume.Name(), err)
		}
	} else {
		log.Warn("Redis is disabled, stopped cascades will not be resumed")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	for _, job := range sched.ListJobs() {
		log.Info("job scheduled", "job", job.Name, "schedule", job.Schedule, "next_run", job.NextRun)
	}
	log.Info("Avalia Hub Worker is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigCh
	log.Info("received shutdown signal", "signal", sig.String())

	// Stop отменяет контекст задач и ждёт их завершения.
	log.Info("stopping scheduler...")
	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	_ = level.UnmarshalText([]byte(cfg.Observability.LogLevel))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

// openRedis подключается по REDIS_URL или по отдельным параметрам.
func openRedis(cfg config.RedisConfig) (*redis.Cache, error) {
	if cfg.URL != "" {
		return redis.NewCacheFromURL(cfg.URL)
	}
	rc := redis.DefaultConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout
	return redis.NewCache(rc)
}
