// Package main - точка входа для HTTP API Avalia Hub.
//
// API обслуживает CRUD классов, студентов, заданий и оценок. Каждая
// мутация синхронно пересчитывает агрегаты заданий (mediaGeral), а
// изменения состава класса проходят через каскад с курсором, который
// можно возобновить после сбоя.
//
// Без DATABASE_URL API работает на in-memory хранилище (разработка).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Application layer
	"github.com/avalia-hub/avalia-hub/internal/application/aggregate"
	"github.com/avalia-hub/avalia-hub/internal/application/command"
	"github.com/avalia-hub/avalia-hub/internal/application/query"
	"github.com/avalia-hub/avalia-hub/internal/application/saga"

	// Domain layer
	"github.com/avalia-hub/avalia-hub/internal/domain/assignment"
	"github.com/avalia-hub/avalia-hub/internal/domain/classroom"
	"github.com/avalia-hub/avalia-hub/internal/domain/evaluation"
	"github.com/avalia-hub/avalia-hub/internal/domain/student"

	// Infrastructure layer
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/memory"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/postgres"
	"github.com/avalia-hub/avalia-hub/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/avalia-hub/avalia-hub/internal/interface/http"

	"github.com/avalia-hub/avalia-hub/config"
	"github.com/avalia-hub/avalia-hub/pkg/logger"
)

// stores - репозитории выбранного хранилища.
type stores struct {
	students    student.Repository
	classes     classroom.Repository
	assignments assignment.Repository
	evaluations evaluation.Repository
}

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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddCaller: cfg.App.Debug,
	}).With(logger.String("service", "api"))

	log.Info("starting Avalia Hub API",
		"env", string(cfg.App.Environment),
		"version", cfg.App.Version,
		"memory_store", cfg.UsesMemoryStore(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ (PostgreSQL или in-memory)
	// ─────────────────────────────────────────────────────────────────────────
	health := map[string]httpserver.HealthChecker{}
	var repos stores

	if cfg.UsesMemoryStore() {
		log.Warn("DATABASE_URL is not set, using the in-memory store")
		db := memory.NewDB()
		repos = stores{
			students:    memory.NewStudentRepository(db),
			classes:     memory.NewClassRepository(db),
			assignments: memory.NewAssignmentRepository(db),
			evaluations: memory.NewEvaluationRepository(db),
		}
	} else {
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
			log.Info("applying database migrations...")
			if err := postgres.NewMigrator(dbConn).Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info("database schema is up to date")
		}

		health["postgres"] = dbConn
		repos = stores{
			students:    postgres.NewStudentRepository(dbConn),
			classes:     postgres.NewClassRepository(dbConn),
			assignments: postgres.NewAssignmentRepository(dbConn),
			evaluations: postgres.NewEvaluationRepository(dbConn),
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS (опционально: блокировка пересчёта и курсоры каскадов)
	// ─────────────────────────────────────────────────────────────────────────
	var maintainerOpts []aggregate.Option
	maintainerOpts = append(maintainerOpts, aggregate.WithConfig(aggregate.Config{LockWait: cfg.Consistency.LockWait}))
	var cursors saga.CursorStore = saga.NewMemoryCursorStore()

	if !cfg.Redis.Disabled {
		log.Info("connecting to Redis...")
		redisCache, err := openRedis(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisCache.Close()
		log.Info("Redis connection established")

		health["redis"] = redisCache
		cursors = redis.NewCursorStore(redisCache)
		if cfg.Consistency.DistributedLock {
			maintainerOpts = append(maintainerOpts, aggregate.WithLocker(redis.NewRecomputeLock(redisCache, redis.LockConfig{
				TTL:           cfg.Consistency.LockTTL,
				RetryInterval: redis.DefaultLockConfig().RetryInterval,
			}, appLog)))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПОДДЕРЖАНИЕ АГРЕГАТОВ И КАСКАД СОСТАВА
	// ─────────────────────────────────────────────────────────────────────────
	maintainer := aggregate.NewMaintainer(repos.assignments, repos.evaluations, appLog, maintainerOpts...)
	cascade := saga.NewRosterCascade(
		repos.classes,
		repos.students,
		repos.assignments,
		repos.evaluations,
		maintainer,
		cursors,
		saga.CascadeConfig{
			StepTimeout: cfg.Consistency.CascadeStepTimeout,
			Strategy:    cfg.Consistency.CascadeStrategy,
			StaleAfter:  cfg.Scheduler.CascadeStaleAfter,
		},
		appLog,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. КОМАНДЫ И ЗАПРОСЫ
	// ─────────────────────────────────────────────────────────────────────────
	ids := command.UUIDGenerator{}
	deps := httpserver.Dependencies{
		Evaluations: command.NewEvaluationHandler(
			repos.evaluations, repos.assignments, repos.students, maintainer, ids,
			command.EvaluationConfig{Strategy: cfg.Consistency.EvaluationStrategy}, appLog,
		),
		Assignments: command.NewAssignmentHandler(repos.assignments, ids),
		Classes:     command.NewClassHandler(repos.classes, repos.students, cascade, ids, appLog),
		Students:    command.NewStudentHandler(repos.students, repos.evaluations, cascade, maintainer, ids, appLog),

		GetAssignment:   query.NewGetAssignmentHandler(repos.assignments, repos.classes, repos.students, repos.evaluations),
		ListAssignments: query.NewListAssignmentsByClassHandler(repos.assignments, repos.classes, maintainer, cfg.Consistency.EvaluationStrategy),
		GradeReport:     query.NewGradeReportHandler(repos.assignments, repos.students, repos.evaluations),
		ListEvaluations: query.NewListEvaluationsHandler(repos.assignments, repos.evaluations),
		ClassQueries:    query.NewClassQueries(repos.classes, repos.students),
		StudentQueries:  query.NewStudentQueries(repos.students),

		HealthChecks: health,
		Logger:       appLog,
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	server := httpserver.NewServer(httpserver.Config{
		Host:               cfg.HTTP.Host,
		Port:               cfg.HTTP.Port,
		ReadTimeout:        cfg.HTTP.ReadTimeout,
		WriteTimeout:       cfg.HTTP.WriteTimeout,
		IdleTimeout:        cfg.HTTP.IdleTimeout,
		EnableCORS:         cfg.HTTP.EnableCORS,
		AllowedOrigins:     cfg.HTTP.AllowedOrigins,
		Debug:              cfg.App.Debug,
		DisableRequestLogs: !cfg.HTTP.AccessLog,
	}, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("Avalia Hub API is running",
		"address", fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("HTTP server error", "error", err)
			return err
		}
		return nil
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		log.Warn("shutdown completed with errors")
		return nil
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для сообщений процесса.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Observability.LogLevel)}

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

func slogLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
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
