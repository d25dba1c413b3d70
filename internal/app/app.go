package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gge-tracker/gge-tracker-sub001/external/gge"
	"github.com/gge-tracker/gge-tracker-sub001/internal/config"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/history"
	"github.com/gge-tracker/gge-tracker-sub001/internal/domain/pass"
	"github.com/gge-tracker/gge-tracker-sub001/internal/infrastructure/repository/cache"
	"github.com/gge-tracker/gge-tracker-sub001/internal/infrastructure/repository/postgres"
	"github.com/gge-tracker/gge-tracker-sub001/internal/observability"
	idgen "github.com/gge-tracker/gge-tracker-sub001/internal/platform/id"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/logging"
	"github.com/gge-tracker/gge-tracker-sub001/internal/platform/resilience"
	"github.com/gge-tracker/gge-tracker-sub001/internal/usecase"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

const (
	dbPingTimeout     = 5 * time.Second
	redisPingAttempts = 3
	redisPingDelay    = 2 * time.Second
)

// Scraper owns every resource one pass needs for one server.
type Scraper struct {
	Orchestrator *usecase.PassOrchestrator

	logger  *logging.Logger
	closers []func(context.Context) error
}

func NewScraper(ctx context.Context, cfg config.Config, server config.ServerDefinition, logger *logging.Logger) (_ *Scraper, err error) {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Scraper{logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	telemetry, err := observability.StartTelemetry(cfg, server.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("start telemetry: %w", err)
	}
	s.onClose(telemetry.Shutdown)

	pool, err := postgres.NewPool(ctx, databaseOpener(cfg, server.Database), postgres.PoolConfig{Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	s.onClose(func(context.Context) error { return pool.Close() })

	version, progress, err := s.progressStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewPassMetrics(observability.PushConfig{
		URL:     cfg.PushgatewayURL,
		Server:  server.Name,
		Timeout: cfg.PushTimeout,
	}, logger)

	client, err := gge.NewClient(gge.ClientConfig{
		BaseURL:      server.BaseURL,
		ServerHeader: server.Header,
		Timeout:      cfg.RequestTimeout,
		UserAgent:    cfg.UserAgent,
		Logger:       logger,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.CircuitEnabled,
			FailureThreshold: cfg.CircuitFailureCount,
			OpenTimeout:      cfg.CircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.CircuitHalfOpenMaxReq,
		},
		Observer: func(cmd gge.Command, outcome string) {
			metrics.ObserveRequest(string(cmd), outcome)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gge client: %w", err)
	}

	pacer := resilience.NewPacer(resilience.PacerConfig{
		Every:     cfg.PacerEvery,
		Pause:     cfg.PacerPause,
		MaxPerSec: cfg.PacerRatePerSecond,
	})
	registry := usecase.NewAllianceRegistry()
	snapshots := postgres.NewSnapshotRepository(pool)
	stats := postgres.NewStatisticsRepository(pool)

	deps := usecase.PassDependencies{
		Snapshots:  snapshots,
		Writer:     snapshots,
		Statistics: stats,
		Passes:     postgres.NewPassRepository(pool),
		Version:    version,
		Progress:   progress,
		Categories: usecase.NewCategoryFetcher(client, pacer, usecase.ListingRetryPolicy(), logger),
		Details:    usecase.NewDetailFetcher(client, pacer, usecase.DetailRetryPolicy()),
		History: usecase.NewHistoryWriter(postgres.NewHistoryRepository(pool), registry, usecase.HistoryWriterConfig{
			ChunkSize:      cfg.HistoryChunkSize,
			MaxConcurrency: cfg.HistoryMaxConcurrency,
		}, logger),
		Snapshot: usecase.NewSnapshotWriter(registry, usecase.SnapshotWriterConfig{
			StagingChunkSize: cfg.StagingChunkSize,
		}, logger),
		Aggregates: usecase.NewAggregateRefresher(stats, usecase.AggregateConfig{
			ProtectionWindow:   cfg.ProtectionWindow,
			ProtectionMinLevel: cfg.ProtectionMinLevel,
		}, logger),
		Registry: registry,
		IDs:      idgen.NewPassIDGenerator(server.Name),
		Metrics:  metrics,
	}

	s.Orchestrator = usecase.NewPassOrchestrator(deps, usecase.PassOrchestratorConfig{
		Server:           server.Name,
		Categories:       categoriesFromDefinitions(server.Categories),
		MaxDetailFetches: cfg.MaxDetailFetches,
		HistoryWorkers:   cfg.HistoryWorkers,
		DryRun:           cfg.DryRun,
	}, logger)

	return s, nil
}

func (s *Scraper) Run(ctx context.Context) (pass.Report, error) {
	return s.Orchestrator.Run(ctx)
}

// Close releases resources in reverse acquisition order.
func (s *Scraper) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Scraper) onClose(fn func(context.Context) error) {
	s.closers = append(s.closers, fn)
}

func (s *Scraper) progressStores(ctx context.Context, cfg config.Config) (pass.VersionCounter, pass.ProgressStore, error) {
	if !cfg.RedisEnabled {
		s.logger.Info("redis disabled, using in-memory version counter", "reason", "REDIS_ENABLED=false")
		return cache.NewMemoryVersionCounter(), cache.NewMemoryProgressStore(), nil
	}

	client, err := connectRedis(ctx, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, s.logger)
	if err != nil {
		return nil, nil, err
	}
	s.onClose(func(context.Context) error { return client.Close() })
	return cache.NewRedisVersionCounter(client), cache.NewRedisProgressStore(client), nil
}

func connectRedis(ctx context.Context, opts *redis.Options, logger *logging.Logger) (*redis.Client, error) {
	client := redis.NewClient(opts)
	policy := resilience.RetryPolicy{Name: "redis_connect", MaxAttempts: redisPingAttempts, Delay: redisPingDelay}
	err := policy.Do(ctx, func(ctx context.Context, attempt int) (bool, error) {
		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis ping failed", "addr", opts.Addr, "attempt", attempt, "error", err)
			return true, err
		}
		return false, nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	logger.Info("redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

func databaseOpener(cfg config.Config, database string) postgres.Opener {
	dsn := DatabaseURL(cfg, database)
	dbName := dbNameFromURL(dsn)

	return func(ctx context.Context) (*sqlx.DB, error) {
		db, err := otelsqlx.Open("postgres", dsn,
			otelsql.WithDBName(dbName),
			otelsql.WithQueryFormatter(formatDBQueryForTrace),
		)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping postgres %s: %w", dbName, err)
		}
		return db, nil
	}
}

func categoriesFromDefinitions(defs []config.CategoryDefinition) []usecase.Category {
	out := make([]usecase.Category, 0, len(defs))
	for _, def := range defs {
		kind := history.MetricKind(strings.TrimSpace(def.Kind))
		threshold := def.StopAtOrBelow
		if threshold == nil {
			threshold = usecase.DefaultThreshold(kind)
		}
		out = append(out, usecase.Category{
			Kind:          kind,
			ListType:      def.ListType,
			Brackets:      append([]int(nil), def.Brackets...),
			StopAtOrBelow: threshold,
		})
	}
	return out
}
