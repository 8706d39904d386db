package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"consensus-radar/internal/collect"
	"consensus-radar/internal/consensus"
	"consensus-radar/internal/fetchpool"
	"consensus-radar/internal/logger"
	"consensus-radar/internal/progress"
	"consensus-radar/internal/server"
	"consensus-radar/internal/source"
	"consensus-radar/internal/storage"
	"consensus-radar/internal/store"
)

// app holds the wired object graph.
type app struct {
	server *server.Server
}

// initializeSystem initializes logger and tracer from the environment.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig("config.yaml")
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	return cfg, nil
}

// buildApp opens the database, constructs sources, pool, tracker,
// engine and orchestrator, and wires them into the HTTP server.
func buildApp(ctx context.Context, cfg *store.Config) (*app, error) {
	db, err := storage.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to open database", err, "driver", cfg.Database.Driver)
		return nil, err
	}
	if err := storage.Migrate(db); err != nil {
		logger.ErrorWithErr(ctx, "Failed to migrate database", err)
		return nil, err
	}

	companies := storage.NewCompanyRepo(db)
	snapshots := storage.NewSnapshotRepo(db)
	progressRepo := storage.NewProgressRepo(db)
	metrics := storage.NewMetricRepo(db)
	diffs := storage.NewDiffLogRepo(db)

	sources, err := buildSources(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pool := fetchpool.New(
		cfg.Collect.Concurrency,
		time.Duration(cfg.Collect.ChunkDelayMS)*time.Millisecond,
		time.Duration(cfg.Collect.ItemTimeoutSec)*time.Second,
	)
	tracker := progress.NewTracker(progressRepo)
	writer := collect.NewWriter(snapshots)

	engine := consensus.NewEngine(snapshots, metrics, diffs, consensus.Config{
		MissingPolicy:    consensus.MissingPolicy(cfg.Consensus.QuadrantMissingPolicy),
		TargetZoneFVBMin: cfg.Consensus.TargetZoneFVBMin,
		SourcePriority:   cfg.Consensus.SourcePriority,
	})

	targetYear := func() int {
		if cfg.Consensus.TargetYear != 0 {
			return cfg.Consensus.TargetYear
		}
		return time.Now().Year()
	}

	refresh := func(ctx context.Context, snapshotDate string) error {
		y1 := targetYear()
		if _, err := engine.Compute(ctx, snapshotDate, y1); err != nil {
			return err
		}
		_, err := engine.DeriveDiffs(ctx, snapshotDate, y1)
		return err
	}

	orchestrator := collect.NewOrchestrator(
		cfg.Collect.ChunkSize, sources, pool, tracker, writer, companies, refresh)

	srv := server.New(orchestrator, tracker, engine, companies, metrics, diffs, targetYear)
	return &app{server: srv}, nil
}

// buildSources constructs the configured provider clients, each with
// its own token bucket.
func buildSources(ctx context.Context, cfg *store.Config) ([]source.Client, error) {
	var sources []source.Client
	for _, name := range cfg.Collect.Sources {
		switch name {
		case "naver":
			limiter := source.NewRateLimiter(cfg.Naver.Burst,
				time.Duration(cfg.Naver.RefillMS)*time.Millisecond)
			sources = append(sources, source.NewNaverClient(
				cfg.Naver.BaseURL,
				time.Duration(cfg.Naver.TimeoutSec)*time.Second,
				limiter,
			))
		case "fnguide":
			limiter := source.NewRateLimiter(cfg.FnGuide.Burst,
				time.Duration(cfg.FnGuide.RefillMS)*time.Millisecond)
			sources = append(sources, source.NewFnGuideClient(
				cfg.FnGuide.BaseURL,
				time.Duration(cfg.FnGuide.TimeoutSec)*time.Second,
				limiter,
			))
		default:
			return nil, fmt.Errorf("unknown source %q", name)
		}
		logger.Info(ctx, "Source enabled", "source", name)
	}
	return sources, nil
}
