package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"sjsage522/pricemonitor/config"
	"sjsage522/pricemonitor/internal"
	"sjsage522/pricemonitor/internal/api"
	"sjsage522/pricemonitor/internal/crawler"
	"sjsage522/pricemonitor/internal/monitor"
	"sjsage522/pricemonitor/logger"
	"sjsage522/pricemonitor/services/cache"
	"sjsage522/pricemonitor/services/publisher"
	"sjsage522/pricemonitor/services/store"
	"sjsage522/pricemonitor/services/worker"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("schedule", cfg.Schedule).
		Str("snapshot_backend", cfg.SnapshotBackend).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	deps, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer deps.Cleanup()

	engine, err := buildEngine(cfg, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create sources")
	}

	w := worker.NewWorker(engine, deps.Publisher, cfg.Schedule)
	server := api.NewServer(engine)

	workerDone := make(chan error, 1)
	go func() {
		workerDone <- w.Start(ctx)
	}()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.ListenAndServe(ctx, cfg.HTTPAddr)
	}()

	// Wait for shutdown signal or an exiting component
	workerExited := false
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
	case err := <-workerDone:
		workerExited = true
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	case err := <-serverDone:
		log.Error().Err(err).Msg("HTTP server exited")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	cancel()
	if !workerExited {
		<-workerDone
	}
}

// initializeServices connects the cache, Redis and the baseline store
func initializeServices(ctx context.Context, cfg *config.Config) (*internal.Dependencies, error) {
	deps := &internal.Dependencies{}

	if cfg.MemcacheAddr != "" {
		deps.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)
		logger.Info("Using Memcache at %s for block cooldowns", cfg.MemcacheAddr)
	}

	deps.Redis = redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := deps.Redis.Ping(ctx).Err(); err != nil {
		if cfg.SnapshotBackend == "redis" {
			deps.Redis.Close()
			return nil, err
		}
		logger.Warn("Redis at %s is unreachable, price changes will only be logged: %v", cfg.RedisAddr, err)
	} else {
		deps.Publisher = publisher.NewRedisPublisher(
			deps.Redis,
			cfg.RedisStream,
			cfg.RedisStreamCount,
			cfg.RedisStreamMaxLength,
		)
		logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
			cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)
	}

	switch cfg.SnapshotBackend {
	case "redis":
		deps.Store = store.NewRedisStore(deps.Redis, cfg.SnapshotRedisKey)
		logger.Info("Baseline stored in Redis key %s", cfg.SnapshotRedisKey)
	default:
		deps.Store = store.NewFileStore(cfg.SnapshotPath)
		logger.Info("Baseline stored in %s", cfg.SnapshotPath)
	}

	return deps, nil
}

// buildEngine creates the sources and the engine that runs them
func buildEngine(cfg *config.Config, deps *internal.Dependencies) (*monitor.Engine, error) {
	var specs []config.SourceSpec
	if cfg.SourcesFile != "" {
		loaded, err := config.LoadSources(cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		specs = loaded
	}

	created := crawler.CreateSources(cfg, specs, deps.Cache)
	sources := make([]monitor.Source, 0, len(created))
	for _, s := range created {
		sources = append(sources, s)
	}

	return monitor.New(sources, deps.Store, monitor.Options{
		Threshold:   decimal.NewFromFloat(cfg.ChangeThreshold),
		Concurrency: cfg.SourceConcurrency,
		PruneAfter:  cfg.PruneAfter,
	}), nil
}
