package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aldhinn/Fintel/internal/adapters/config"
	"github.com/aldhinn/Fintel/internal/adapters/database"
	"github.com/aldhinn/Fintel/internal/adapters/market"
	redisAdapter "github.com/aldhinn/Fintel/internal/adapters/redis"
	"github.com/aldhinn/Fintel/internal/api"
	"github.com/aldhinn/Fintel/internal/assets"
	"github.com/aldhinn/Fintel/internal/forecast"
	"github.com/aldhinn/Fintel/internal/health"
	"github.com/aldhinn/Fintel/internal/ingest"
	"github.com/aldhinn/Fintel/internal/prices"
	"github.com/aldhinn/Fintel/internal/workers"
	"github.com/aldhinn/Fintel/pkg/logger"
	"github.com/aldhinn/Fintel/pkg/worker"
)

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Fintel asset tracker starting...",
		zap.String("provider", cfg.Market.Provider),
		zap.Duration("refresh_interval", cfg.Refresh.Interval),
	)

	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}

	redisClient := initRedis(cfg)

	fetcher, err := initFetcher(cfg, redisClient)
	if err != nil {
		db.Close()
		return err
	}

	assetRepo := assets.NewRepository(db.DB())
	priceRepo := prices.NewRepository(db.DB())
	forecastRepo := forecast.NewRepository(db.DB())

	pipeline := ingest.NewPipeline(assetRepo, priceRepo, fetcher)
	trainer := forecast.NewTrainer(&cfg.Forecast, priceRepo, forecastRepo)
	dispatcher := ingest.NewDispatcher(pipeline, assetRepo, trainer)

	refresher := startRefreshWorker(ctx, cfg, assetRepo, pipeline, trainer)

	checker := health.NewChecker()
	checker.Register("database", db)
	if redisClient != nil {
		checker.Register("redis", redisClient)
	}

	server := api.NewServer(&cfg.Server, api.Deps{
		Assets:     assetRepo,
		Prices:     priceRepo,
		Dispatcher: dispatcher,
	}, checker)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	logger.Info("🚀 Fintel ready", zap.String("port", cfg.Server.Port))
	checker.SetReady(true)

	// Wait for shutdown signal or server failure
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("REST server error", zap.Error(err))
		}
	}
	stop()

	return performGracefulShutdown(cfg, checker, server, refresher, dispatcher, db, redisClient)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase connects to Postgres and applies migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initRedis connects the optional description cache. Failure degrades to no cache.
func initRedis(cfg *config.Config) *redisAdapter.Client {
	if !cfg.Redis.Enabled {
		logger.Info("redis cache disabled")
		return nil
	}

	redisClient, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("⚠️ redis not available, continuing without description cache", zap.Error(err))
		return nil
	}

	return redisClient
}

// initFetcher builds the market data provider, wrapped with the cache when present
func initFetcher(cfg *config.Config, redisClient *redisAdapter.Client) (market.Fetcher, error) {
	fetcher, err := market.New(&cfg.Market)
	if err != nil {
		return nil, fmt.Errorf("failed to create market fetcher: %w", err)
	}

	if redisClient != nil {
		logger.Info("✅ description cache enabled", zap.Duration("ttl", cfg.Redis.DescriptionTTL))
		return market.NewCachedFetcher(fetcher, redisClient, cfg.Redis.DescriptionTTL), nil
	}

	return fetcher, nil
}

// startRefreshWorker launches the periodic refresh loop without blocking
func startRefreshWorker(
	ctx context.Context,
	cfg *config.Config,
	assetRepo *assets.Repository,
	pipeline *ingest.Pipeline,
	trainer *forecast.Trainer,
) *worker.PeriodicWorker {
	refreshWorker := workers.NewRefreshWorker(assetRepo, pipeline, trainer)

	pw := worker.RunBackground(ctx, refreshWorker, cfg.Refresh.Interval,
		worker.WithIterations(cfg.Refresh.Iterations),
	)

	logger.Info("✅ refresh worker started",
		zap.Duration("interval", cfg.Refresh.Interval),
		zap.Int("iterations", cfg.Refresh.Iterations),
	)

	return pw
}

// performGracefulShutdown handles graceful shutdown of all components
func performGracefulShutdown(
	cfg *config.Config,
	checker *health.Checker,
	server *api.Server,
	refresher *worker.PeriodicWorker,
	dispatcher *ingest.Dispatcher,
	db *database.DB,
	redisClient *redisAdapter.Client,
) error {
	logger.Info("🛑 Shutdown signal received, starting graceful shutdown...")

	// Stop accepting new traffic
	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("REST server stop error", zap.Error(err))
	}

	refresher.Stop(remaining(shutdownCtx))

	if !dispatcher.Wait(remaining(shutdownCtx)) {
		logger.Warn("⚠️ background ingestion still running at shutdown")
	}

	logger.Info("closing database connection...")
	if err := db.Close(); err != nil {
		logger.Error("database close error", zap.Error(err))
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", zap.Error(err))
		}
	}

	select {
	case <-shutdownCtx.Done():
		logger.Warn("⚠️ shutdown timeout exceeded")
		return fmt.Errorf("graceful shutdown timeout")
	default:
		logger.Info("✅ shutdown completed successfully")
	}

	return nil
}

func remaining(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	return time.Until(deadline)
}
