// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"trendwire/internal/adapter/storage"
	"trendwire/internal/config"
	"trendwire/internal/observe"
	"trendwire/internal/server"
	"trendwire/internal/service/ingest"
	"trendwire/internal/source"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Environment)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := storage.EnsureSchema(ctx, db); err != nil {
		logger.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer natsConn.Close()

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observe.NewMetrics(registry)

	// Initialize storage adapter
	recordStore := storage.NewRecordStore(db, cfg.Ingest.BulkBatchSize)

	// Initialize pipeline services
	validator := ingest.NewValidator()
	normalizer := ingest.NewNormalizer(logger)
	hashCache := ingest.NewRecentHashCache(cfg.Dedup)
	deduplicator := ingest.NewDeduplicator(hashCache, recordStore, cfg.Dedup, metrics, logger)
	anomalyDetector := ingest.NewAnomalyDetector(cfg.Anomaly)
	qualityScorer := ingest.NewQualityScorer(cfg.Quality)

	orchestrator := ingest.NewOrchestrator(
		validator,
		normalizer,
		deduplicator,
		anomalyDetector,
		qualityScorer,
		recordStore,
		natsConn,
		metrics,
		cfg.Ingest,
		logger,
	)

	// Schedule retention cleanup
	scheduler := cron.New()
	_, err = scheduler.AddFunc(cfg.Retention.Schedule, func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cleanupCancel()

		removed, err := recordStore.Cleanup(cleanupCtx, cfg.Retention.MaxAgeDays)
		if err != nil {
			logger.Error().Err(err).Msg("Retention cleanup failed")
			return
		}
		metrics.RecordsCleaned.Add(float64(removed))
		logger.Info().Int64("removed", removed).Msg("Retention cleanup complete")
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", cfg.Retention.Schedule).Msg("Invalid retention schedule")
	}
	scheduler.Start()

	// Optional Twitter source
	var twitterSource *source.TwitterSource
	if cfg.Twitter.BearerToken != "" {
		twitterSource = source.NewTwitterSource(orchestrator, cfg.Twitter, logger)
		if err := twitterSource.Start(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to start twitter source")
		}
	}

	// Initialize HTTP server
	httpServer := server.NewServer(
		cfg.Server,
		natsConn,
		orchestrator,
		recordStore,
		cfg.Ingest.EventsTopic,
		registry,
	)

	// Start HTTP server
	go func() {
		logger.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info().Msg("Shutdown signal received")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Graceful shutdown
	logger.Info().Msg("Shutting down services...")

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if twitterSource != nil {
		if err := twitterSource.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Twitter source shutdown error")
		}
	}

	cronCtx := scheduler.Stop()
	select {
	case <-cronCtx.Done():
	case <-shutdownCtx.Done():
	}

	logger.Info().Msg("Shutdown complete")
}

// newLogger builds the process logger. Development gets console output,
// everything else ships JSON.
func newLogger(environment string) zerolog.Logger {
	if environment == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger zerolog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info().Msg("NATS connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
