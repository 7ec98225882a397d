package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"property-distance-service/internal/adapters/cache"
	"property-distance-service/internal/adapters/distance"
	"property-distance-service/internal/adapters/events"
	"property-distance-service/internal/adapters/repositories"
	"property-distance-service/internal/api"
	"property-distance-service/internal/config"
	"property-distance-service/internal/platform/db"
	"property-distance-service/internal/platform/obs"
	"property-distance-service/internal/ports"
	"property-distance-service/internal/services"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// storage is the persistence side of the service: both entity locators,
// the distance store and whatever must be closed on shutdown.
type storage struct {
	properties ports.EntityLocator
	pois       ports.EntityLocator
	store      ports.DistanceStore
	health     func(ctx context.Context) error
	closers    []io.Closer
}

// main is the application composition root.
// It wires concrete adapters behind ports and serves HTTP until SIGINT/SIGTERM.
func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("load config")
	}

	logger := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug().Msg("no .env file found, using environment variables")
	}
	metrics := obs.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer func() {
		for i := len(st.closers) - 1; i >= 0; i-- {
			if err := st.closers[i].Close(); err != nil {
				logger.Warn().Err(err).Msg("close resource")
			}
		}
	}()

	provider, err := newProvider(cfg, logger, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("build routing provider")
	}

	var publisher ports.DistancePublisher
	if cfg.KafkaEnabled() {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		st.closers = append(st.closers, kp)
		publisher = kp
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing computed distances")
	}

	policy, err := services.ParseComputePolicy(cfg.ComputePolicy)
	if err != nil {
		logger.Fatal().Err(err).Msg("compute policy")
	}

	svc := services.NewDistanceService(st.properties, st.pois, provider, st.store, services.Options{
		Policy:           policy,
		BatchConcurrency: cfg.BatchConcurrency,
		Logger:           logger,
		Metrics:          metrics,
		Publisher:        publisher,
	})

	router := api.NewRouter(svc, api.RouterConfig{
		Logger:             logger,
		Metrics:            metrics,
		HealthCheck:        st.health,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSOrigins:        cfg.CORSOrigins,
		MaxBatchSize:       cfg.BatchMaxSize,
	})

	// Write timeout leaves room for a cold batch against a remote provider.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}

func openStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	var st *storage
	var err error
	if cfg.DatabaseDriver == "memory" {
		st, err = openMemoryStorage(cfg, logger)
	} else {
		st, err = openSQLStorage(ctx, cfg, logger)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RedisEnabled() {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis not reachable, reads will fall through")
		}
		st.store = cache.NewRedisDistanceStore(client, st.store, cfg.RedisTTL, logger)
		st.closers = append(st.closers, client)
		logger.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.RedisTTL).Msg("redis read-through enabled")
	}

	return st, nil
}

func openMemoryStorage(cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	seed := repositories.EntitySeed{}
	if cfg.SeedPath != "" {
		var err error
		if seed, err = repositories.LoadSeed(cfg.SeedPath); err != nil {
			return nil, err
		}
	}
	properties, pois, err := repositories.MemoryLocatorsFromSeed(seed)
	if err != nil {
		return nil, err
	}

	logger.Warn().
		Int("properties", len(seed.Properties)).
		Int("points_of_interest", len(seed.PointsOfInterest)).
		Msg("in-memory storage, distances are lost on exit")

	return &storage{
		properties: properties,
		pois:       pois,
		store:      cache.NewMemoryDistanceStore(),
	}, nil
}

func openSQLStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*storage, error) {
	dialect, err := db.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := initAndSeed(ctx, conn, dialect, cfg.SeedPath, logger); err != nil {
		_ = conn.Close()
		return nil, err
	}

	properties, err := repositories.NewSQLEntityLocator(conn, dialect, repositories.PropertiesTable)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	pois, err := repositories.NewSQLEntityLocator(conn, dialect, repositories.PointsOfInterestTable)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	var store ports.DistanceStore
	if dialect == db.Postgres {
		store = cache.NewSQLDistanceStore(conn)
	} else {
		store = cache.NewSqliteDistanceStore(conn)
	}

	return &storage{
		properties: properties,
		pois:       pois,
		store:      store,
		health:     conn.PingContext,
		closers:    []io.Closer{conn},
	}, nil
}

// initAndSeed creates the schema and, when the seed file exists, loads it.
func initAndSeed(ctx context.Context, conn *sql.DB, dialect db.Dialect, seedPath string, logger zerolog.Logger) error {
	if err := repositories.InitSchema(ctx, conn, dialect); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}

	if seedPath == "" {
		return nil
	}
	if _, err := os.Stat(seedPath); errors.Is(err, os.ErrNotExist) {
		logger.Info().Str("seed_path", seedPath).Msg("no seed file, skipping")
		return nil
	}

	if err := repositories.SeedFromJSON(ctx, conn, dialect, seedPath); err != nil {
		return fmt.Errorf("init and seed: %w", err)
	}
	return nil
}

func newProvider(cfg *config.Config, logger zerolog.Logger, metrics *obs.Metrics) (ports.DistanceProvider, error) {
	switch cfg.RoutingProvider {
	case "ors":
		ors, err := distance.NewORSProvider(distance.ORSConfig{
			APIKey:  cfg.ORSAPIKey,
			BaseURL: cfg.ORSBaseURL,
			Timeout: cfg.ORSTimeout,
		})
		if err != nil {
			return nil, err
		}
		logger.Info().
			Float64("rate_per_second", cfg.ProviderRatePerSecond).
			Bool("fallback", cfg.ProviderFallback).
			Msg("routing via openrouteservice")
		return distance.NewResilientProvider(ors, distance.ResilientConfig{
			RatePerSecond:    cfg.ProviderRatePerSecond,
			Burst:            cfg.ProviderBurst,
			FailureThreshold: cfg.BreakerFailureThreshold,
			OpenTimeout:      cfg.BreakerTimeout,
			Fallback:         cfg.ProviderFallback,
		}, logger, metrics), nil
	default:
		logger.Info().Msg("routing via straight-line estimates")
		return distance.NewHaversineProvider(), nil
	}
}
