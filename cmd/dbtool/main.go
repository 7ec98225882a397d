package main

import (
	"context"
	"os"
	"property-distance-service/internal/adapters/repositories"
	"property-distance-service/internal/config"
	"property-distance-service/internal/platform/db"
	"property-distance-service/internal/platform/obs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// dbtool creates the schema and loads the entity seed into the configured
// database. It never touches cached distances.
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

	if cfg.DatabaseDriver == "memory" {
		logger.Fatal().Msg("dbtool needs a SQL database, DATABASE_DRIVER is memory")
	}

	dialect, err := db.ParseDialect(cfg.DatabaseDriver)
	if err != nil {
		logger.Fatal().Err(err).Msg("database driver")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, dialect, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open database")
	}
	defer conn.Close()

	logger.Info().Str("driver", string(dialect)).Msg("initializing database schema")
	if err := repositories.InitSchema(ctx, conn, dialect); err != nil {
		logger.Fatal().Err(err).Msg("schema initialization failed")
	}
	logger.Info().Msg("schema ready")

	seed, err := repositories.LoadSeed(cfg.SeedPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load seed")
	}
	if err := repositories.Seed(ctx, conn, dialect, seed); err != nil {
		logger.Fatal().Err(err).Msg("seeding failed")
	}
	logger.Info().
		Str("seed_path", cfg.SeedPath).
		Int("properties", len(seed.Properties)).
		Int("points_of_interest", len(seed.PointsOfInterest)).
		Msg("seeding complete")
}
