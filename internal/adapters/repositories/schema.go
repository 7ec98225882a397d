package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/db"

	"github.com/goccy/go-json"
)

// InitSchema creates the entity and distance tables for the given dialect.
func InitSchema(ctx context.Context, conn *sql.DB, dialect db.Dialect) error {
	if conn == nil {
		return errors.New("init schema: DB is nil")
	}

	// SQLite keeps calculated_at as RFC 3339 text; Postgres uses timestamptz.
	timestampType := "TIMESTAMPTZ"
	if dialect == db.SQLite {
		timestampType = "TEXT"
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createPropertiesQuery := `
	CREATE TABLE IF NOT EXISTS properties (
		id BIGINT PRIMARY KEY,
		address TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION
	);
	`

	createPOIQuery := `
	CREATE TABLE IF NOT EXISTS points_of_interest (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION
	);
	`

	createDistanceRecordsQuery := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS distance_records (
		entity_a_id BIGINT NOT NULL,
		entity_b_id BIGINT NOT NULL,
		walking_distance_meters INTEGER,
		walking_time_seconds INTEGER,
		walking_estimated BOOLEAN,
		driving_distance_meters INTEGER,
		driving_time_seconds INTEGER,
		driving_estimated BOOLEAN,
		calculated_at %s NOT NULL,
		PRIMARY KEY (entity_a_id, entity_b_id)
	);
	`, timestampType)

	createIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_distance_records_entity_b
	ON distance_records(entity_b_id, entity_a_id);
	`

	statements := []string{
		createPropertiesQuery,
		createPOIQuery,
		createDistanceRecordsQuery,
		createIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type PropertySeed struct {
	ID        int64   `json:"id"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type POISeed struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Category  string  `json:"category"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type EntitySeed struct {
	Properties       []PropertySeed `json:"properties"`
	PointsOfInterest []POISeed      `json:"pointsOfInterest"`
}

// LoadSeed reads and validates an entity seed file.
func LoadSeed(jsonPath string) (EntitySeed, error) {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return EntitySeed{}, fmt.Errorf("seed entities: read %q: %w", jsonPath, err)
	}

	var data EntitySeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return EntitySeed{}, fmt.Errorf("seed entities: parse json: %w", err)
	}
	if err := data.Validate(); err != nil {
		return EntitySeed{}, err
	}
	return data, nil
}

// Validate rejects non-positive ids and out-of-range coordinates.
func (data EntitySeed) Validate() error {
	for i, p := range data.Properties {
		if p.ID <= 0 {
			return fmt.Errorf("seed entities: invalid property id at index %d: %d", i+1, p.ID)
		}
		if _, err := domain.NewCoordinates(p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("seed entities: property %d: %w", p.ID, err)
		}
	}
	for i, p := range data.PointsOfInterest {
		if p.ID <= 0 {
			return fmt.Errorf("seed entities: invalid poi id at index %d: %d", i+1, p.ID)
		}
		if _, err := domain.NewCoordinates(p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("seed entities: poi %d: %w", p.ID, err)
		}
	}
	return nil
}

// Populate the entity tables from a JSON file.
func SeedFromJSON(ctx context.Context, conn *sql.DB, dialect db.Dialect, jsonPath string) error {
	data, err := LoadSeed(jsonPath)
	if err != nil {
		return err
	}
	return Seed(ctx, conn, dialect, data)
}

// Seed validates and upserts properties and points of interest.
func Seed(ctx context.Context, conn *sql.DB, dialect db.Dialect, data EntitySeed) error {
	if err := data.Validate(); err != nil {
		return err
	}

	ph := func(n int) string {
		if dialect == db.SQLite {
			return "?"
		}
		return fmt.Sprintf("$%d", n)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed entities: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	propStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
	INSERT INTO properties (id, address, latitude, longitude)
	VALUES (%s, %s, %s, %s)
	ON CONFLICT (id) DO UPDATE
	SET address = excluded.address,
		latitude = excluded.latitude,
		longitude = excluded.longitude;
	`, ph(1), ph(2), ph(3), ph(4)))
	if err != nil {
		return fmt.Errorf("seed entities: prepare property insert: %w", err)
	}
	defer propStmt.Close()

	for _, p := range data.Properties {
		if _, err := propStmt.ExecContext(ctx, p.ID, p.Address, p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("seed entities: insert property id=%d: %w", p.ID, err)
		}
	}

	poiStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
	INSERT INTO points_of_interest (id, name, category, latitude, longitude)
	VALUES (%s, %s, %s, %s, %s)
	ON CONFLICT (id) DO UPDATE
	SET name = excluded.name,
		category = excluded.category,
		latitude = excluded.latitude,
		longitude = excluded.longitude;
	`, ph(1), ph(2), ph(3), ph(4), ph(5)))
	if err != nil {
		return fmt.Errorf("seed entities: prepare poi insert: %w", err)
	}
	defer poiStmt.Close()

	for _, p := range data.PointsOfInterest {
		if _, err := poiStmt.ExecContext(ctx, p.ID, p.Name, p.Category, p.Latitude, p.Longitude); err != nil {
			return fmt.Errorf("seed entities: insert poi id=%d: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed entities: commit tx: %w", err)
	}

	return nil
}
