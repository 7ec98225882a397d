package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"property-distance-service/internal/domain"
	"property-distance-service/internal/platform/db"
	"property-distance-service/internal/platform/obs"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Tables an SQLEntityLocator may read from.
const (
	PropertiesTable       = "properties"
	PointsOfInterestTable = "points_of_interest"
)

type locationRow struct {
	ID        int64           `db:"id"`
	Latitude  sql.NullFloat64 `db:"latitude"`
	Longitude sql.NullFloat64 `db:"longitude"`
}

func (r locationRow) coordinates() (domain.Coordinates, bool) {
	if !r.Latitude.Valid || !r.Longitude.Valid {
		return domain.Coordinates{}, false
	}
	c, err := domain.NewCoordinates(r.Latitude.Float64, r.Longitude.Float64)
	if err != nil {
		return domain.Coordinates{}, false
	}
	return c, true
}

// SQL-backed implementation of the EntityLocator port for one entity table.
// Rows with missing or out-of-range coordinates are treated as not found.
type SQLEntityLocator struct {
	DB      *sqlx.DB
	dialect db.Dialect
	table   string
}

func NewSQLEntityLocator(conn *sql.DB, dialect db.Dialect, table string) (*SQLEntityLocator, error) {
	if conn == nil {
		return nil, errors.New("entity locator: DB is nil")
	}
	switch table {
	case PropertiesTable, PointsOfInterestTable:
	default:
		return nil, fmt.Errorf("entity locator: unsupported table %q", table)
	}

	return &SQLEntityLocator{
		DB:      sqlx.NewDb(conn, string(dialect)),
		dialect: dialect,
		table:   table,
	}, nil
}

// Locate returns the coordinates of a single entity.
func (l *SQLEntityLocator) Locate(ctx context.Context, id int64) (_ domain.Coordinates, err error) {
	defer obs.Time(ctx, "locator.Locate."+l.table)(&err)

	// table is restricted to the allow-list above.
	q := l.DB.Rebind(fmt.Sprintf(`SELECT id, latitude, longitude FROM %s WHERE id = ?`, l.table))

	var row locationRow
	if err := l.DB.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Coordinates{}, fmt.Errorf("%w: %s id=%d", domain.ErrEntityNotFound, l.table, id)
		}
		return domain.Coordinates{}, fmt.Errorf("%w: locate %s id=%d: %w", domain.ErrStorage, l.table, id, err)
	}

	c, ok := row.coordinates()
	if !ok {
		return domain.Coordinates{}, fmt.Errorf("%w: %s id=%d has no usable location", domain.ErrEntityNotFound, l.table, id)
	}
	return c, nil
}

// LocateMany returns coordinates for every id that exists with a usable location.
func (l *SQLEntityLocator) LocateMany(ctx context.Context, ids []int64) (_ map[int64]domain.Coordinates, err error) {
	defer obs.Time(ctx, "locator.LocateMany."+l.table)(&err)

	if len(ids) == 0 {
		return map[int64]domain.Coordinates{}, nil
	}

	var (
		q    string
		args []any
	)
	if l.dialect == db.Postgres {
		q = fmt.Sprintf(`SELECT id, latitude, longitude FROM %s WHERE id = ANY($1::bigint[])`, l.table)
		args = []any{pq.Array(ids)}
	} else {
		q, args, err = sqlx.In(fmt.Sprintf(`SELECT id, latitude, longitude FROM %s WHERE id IN (?)`, l.table), ids)
		if err != nil {
			return nil, fmt.Errorf("locate many %s: build query: %w", l.table, err)
		}
		q = l.DB.Rebind(q)
	}

	var rows []locationRow
	if err := l.DB.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("%w: locate many %s: %w", domain.ErrStorage, l.table, err)
	}

	out := make(map[int64]domain.Coordinates, len(rows))
	for _, r := range rows {
		if c, ok := r.coordinates(); ok {
			out[r.ID] = c
		}
	}
	return out, nil
}
