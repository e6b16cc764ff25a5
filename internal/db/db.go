package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"hfp-vehicleposition/internal/stops"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// StopSource resolves stop coordinates from the stops table of an imported
// GTFS database.
type StopSource struct {
	DB *sql.DB
}

func (s StopSource) Name() string { return "postgres" }

func (s StopSource) Lookup(ctx context.Context, stopIDs []string) (map[string]stops.Location, error) {
	return FetchStopLocations(ctx, s.DB, stopIDs)
}

// FetchStopLocations returns the coordinates of the given stops. Both the
// plain stop_lat/stop_lon layout and the PostGIS stop_loc geography column
// are supported.
func FetchStopLocations(ctx context.Context, db *sql.DB, stopIDs []string) (map[string]stops.Location, error) {
	out := make(map[string]stops.Location, len(stopIDs))
	if len(stopIDs) == 0 {
		return out, nil
	}

	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT stop_id, stop_lat, stop_lon
             FROM stops
             WHERE stop_id = ANY($1) AND stop_lat IS NOT NULL AND stop_lon IS NOT NULL`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT stop_id, ST_Y(stop_loc::geometry), ST_X(stop_loc::geometry)
             FROM stops
             WHERE stop_id = ANY($1) AND stop_loc IS NOT NULL`
	}

	rows, err := db.QueryContext(ctx, q, stopIDs)
	if err != nil {
		return nil, fmt.Errorf("query stops: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var loc stops.Location
		if err := rows.Scan(&id, &loc.Lat, &loc.Lon); err != nil {
			return nil, err
		}
		out[id] = loc
	}
	return out, rows.Err()
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
