package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// LatestFeedDatabase returns the name of the most recently imported GTFS
// database whose name contains feed. meta must be connected to the database
// holding public.latest_successful_imports.
func LatestFeedDatabase(ctx context.Context, meta *sql.DB, feed string) (string, error) {
	feed = strings.TrimSpace(feed)
	if feed == "" {
		return "", errors.New("feed name is required")
	}
	q := `
SELECT db_name
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	if err := meta.QueryRowContext(ctx, q, feed).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no imported database matches %q", feed)
		}
		return "", err
	}
	if !name.Valid || name.String == "" {
		return "", fmt.Errorf("empty db_name for feed %q", feed)
	}
	return name.String, nil
}

// WithDatabase returns dsn pointing at database. A DSN without a scheme is
// treated as postgres://.
func WithDatabase(dsn, database string) (string, error) {
	if dsn == "" {
		return "", errors.New("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}
