package dbx

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxIdleTime = 5 * time.Minute
)

// PoolConfig holds connection pool settings. Zero values fall back to defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
}

// sqlOpen is a seam for tests.
var sqlOpen = sql.Open

// Open opens a pool for driver ("pgx" for PostgreSQL), applies pool settings
// and verifies connectivity.
func Open(ctx context.Context, driver, dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sqlOpen(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	db.SetMaxOpenConns(withDefault(pool.MaxOpenConns, defaultMaxOpenConns))
	db.SetMaxIdleConns(withDefault(pool.MaxIdleConns, defaultMaxIdleConns))
	idle := pool.ConnMaxIdleTime
	if idle == 0 {
		idle = defaultConnMaxIdleTime
	}
	db.SetConnMaxIdleTime(idle)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

func withDefault(val, def int) int {
	if val <= 0 {
		return def
	}
	return val
}
