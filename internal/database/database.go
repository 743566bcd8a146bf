// Package database centralises sqlx connection helpers.  The default driver
// is go-sql-driver/mysql, which also works with MariaDB when configured for
// the MySQL wire protocol.
//
// Public entry points:
//
//	Open(ctx, dsn)               – quick helper with conservative pool sizes.
//	OpenWithOptions(ctx, dsn, o) – fine-grained control, with retries.
//
// Both helpers Ping the database before returning so callers can fail fast
// during bootstrap.  Callers should Close() the returned *sqlx.DB when no
// longer needed.
package database

import (
	"context"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes one connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// DefaultOptions suits the single shared pool of a Canopy deployment.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	Retries:         2,
	RetryBackoff:    500 * time.Millisecond,
}

// Open returns a *sqlx.DB with the default pool options.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return OpenWithOptions(ctx, dsn, DefaultOptions)
}

// OpenWithOptions opens, configures, and pings a pool.  Transient ping
// failures are retried with a fixed backoff.
func OpenWithOptions(ctx context.Context, dsn string, o Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	var pingErr error
	for attempt := 0; attempt <= o.Retries; attempt++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			return db, nil
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(o.RetryBackoff):
		}
	}
	_ = db.Close()
	return nil, pingErr
}
