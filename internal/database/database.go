package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"clipfeed/internal/config"
	"clipfeed/internal/logging"
)

// Connect opens the Postgres pool and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	log := logging.Component("Database")
	startTime := time.Now()

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	log.Info().
		Str("host", cfg.DBHost).
		Str("db", cfg.DBName).
		Dur("duration", time.Since(startTime)).
		Msg("Connected to database")
	return db, nil
}
