// Package database provides the optional Postgres sink for discovered
// products, crawler runs and match results.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/arbminer/arbminer/internal/logger"
)

// Config holds Postgres connection settings.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslMode,
	)
}

// Connect opens and verifies a connection pool.
func Connect(ctx context.Context, cfg Config, log logger.Interface) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connected", "host", cfg.Host, "dbname", cfg.DBName)
	return db, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id                  TEXT PRIMARY KEY,
			marketplace_id      TEXT NOT NULL,
			title               TEXT,
			brand               TEXT,
			browse_node_id      TEXT,
			browse_node_name    TEXT,
			identifier          TEXT,
			identifier_type     TEXT,
			sales_rank          INTEGER,
			sales_rank_category TEXT,
			price               DOUBLE PRECISION,
			currency            TEXT,
			is_prime            BOOLEAN,
			fulfillment_channel TEXT,
			estimated_monthly_sales INTEGER,
			demand_bucket       TEXT,
			source_root_name    TEXT,
			source_child_name   TEXT,
			search_keyword      TEXT,
			first_seen_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_seen_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS crawler_runs (
			id                     UUID PRIMARY KEY,
			marketplace_id         TEXT NOT NULL,
			started_at             TIMESTAMPTZ NOT NULL,
			ended_at               TIMESTAMPTZ,
			status                 TEXT NOT NULL,
			stop_reason            TEXT,
			root_filter            TEXT,
			max_tasks              INTEGER NOT NULL,
			max_items              INTEGER NOT NULL,
			tasks_total            INTEGER NOT NULL,
			tasks_run              INTEGER NOT NULL DEFAULT 0,
			last_task_index_before INTEGER NOT NULL,
			last_task_index_after  INTEGER,
			catalog_seen           INTEGER NOT NULL DEFAULT 0,
			with_price             INTEGER NOT NULL DEFAULT 0,
			kept                   INTEGER NOT NULL DEFAULT 0,
			skipped_no_price       INTEGER NOT NULL DEFAULT 0,
			skipped_duplicate      INTEGER NOT NULL DEFAULT 0,
			skipped_price_filter   INTEGER NOT NULL DEFAULT 0,
			skipped_offer_filter   INTEGER NOT NULL DEFAULT 0,
			skipped_demand_filter  INTEGER NOT NULL DEFAULT 0,
			price_lookups          INTEGER NOT NULL DEFAULT 0,
			errors_api             INTEGER NOT NULL DEFAULT 0,
			error_message          TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS matches (
			id              UUID PRIMARY KEY,
			item_id         TEXT NOT NULL,
			item_title      TEXT,
			item_price      DOUBLE PRECISION,
			listing_id      TEXT,
			listing_title   TEXT,
			listing_price   DOUBLE PRECISION,
			listing_url     TEXT,
			similarity      DOUBLE PRECISION NOT NULL,
			basis           TEXT,
			accepted        BOOLEAN NOT NULL,
			spread          DOUBLE PRECISION,
			spread_pct      DOUBLE PRECISION,
			matched_at      TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_last_seen ON products (last_seen_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_matches_item ON matches (item_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return nil
}
