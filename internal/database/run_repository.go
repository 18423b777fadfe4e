package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
)

// RunRepository records crawler invocations and their counters.
type RunRepository struct {
	db  *sqlx.DB
	log logger.Interface
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sqlx.DB, log logger.Interface) *RunRepository {
	return &RunRepository{db: db, log: log}
}

type runRow struct {
	domain.CrawlerRun
	CatalogSeen      int `db:"catalog_seen"`
	WithPrice        int `db:"with_price"`
	Kept             int `db:"kept"`
	SkippedNoPrice   int `db:"skipped_no_price"`
	SkippedDuplicate int `db:"skipped_duplicate"`
	SkippedPrice     int `db:"skipped_price_filter"`
	SkippedOffer     int `db:"skipped_offer_filter"`
	SkippedDemand    int `db:"skipped_demand_filter"`
	PriceLookups     int `db:"price_lookups"`
	ErrorsAPI        int `db:"errors_api"`
}

func toRunRow(run domain.CrawlerRun) runRow {
	row := runRow{
		CrawlerRun:       run,
		CatalogSeen:      run.Stats.CatalogSeen,
		WithPrice:        run.Stats.WithPrice,
		Kept:             run.Stats.Kept,
		SkippedNoPrice:   run.Stats.SkippedNoPrice,
		SkippedDuplicate: run.Stats.SkippedDuplicate,
		SkippedPrice:     run.Stats.SkippedPrice,
		SkippedOffer:     run.Stats.SkippedOffer,
		SkippedDemand:    run.Stats.SkippedDemand,
		PriceLookups:     run.Stats.PriceLookups,
		ErrorsAPI:        run.Stats.ErrorsAPI,
	}
	if row.ErrorMessage == nil && run.Stats.LastError != "" {
		lastErr := run.Stats.LastError
		row.ErrorMessage = &lastErr
	}
	return row
}

func fromRunRow(row runRow) domain.CrawlerRun {
	run := row.CrawlerRun
	run.Stats = domain.DiscoveryStats{
		CatalogSeen:      row.CatalogSeen,
		WithPrice:        row.WithPrice,
		Kept:             row.Kept,
		SkippedNoPrice:   row.SkippedNoPrice,
		SkippedDuplicate: row.SkippedDuplicate,
		SkippedPrice:     row.SkippedPrice,
		SkippedOffer:     row.SkippedOffer,
		SkippedDemand:    row.SkippedDemand,
		PriceLookups:     row.PriceLookups,
		ErrorsAPI:        row.ErrorsAPI,
	}
	if row.ErrorMessage != nil {
		run.Stats.LastError = *row.ErrorMessage
	}
	return run
}

// Save inserts a finished run. A missing ID is generated here.
func (r *RunRepository) Save(ctx context.Context, run domain.CrawlerRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	query := `
		INSERT INTO crawler_runs (
			id, marketplace_id, started_at, ended_at, status, stop_reason,
			root_filter, max_tasks, max_items, tasks_total, tasks_run,
			last_task_index_before, last_task_index_after,
			catalog_seen, with_price, kept, skipped_no_price,
			skipped_duplicate, skipped_price_filter, skipped_offer_filter,
			skipped_demand_filter, price_lookups, errors_api, error_message
		) VALUES (
			:id, :marketplace_id, :started_at, :ended_at, :status, :stop_reason,
			:root_filter, :max_tasks, :max_items, :tasks_total, :tasks_run,
			:last_task_index_before, :last_task_index_after,
			:catalog_seen, :with_price, :kept, :skipped_no_price,
			:skipped_duplicate, :skipped_price_filter, :skipped_offer_filter,
			:skipped_demand_filter, :price_lookups, :errors_api, :error_message
		)`
	if _, err := r.db.NamedExecContext(ctx, query, toRunRow(run)); err != nil {
		return "", fmt.Errorf("failed to save run %s: %w", run.ID, err)
	}

	r.log.Debug("run recorded", "run_id", run.ID, "status", run.Status)
	return run.ID, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]domain.CrawlerRun, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []runRow
	query := `
		SELECT id, marketplace_id, started_at, ended_at, status, stop_reason,
		       root_filter, max_tasks, max_items, tasks_total, tasks_run,
		       last_task_index_before, last_task_index_after,
		       catalog_seen, with_price, kept, skipped_no_price,
		       skipped_duplicate, skipped_price_filter, skipped_offer_filter,
		       skipped_demand_filter, price_lookups, errors_api, error_message
		FROM crawler_runs
		ORDER BY started_at DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]domain.CrawlerRun, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, fromRunRow(row))
	}
	return runs, nil
}
