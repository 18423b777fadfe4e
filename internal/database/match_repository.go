package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
)

// MatchRepository stores cross-marketplace match results.
type MatchRepository struct {
	db  *sqlx.DB
	log logger.Interface
}

// NewMatchRepository creates a new match repository.
func NewMatchRepository(db *sqlx.DB, log logger.Interface) *MatchRepository {
	return &MatchRepository{db: db, log: log}
}

// MatchRecord is the flattened row shape for stored matches.
type MatchRecord struct {
	ID           string    `db:"id"            json:"id"`
	ItemID       string    `db:"item_id"       json:"item_id"`
	ItemTitle    *string   `db:"item_title"    json:"item_title"`
	ItemPrice    *float64  `db:"item_price"    json:"item_price"`
	ListingID    *string   `db:"listing_id"    json:"listing_id"`
	ListingTitle *string   `db:"listing_title" json:"listing_title"`
	ListingPrice *float64  `db:"listing_price" json:"listing_price"`
	ListingURL   *string   `db:"listing_url"   json:"listing_url"`
	Similarity   float64   `db:"similarity"    json:"similarity"`
	Basis        *string   `db:"basis"         json:"basis"`
	Accepted     bool      `db:"accepted"      json:"accepted"`
	Spread       *float64  `db:"spread"        json:"spread"`
	SpreadPct    *float64  `db:"spread_pct"    json:"spread_pct"`
	MatchedAt    time.Time `db:"matched_at"    json:"matched_at"`
}

func toMatchRecord(m domain.MatchResult) MatchRecord {
	row := MatchRecord{
		ID:         uuid.NewString(),
		ItemID:     m.Item.ID,
		ItemPrice:  m.Item.Price,
		Similarity: m.Similarity,
		Accepted:   m.Accepted,
		Spread:     m.Spread,
		SpreadPct:  m.SpreadPct,
		MatchedAt:  m.MatchedAt,
	}
	if m.Item.Title != "" {
		title := m.Item.Title
		row.ItemTitle = &title
	}
	if m.Basis != "" {
		basis := string(m.Basis)
		row.Basis = &basis
	}
	if m.Listing != nil {
		listingID := m.Listing.ID
		listingTitle := m.Listing.Title
		row.ListingID = &listingID
		row.ListingTitle = &listingTitle
		row.ListingPrice = m.Listing.TotalPrice()
		if m.Listing.URL != "" {
			listingURL := m.Listing.URL
			row.ListingURL = &listingURL
		}
	}
	return row
}

const insertMatchQuery = `
	INSERT INTO matches (
		id, item_id, item_title, item_price, listing_id, listing_title,
		listing_price, listing_url, similarity, basis, accepted,
		spread, spread_pct, matched_at
	) VALUES (
		:id, :item_id, :item_title, :item_price, :listing_id, :listing_title,
		:listing_price, :listing_url, :similarity, :basis, :accepted,
		:spread, :spread_pct, :matched_at
	)`

// SaveMatches inserts a batch of match results and returns how many
// rows were written.
func (r *MatchRepository) SaveMatches(ctx context.Context, results []domain.MatchResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, result := range results {
		if _, err := tx.NamedExecContext(ctx, insertMatchQuery, toMatchRecord(result)); err != nil {
			return 0, fmt.Errorf("failed to save match for item %s: %w", result.Item.ID, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit matches: %w", err)
	}

	r.log.Debug("matches saved", "count", saved)
	return saved, nil
}

// ListAccepted returns the most recent accepted matches, widest price
// spread first.
func (r *MatchRepository) ListAccepted(ctx context.Context, limit int) ([]MatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []MatchRecord
	query := `
		SELECT id, item_id, item_title, item_price, listing_id, listing_title,
		       listing_price, listing_url, similarity, basis, accepted,
		       spread, spread_pct, matched_at
		FROM matches
		WHERE accepted
		ORDER BY spread DESC NULLS LAST, matched_at DESC
		LIMIT $1`
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return rows, nil
}
