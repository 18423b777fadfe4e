package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
)

// ProductRepository persists discovered items. It implements the crawler
// sink contract, upserting on the Platform-A item ID.
type ProductRepository struct {
	db  *sqlx.DB
	log logger.Interface
}

// NewProductRepository creates a new product repository.
func NewProductRepository(db *sqlx.DB, log logger.Interface) *ProductRepository {
	return &ProductRepository{db: db, log: log}
}

const upsertProductQuery = `
	INSERT INTO products (
		id, marketplace_id, title, brand, browse_node_id, browse_node_name,
		identifier, identifier_type, sales_rank, sales_rank_category,
		price, currency, is_prime, fulfillment_channel,
		estimated_monthly_sales, demand_bucket,
		source_root_name, source_child_name, search_keyword,
		first_seen_at, last_seen_at
	) VALUES (
		:id, :marketplace_id, :title, :brand, :browse_node_id, :browse_node_name,
		:identifier, :identifier_type, :sales_rank, :sales_rank_category,
		:price, :currency, :is_prime, :fulfillment_channel,
		:estimated_monthly_sales, :demand_bucket,
		:source_root_name, :source_child_name, :search_keyword,
		:fetched_at, :fetched_at
	)
	ON CONFLICT (id) DO UPDATE SET
		title                   = EXCLUDED.title,
		brand                   = EXCLUDED.brand,
		browse_node_id          = EXCLUDED.browse_node_id,
		browse_node_name        = EXCLUDED.browse_node_name,
		identifier              = EXCLUDED.identifier,
		identifier_type         = EXCLUDED.identifier_type,
		sales_rank              = EXCLUDED.sales_rank,
		sales_rank_category     = EXCLUDED.sales_rank_category,
		price                   = EXCLUDED.price,
		currency                = EXCLUDED.currency,
		is_prime                = EXCLUDED.is_prime,
		fulfillment_channel     = EXCLUDED.fulfillment_channel,
		estimated_monthly_sales = EXCLUDED.estimated_monthly_sales,
		demand_bucket           = EXCLUDED.demand_bucket,
		source_root_name        = EXCLUDED.source_root_name,
		source_child_name       = EXCLUDED.source_child_name,
		search_keyword          = EXCLUDED.search_keyword,
		last_seen_at            = EXCLUDED.last_seen_at`

type productRow struct {
	domain.DiscoveredItem
	SourceRootName  string `db:"source_root_name"`
	SourceChildName string `db:"source_child_name"`
	SearchKeyword   string `db:"search_keyword"`
}

// SaveItems upserts a batch of discovered items and returns how many
// rows were written.
func (r *ProductRepository) SaveItems(ctx context.Context, items []domain.DiscoveredItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for _, item := range items {
		row := productRow{
			DiscoveredItem:  item,
			SourceRootName:  item.SourceTask.RootName,
			SourceChildName: item.SourceTask.ChildName,
			SearchKeyword:   item.SourceTask.Keyword,
		}
		if _, err := tx.NamedExecContext(ctx, upsertProductQuery, row); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", item.ID, err)
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit products: %w", err)
	}

	r.log.Debug("products saved", "count", saved)
	return saved, nil
}

// List returns the most recently seen products.
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]domain.DiscoveredItem, error) {
	if limit <= 0 {
		limit = 50
	}

	var items []domain.DiscoveredItem
	query := `
		SELECT id, marketplace_id, title, brand, browse_node_id, browse_node_name,
		       identifier, identifier_type, sales_rank, sales_rank_category,
		       price, currency, is_prime, fulfillment_channel,
		       estimated_monthly_sales, demand_bucket,
		       last_seen_at AS fetched_at
		FROM products
		ORDER BY last_seen_at DESC
		LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &items, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return items, nil
}

// Get returns a single product by item ID, or nil when it is unknown.
func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.DiscoveredItem, error) {
	var item domain.DiscoveredItem
	query := `
		SELECT id, marketplace_id, title, brand, browse_node_id, browse_node_name,
		       identifier, identifier_type, sales_rank, sales_rank_category,
		       price, currency, is_prime, fulfillment_channel,
		       estimated_monthly_sales, demand_bucket,
		       last_seen_at AS fetched_at
		FROM products
		WHERE id = $1`
	err := r.db.GetContext(ctx, &item, query, id)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return &item, nil
}

// Count returns the total number of stored products.
func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM products`); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return count, nil
}
