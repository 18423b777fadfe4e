// Package discovery composes catalog pagination, price quoting and
// demand estimation into per-task product discovery.
package discovery

import (
	"context"
	"strings"
	"time"

	"github.com/arbminer/arbminer/internal/demand"
	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
	"github.com/arbminer/arbminer/internal/spapi"
)

// CatalogSource pages through catalog search results.
type CatalogSource interface {
	FetchPage(ctx context.Context, keyword string, filters spapi.SearchFilters, pageSize, page int) ([]domain.CatalogItem, error)
}

// PriceSource quotes a best-offer price for one item.
type PriceSource interface {
	GetPrice(ctx context.Context, itemID string) (*domain.PriceQuote, error)
}

// Config holds the filters applied while mining.
type Config struct {
	PriceMin *float64
	PriceMax *float64

	// OfferType: "any", "prime" (prime or platform-fulfilled) or
	// "merchant".
	OfferType string

	// MinMonthlySales drops items whose demand estimate is below the
	// bar; 0 disables the filter.
	MinMonthlySales int

	PageSize int
}

func (c Config) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return 20
}

// Discoverer runs one task's discovery loop.
type Discoverer struct {
	catalog CatalogSource
	prices  PriceSource
	log     logger.Interface
	metrics *metrics.Metrics
	cfg     Config
	now     func() time.Time
}

// New creates a Discoverer.
func New(catalog CatalogSource, prices PriceSource, cfg Config, log logger.Interface, m *metrics.Metrics) *Discoverer {
	return &Discoverer{
		catalog: catalog,
		prices:  prices,
		log:     log.WithComponent("discovery"),
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Discover mines up to maxItems distinct priced items for one task,
// walking catalog pages 1..maxPages. Items are deduplicated by ID
// with first-seen-wins. Cancellation is honored between pages and
// between items, never mid-call. On error, the items collected so far
// are returned along with exact stats; callers inspect the error kind
// to decide between skipping the task and stopping the batch.
func (d *Discoverer) Discover(ctx context.Context, task domain.Task, maxItems, maxPages int) ([]domain.DiscoveredItem, domain.DiscoveryStats, error) {
	var stats domain.DiscoveryStats
	var items []domain.DiscoveredItem

	if maxItems <= 0 || strings.TrimSpace(task.Keyword) == "" {
		return nil, stats, nil
	}
	if maxPages <= 0 {
		maxPages = 150
	}

	seen := make(map[string]bool)
	filters := spapi.SearchFilters{BrowseNodeID: task.BrowseNodeID}

	start := d.now()
	defer func() {
		d.metrics.ObserveTaskDuration(d.now().Sub(start).Seconds())
		d.metrics.RecordItemsKept(task.RootName, stats.Kept)
	}()

	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, stats, err
		}

		catalogItems, err := d.catalog.FetchPage(ctx, task.Keyword, filters, d.cfg.pageSize(), page)
		if err != nil {
			stats.ErrorsAPI++
			stats.LastError = err.Error()
			return items, stats, err
		}
		if len(catalogItems) == 0 {
			break
		}

		for i := range catalogItems {
			if err := ctx.Err(); err != nil {
				return items, stats, err
			}

			item := catalogItems[i]
			stats.CatalogSeen++

			if item.ID == "" || seen[item.ID] {
				stats.SkippedDuplicate++
				continue
			}
			seen[item.ID] = true

			discovered, keep, err := d.evaluate(ctx, item, task, &stats)
			if err != nil {
				if spapi.IsQuotaExceeded(err) {
					return items, stats, err
				}
				stats.ErrorsAPI++
				stats.LastError = err.Error()
				d.log.Warn("price lookup failed, skipping item",
					"item_id", item.ID, "task", task.Label(), "error", err)
				continue
			}
			if !keep {
				continue
			}

			items = append(items, discovered)
			stats.Kept++

			if len(items) >= maxItems {
				d.log.Info("task reached item limit",
					"task", task.Label(), "kept", stats.Kept, "pages", page)
				return items, stats, nil
			}
		}
	}

	d.log.Info("task exhausted catalog pages",
		"task", task.Label(), "kept", stats.Kept, "catalog_seen", stats.CatalogSeen)
	return items, stats, nil
}

// evaluate prices one catalog item and applies the configured
// filters. keep=false with nil error means the item was filtered out.
func (d *Discoverer) evaluate(ctx context.Context, item domain.CatalogItem, task domain.Task, stats *domain.DiscoveryStats) (domain.DiscoveredItem, bool, error) {
	var out domain.DiscoveredItem

	stats.PriceLookups++
	quote, err := d.prices.GetPrice(ctx, item.ID)
	if err != nil {
		return out, false, err
	}

	if quote == nil || quote.Price == nil {
		stats.SkippedNoPrice++
		return out, false, nil
	}
	stats.WithPrice++

	if d.cfg.PriceMin != nil && *quote.Price < *d.cfg.PriceMin {
		stats.SkippedPrice++
		return out, false, nil
	}
	if d.cfg.PriceMax != nil && *quote.Price > *d.cfg.PriceMax {
		stats.SkippedPrice++
		return out, false, nil
	}

	if !offerPasses(d.cfg.OfferType, quote) {
		stats.SkippedOffer++
		return out, false, nil
	}

	estimate := demand.Estimate(item.SalesRank, item.SalesRankCategory)
	if d.cfg.MinMonthlySales > 0 {
		if estimate == nil || *estimate < d.cfg.MinMonthlySales {
			stats.SkippedDemand++
			return out, false, nil
		}
	}

	out = domain.DiscoveredItem{
		CatalogItem:           item,
		Price:                 quote.Price,
		Currency:              quote.Currency,
		IsPrime:               quote.IsPrime,
		FulfillmentChannel:    quote.FulfillmentChannel,
		EstimatedMonthlySales: estimate,
		DemandBucket:          demand.Bucket(estimate),
		SourceTask:            task,
		FetchedAt:             d.now(),
	}
	return out, true, nil
}

func offerPasses(offerType string, quote *domain.PriceQuote) bool {
	channel := strings.ToUpper(quote.FulfillmentChannel)
	isPrime := quote.IsPrime != nil && *quote.IsPrime

	switch strings.ToLower(offerType) {
	case "prime":
		return isPrime || channel == "AMAZON"
	case "merchant":
		return channel != "AMAZON"
	default:
		return true
	}
}
