package matching

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

// Default acceptance thresholds on the 0..100 similarity scale.
// Identifier-based candidates clear a lower bar because the
// identifier itself corroborates the match; title-only candidates
// need a stricter score, relaxed slightly when the known brand also
// appears in the candidate title.
const (
	DefaultMinScoreIdentifier = 85.0
	DefaultMinScoreWithBrand  = 92.0
	DefaultMinScoreNoBrand    = 95.0
)

// Searcher is the Platform-B lookup surface the engine depends on.
type Searcher interface {
	SearchByIdentifier(ctx context.Context, identifier string, limit int) ([]domain.Listing, error)
	SearchByKeyword(ctx context.Context, keyword string, limit int) ([]domain.Listing, error)
}

// Config tunes the engine's thresholds and candidate filters.
type Config struct {
	MinScoreIdentifier float64
	MinScoreWithBrand  float64
	MinScoreNoBrand    float64

	PriceMin *float64
	PriceMax *float64

	// OfferType filters the Platform-A side of a pair:
	// "any", "prime" (prime or platform-fulfilled), "merchant".
	OfferType string

	// Condition restricts Platform-B candidates ("NEW" etc.); empty
	// accepts any condition.
	Condition string

	SearchLimit int
}

func (c Config) withDefaults() Config {
	if c.MinScoreIdentifier <= 0 {
		c.MinScoreIdentifier = DefaultMinScoreIdentifier
	}
	if c.MinScoreWithBrand <= 0 {
		c.MinScoreWithBrand = DefaultMinScoreWithBrand
	}
	if c.MinScoreNoBrand <= 0 {
		c.MinScoreNoBrand = DefaultMinScoreNoBrand
	}
	if c.OfferType == "" {
		c.OfferType = "any"
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = 50
	}
	return c
}

// Engine matches discovered Platform-A items against Platform-B
// listings: identifier lookup first, title search as fallback, one
// best candidate selected deterministically.
type Engine struct {
	searcher Searcher
	cache    *MatchCache
	cfg      Config
	log      logger.Interface
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewEngine creates an Engine. cache may be nil to disable lookup
// caching.
func NewEngine(searcher Searcher, cache *MatchCache, cfg Config, log logger.Interface, m *metrics.Metrics) *Engine {
	return &Engine{
		searcher: searcher,
		cache:    cache,
		cfg:      cfg.withDefaults(),
		log:      log.WithComponent("matching"),
		metrics:  m,
		now:      time.Now,
	}
}

// Match finds the best Platform-B listing for one item. A result with
// Accepted=false means "no match found", which is a normal outcome;
// the error return is reserved for API failures.
func (e *Engine) Match(ctx context.Context, item domain.DiscoveredItem) (domain.MatchResult, error) {
	result := domain.MatchResult{Item: item, MatchedAt: e.now()}

	if item.Title == "" {
		return result, nil
	}

	if !e.itemPassesOfferFilter(item) {
		e.metrics.RecordMatchOutcome(string(domain.MatchBasisTitle), false)
		return result, nil
	}

	// Identifier lookup first.
	if item.Identifier != "" {
		candidates, err := e.searchIdentifier(ctx, item.Identifier)
		if err != nil {
			return result, fmt.Errorf("identifier lookup failed for %s: %w", item.ID, err)
		}
		if match, ok := e.selectCandidate(item, candidates, domain.MatchBasisIdentifier); ok {
			e.metrics.RecordMatchOutcome(string(domain.MatchBasisIdentifier), match.Accepted)
			return match, nil
		}
	}

	// Title fallback.
	query := BuildTitleQuery(item.Title, item.Brand)
	if query == "" {
		return result, nil
	}
	candidates, err := e.searchKeyword(ctx, query)
	if err != nil {
		return result, fmt.Errorf("title lookup failed for %s: %w", item.ID, err)
	}
	if match, ok := e.selectCandidate(item, candidates, domain.MatchBasisTitle); ok {
		e.metrics.RecordMatchOutcome(string(domain.MatchBasisTitle), match.Accepted)
		return match, nil
	}

	e.metrics.RecordMatchOutcome(string(domain.MatchBasisTitle), false)
	return result, nil
}

// selectCandidate scores all candidates, picks the single best one
// (ties broken by lower total price, then original order) and applies
// the acceptance threshold and filters to that candidate only.
func (e *Engine) selectCandidate(item domain.DiscoveredItem, candidates []domain.Listing, basis domain.MatchBasis) (domain.MatchResult, bool) {
	if len(candidates) == 0 {
		return domain.MatchResult{}, false
	}

	bestIdx := -1
	bestScore := -1.0
	for i := range candidates {
		score := TitleSimilarity(item.Title, candidates[i].Title)
		switch {
		case score > bestScore:
			bestIdx, bestScore = i, score
		case score == bestScore && lowerTotal(&candidates[i], &candidates[bestIdx]):
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return domain.MatchResult{}, false
	}

	selected := candidates[bestIdx]
	threshold := e.thresholdFor(item, selected, basis)

	// An identifier candidate that does not clear its threshold falls
	// through to the title search. A candidate that clears the
	// threshold but fails the filters is a final no-match.
	if bestScore < threshold {
		if basis == domain.MatchBasisIdentifier {
			return domain.MatchResult{}, false
		}
		return domain.MatchResult{
			Item:       item,
			Listing:    &selected,
			Similarity: bestScore,
			Basis:      basis,
			Accepted:   false,
			MatchedAt:  e.now(),
		}, true
	}

	accepted := e.listingPassesFilters(&selected)
	result := domain.MatchResult{
		Item:       item,
		Listing:    &selected,
		Similarity: bestScore,
		Basis:      basis,
		Accepted:   accepted,
		MatchedAt:  e.now(),
	}
	if accepted {
		result.Spread, result.SpreadPct = spread(item, &selected)
	}
	return result, true
}

func (e *Engine) thresholdFor(item domain.DiscoveredItem, candidate domain.Listing, basis domain.MatchBasis) float64 {
	if basis == domain.MatchBasisIdentifier {
		return e.cfg.MinScoreIdentifier
	}
	if item.Brand != "" && brandInTitle(item.Brand, candidate.Title) {
		return e.cfg.MinScoreWithBrand
	}
	return e.cfg.MinScoreNoBrand
}

// listingPassesFilters applies the price-range and condition filters
// to the selected Platform-B candidate.
func (e *Engine) listingPassesFilters(listing *domain.Listing) bool {
	total := listing.TotalPrice()
	if total == nil {
		return false
	}
	if e.cfg.PriceMin != nil && *total < *e.cfg.PriceMin {
		return false
	}
	if e.cfg.PriceMax != nil && *total > *e.cfg.PriceMax {
		return false
	}
	if e.cfg.Condition != "" && listing.Condition != "" &&
		!strings.EqualFold(listing.Condition, e.cfg.Condition) {
		return false
	}
	return true
}

// itemPassesOfferFilter applies the offer-type filter to the
// Platform-A side: "prime" keeps prime or platform-fulfilled offers,
// "merchant" keeps the rest.
func (e *Engine) itemPassesOfferFilter(item domain.DiscoveredItem) bool {
	channel := strings.ToUpper(item.FulfillmentChannel)
	isPrime := item.IsPrime != nil && *item.IsPrime

	switch strings.ToLower(e.cfg.OfferType) {
	case "prime":
		return isPrime || channel == "AMAZON"
	case "merchant":
		return channel != "AMAZON"
	default:
		return true
	}
}

func (e *Engine) searchIdentifier(ctx context.Context, identifier string) ([]domain.Listing, error) {
	if cached, ok := e.cache.getIdentifier(identifier); ok {
		return cached, nil
	}
	listings, err := e.searcher.SearchByIdentifier(ctx, identifier, e.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	e.cache.putIdentifier(identifier, listings)
	return listings, nil
}

func (e *Engine) searchKeyword(ctx context.Context, keyword string) ([]domain.Listing, error) {
	if cached, ok := e.cache.getKeyword(keyword); ok {
		return cached, nil
	}
	listings, err := e.searcher.SearchByKeyword(ctx, keyword, e.cfg.SearchLimit)
	if err != nil {
		return nil, err
	}
	e.cache.putKeyword(keyword, listings)
	return listings, nil
}

// spread is the gross margin of buying the listing and selling at the
// item's Platform-A price.
func spread(item domain.DiscoveredItem, listing *domain.Listing) (*float64, *float64) {
	total := listing.TotalPrice()
	if item.Price == nil || total == nil {
		return nil, nil
	}
	diff := *item.Price - *total
	var pct *float64
	if *total > 0 {
		v := diff / *total * 100
		pct = &v
	}
	return &diff, pct
}

func lowerTotal(a, b *domain.Listing) bool {
	ta, tb := a.TotalPrice(), b.TotalPrice()
	if ta == nil || tb == nil {
		return false
	}
	return *ta < *tb
}
