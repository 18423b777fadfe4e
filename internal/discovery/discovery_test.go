package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/spapi"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

type fakeCatalog struct {
	pages map[int][]domain.CatalogItem
	err   error
	calls int
}

func (f *fakeCatalog) FetchPage(_ context.Context, _ string, _ spapi.SearchFilters, _, page int) ([]domain.CatalogItem, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[page], nil
}

type fakePrices struct {
	quotes map[string]*domain.PriceQuote
	errs   map[string]error
	calls  int
}

func (f *fakePrices) GetPrice(_ context.Context, itemID string) (*domain.PriceQuote, error) {
	f.calls++
	if err := f.errs[itemID]; err != nil {
		return nil, err
	}
	return f.quotes[itemID], nil
}

func catalogItem(id string) domain.CatalogItem {
	return domain.CatalogItem{ID: id, MarketplaceID: "MKT", Title: "Item " + id}
}

func quoteFor(price float64) *domain.PriceQuote {
	return &domain.PriceQuote{Price: floatPtr(price), Currency: "USD", FulfillmentChannel: "AMAZON"}
}

func testTask() domain.Task {
	return domain.Task{RootName: "Pet Supplies", ChildName: "Dogs", Keyword: "dog supplies"}
}

func newTestDiscoverer(catalog *fakeCatalog, prices *fakePrices, cfg Config) *Discoverer {
	return New(catalog, prices, cfg, logger.NewNop(), nil)
}

func TestDiscoverKeepsPricedItems(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B002")},
	}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{
		"B001": quoteFor(25),
		"B002": quoteFor(40),
	}}

	items, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 5)
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, "B001", items[0].ID)
	assert.Equal(t, 25.0, *items[0].Price)
	assert.Equal(t, testTask(), items[0].SourceTask)

	assert.Equal(t, 2, stats.CatalogSeen)
	assert.Equal(t, 2, stats.WithPrice)
	assert.Equal(t, 2, stats.Kept)
	assert.Equal(t, 2, stats.PriceLookups)
}

func TestDiscoverDeduplicatesByID(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B001"), {ID: ""}},
		2: {catalogItem("B001"), catalogItem("B002")},
	}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{
		"B001": quoteFor(25),
		"B002": quoteFor(30),
	}}

	items, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 5)
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, 5, stats.CatalogSeen)
	assert.Equal(t, 3, stats.SkippedDuplicate)
	// One price lookup per distinct item.
	assert.Equal(t, 2, prices.calls)
}

func TestDiscoverStopsAtMaxItems(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B002"), catalogItem("B003")},
	}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{
		"B001": quoteFor(25),
		"B002": quoteFor(30),
		"B003": quoteFor(35),
	}}

	items, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 2, 5)
	require.NoError(t, err)

	assert.Len(t, items, 2)
	assert.Equal(t, 2, stats.Kept)
	// The third item was never priced.
	assert.Equal(t, 2, prices.calls)
}

func TestDiscoverStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001")},
	}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{"B001": quoteFor(25)}}

	_, _, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 50)
	require.NoError(t, err)

	// Page 1 plus the empty page 2; pages 3..50 never fetched.
	assert.Equal(t, 2, catalog.calls)
}

func TestDiscoverFilterCounters(t *testing.T) {
	t.Parallel()

	noPrice := &domain.PriceQuote{Currency: "USD"}
	merchant := &domain.PriceQuote{Price: floatPtr(30), FulfillmentChannel: "MERCHANT"}

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B002"), catalogItem("B003"), catalogItem("B004")},
	}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{
		"B001": quoteFor(5),   // below the price floor
		"B002": noPrice,       // no usable price
		"B003": merchant,      // fails the prime offer filter
		"B004": quoteFor(500), // above the price ceiling
	}}

	cfg := Config{PriceMin: floatPtr(15), PriceMax: floatPtr(80), OfferType: "prime"}
	items, stats, err := newTestDiscoverer(catalog, prices, cfg).
		Discover(context.Background(), testTask(), 10, 5)
	require.NoError(t, err)

	assert.Empty(t, items)
	assert.Equal(t, 4, stats.CatalogSeen)
	assert.Equal(t, 1, stats.SkippedNoPrice)
	assert.Equal(t, 2, stats.SkippedPrice)
	assert.Equal(t, 1, stats.SkippedOffer)
	assert.Equal(t, 0, stats.Kept)
}

func TestDiscoverDemandFilter(t *testing.T) {
	t.Parallel()

	hot := catalogItem("B001")
	hot.SalesRank = intPtr(100)
	cold := catalogItem("B002")
	cold.SalesRank = intPtr(400000)
	unranked := catalogItem("B003")

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{1: {hot, cold, unranked}}}
	prices := &fakePrices{quotes: map[string]*domain.PriceQuote{
		"B001": quoteFor(25), "B002": quoteFor(25), "B003": quoteFor(25),
	}}

	cfg := Config{MinMonthlySales: 50}
	items, stats, err := newTestDiscoverer(catalog, prices, cfg).
		Discover(context.Background(), testTask(), 10, 5)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "B001", items[0].ID)
	require.NotNil(t, items[0].EstimatedMonthlySales)
	require.NotNil(t, items[0].DemandBucket)
	assert.Equal(t, 2, stats.SkippedDemand)
}

func TestDiscoverQuotaStopsImmediately(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B002"), catalogItem("B003")},
	}}
	prices := &fakePrices{
		quotes: map[string]*domain.PriceQuote{"B001": quoteFor(25)},
		errs:   map[string]error{"B002": &spapi.QuotaExceededError{Path: "/offers"}},
	}

	items, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 5)
	require.Error(t, err)
	assert.True(t, spapi.IsQuotaExceeded(err))

	// Work done before the quota hit is preserved.
	assert.Len(t, items, 1)
	assert.Equal(t, 1, stats.Kept)
	assert.Equal(t, 2, prices.calls)
}

func TestDiscoverOtherPriceErrorsSkipTheItem(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{
		1: {catalogItem("B001"), catalogItem("B002")},
	}}
	prices := &fakePrices{
		quotes: map[string]*domain.PriceQuote{"B002": quoteFor(25)},
		errs:   map[string]error{"B001": errors.New("connection reset")},
	}

	items, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 5)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, "B002", items[0].ID)
	assert.Equal(t, 1, stats.ErrorsAPI)
	assert.Contains(t, stats.LastError, "connection reset")
}

func TestDiscoverPageErrorSurfaces(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{err: errors.New("search failed")}
	prices := &fakePrices{}

	_, stats, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(context.Background(), testTask(), 10, 5)
	require.Error(t, err)
	assert.Equal(t, 1, stats.ErrorsAPI)
	assert.Equal(t, 0, prices.calls)
}

func TestDiscoverHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	catalog := &fakeCatalog{pages: map[int][]domain.CatalogItem{1: {catalogItem("B001")}}}
	prices := &fakePrices{}

	_, _, err := newTestDiscoverer(catalog, prices, Config{}).
		Discover(ctx, testTask(), 10, 5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, catalog.calls)
}

func TestDiscoverEmptyKeywordOrZeroBudget(t *testing.T) {
	t.Parallel()

	catalog := &fakeCatalog{}
	prices := &fakePrices{}
	d := newTestDiscoverer(catalog, prices, Config{})

	task := testTask()
	task.Keyword = "  "
	_, _, err := d.Discover(context.Background(), task, 10, 5)
	require.NoError(t, err)

	_, _, err = d.Discover(context.Background(), testTask(), 0, 5)
	require.NoError(t, err)

	assert.Equal(t, 0, catalog.calls)
}
