package matching

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
)

type fakeSearcher struct {
	byIdentifier    []domain.Listing
	byKeyword       []domain.Listing
	identifierErr   error
	keywordErr      error
	identifierCalls int
	keywordCalls    int
	lastKeyword     string
}

func (f *fakeSearcher) SearchByIdentifier(_ context.Context, _ string, _ int) ([]domain.Listing, error) {
	f.identifierCalls++
	return f.byIdentifier, f.identifierErr
}

func (f *fakeSearcher) SearchByKeyword(_ context.Context, keyword string, _ int) ([]domain.Listing, error) {
	f.keywordCalls++
	f.lastKeyword = keyword
	return f.byKeyword, f.keywordErr
}

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func testItem() domain.DiscoveredItem {
	return domain.DiscoveredItem{
		CatalogItem: domain.CatalogItem{
			ID:         "B00TEST",
			Title:      "Orthopedic Dog Bed Large",
			Brand:      "Acme",
			Identifier: "012345678905",
		},
		Price: floatPtr(30),
	}
}

func testListing(title string, price float64) domain.Listing {
	return domain.Listing{
		ID:        "v1|100|0",
		Title:     title,
		Price:     floatPtr(price),
		Condition: "NEW",
	}
}

func newTestEngine(searcher Searcher, cfg Config) *Engine {
	return NewEngine(searcher, nil, cfg, logger.NewNop(), nil)
}

func TestMatchByIdentifier(t *testing.T) {
	t.Parallel()

	listing := testListing("Orthopedic Dog Bed Large", 20)
	listing.Shipping = floatPtr(2)
	searcher := &fakeSearcher{byIdentifier: []domain.Listing{listing}}
	engine := newTestEngine(searcher, Config{})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, domain.MatchBasisIdentifier, result.Basis)
	assert.Equal(t, 100.0, result.Similarity)
	require.NotNil(t, result.Spread)
	assert.InDelta(t, 8.0, *result.Spread, 1e-9)
	require.NotNil(t, result.SpreadPct)
	assert.InDelta(t, 100*8.0/22.0, *result.SpreadPct, 1e-9)

	// Identifier hit means the title search never runs.
	assert.Equal(t, 0, searcher.keywordCalls)
}

func TestMatchFallsBackToTitleSearch(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		byIdentifier: []domain.Listing{testListing("Completely Unrelated Cat Tree", 20)},
		byKeyword:    []domain.Listing{testListing("Orthopedic Dog Bed Large", 20)},
	}
	engine := newTestEngine(searcher, Config{})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, domain.MatchBasisTitle, result.Basis)
	assert.Equal(t, 1, searcher.identifierCalls)
	assert.Equal(t, 1, searcher.keywordCalls)
	assert.Equal(t, "acme orthopedic dog bed large", searcher.lastKeyword)
}

func TestMatchIdentifierFilterFailureIsFinal(t *testing.T) {
	t.Parallel()

	// The identifier candidate clears its threshold but costs more than
	// the configured maximum. That is a final no-match, not a reason to
	// retry by title.
	searcher := &fakeSearcher{
		byIdentifier: []domain.Listing{testListing("Orthopedic Dog Bed Large", 500)},
		byKeyword:    []domain.Listing{testListing("Orthopedic Dog Bed Large", 20)},
	}
	engine := newTestEngine(searcher, Config{PriceMax: floatPtr(100)})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)

	assert.False(t, result.Accepted)
	assert.Equal(t, domain.MatchBasisIdentifier, result.Basis)
	assert.Nil(t, result.Spread)
	assert.Equal(t, 0, searcher.keywordCalls)
}

func TestMatchThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	itemTitle := "Orthopedic Dog Bed Large"
	candidateTitle := "Orthopedic Dog Bed XL"
	score := TitleSimilarity(itemTitle, candidateTitle)
	require.Greater(t, score, 0.0)
	require.Less(t, score, 100.0)

	tests := []struct {
		name     string
		minScore float64
		accepted bool
	}{
		{"score equal to threshold", score, true},
		{"score just below threshold", score + 0.1, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			item := testItem()
			item.Identifier = ""
			item.Brand = ""
			searcher := &fakeSearcher{byKeyword: []domain.Listing{testListing(candidateTitle, 20)}}
			engine := newTestEngine(searcher, Config{MinScoreNoBrand: tt.minScore})

			result, err := engine.Match(context.Background(), item)
			require.NoError(t, err)
			assert.Equal(t, tt.accepted, result.Accepted)
			assert.Equal(t, score, result.Similarity)
		})
	}
}

func TestMatchBrandCorroborationLowersBar(t *testing.T) {
	t.Parallel()

	itemTitle := "Orthopedic Dog Bed Large"
	candidateTitle := "Acme Orthopedic Dog Bed Large Washable"
	score := TitleSimilarity(itemTitle, candidateTitle)
	require.Greater(t, score, 0.0)
	require.Less(t, score, 100.0)

	// The candidate title carries the brand, so the lower bar applies.
	cfg := Config{
		MinScoreWithBrand: score,
		MinScoreNoBrand:   score + 1,
	}

	item := testItem()
	item.Identifier = ""
	searcher := &fakeSearcher{byKeyword: []domain.Listing{testListing(candidateTitle, 20)}}
	result, err := newTestEngine(searcher, cfg).Match(context.Background(), item)
	require.NoError(t, err)
	assert.True(t, result.Accepted)

	// Same scores without brand corroboration miss the stricter bar.
	item.Brand = "Nonexistent"
	searcher = &fakeSearcher{byKeyword: []domain.Listing{testListing(candidateTitle, 20)}}
	result, err = newTestEngine(searcher, cfg).Match(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestMatchTieBreaksOnLowerTotalPrice(t *testing.T) {
	t.Parallel()

	cheap := testListing("Orthopedic Dog Bed Large", 18)
	expensive := testListing("Orthopedic Dog Bed Large", 25)
	searcher := &fakeSearcher{byIdentifier: []domain.Listing{expensive, cheap}}
	engine := newTestEngine(searcher, Config{})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)

	require.True(t, result.Accepted)
	require.NotNil(t, result.Listing)
	assert.Equal(t, 18.0, *result.Listing.Price)
}

func TestMatchOfferTypeFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		offerType string
		isPrime   *bool
		channel   string
		wantCalls int
	}{
		{"any keeps everything", "any", nil, "MERCHANT", 1},
		{"prime keeps prime offers", "prime", boolPtr(true), "MERCHANT", 1},
		{"prime keeps platform fulfilled", "prime", nil, "AMAZON", 1},
		{"prime drops merchant offers", "prime", boolPtr(false), "MERCHANT", 0},
		{"merchant drops platform fulfilled", "merchant", nil, "AMAZON", 0},
		{"merchant keeps merchant offers", "merchant", nil, "MERCHANT", 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			item := testItem()
			item.IsPrime = tt.isPrime
			item.FulfillmentChannel = tt.channel

			searcher := &fakeSearcher{byIdentifier: []domain.Listing{testListing(item.Title, 20)}}
			engine := newTestEngine(searcher, Config{OfferType: tt.offerType})

			_, err := engine.Match(context.Background(), item)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, searcher.identifierCalls)
		})
	}
}

func TestMatchConditionFilter(t *testing.T) {
	t.Parallel()

	listing := testListing("Orthopedic Dog Bed Large", 20)
	listing.Condition = "USED"
	searcher := &fakeSearcher{byIdentifier: []domain.Listing{listing}}
	engine := newTestEngine(searcher, Config{Condition: "NEW"})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestMatchListingWithoutPriceRejected(t *testing.T) {
	t.Parallel()

	listing := testListing("Orthopedic Dog Bed Large", 0)
	listing.Price = nil
	searcher := &fakeSearcher{byIdentifier: []domain.Listing{listing}}
	engine := newTestEngine(searcher, Config{})

	result, err := engine.Match(context.Background(), testItem())
	require.NoError(t, err)
	assert.False(t, result.Accepted)
}

func TestMatchEmptyTitleSkipsLookups(t *testing.T) {
	t.Parallel()

	item := testItem()
	item.Title = ""
	searcher := &fakeSearcher{}
	engine := newTestEngine(searcher, Config{})

	result, err := engine.Match(context.Background(), item)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, 0, searcher.identifierCalls)
	assert.Equal(t, 0, searcher.keywordCalls)
}

func TestMatchSearchErrorSurfaces(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{identifierErr: errors.New("boom")}
	engine := newTestEngine(searcher, Config{})

	_, err := engine.Match(context.Background(), testItem())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identifier lookup failed")
}

func TestMatchUsesCache(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{byIdentifier: []domain.Listing{testListing("Orthopedic Dog Bed Large", 20)}}
	cache := NewMatchCache(8)
	engine := NewEngine(searcher, cache, Config{}, logger.NewNop(), nil)

	for i := 0; i < 3; i++ {
		_, err := engine.Match(context.Background(), testItem())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, searcher.identifierCalls)
}
