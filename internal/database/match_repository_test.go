package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/domain"
)

func TestToMatchRecord(t *testing.T) {
	t.Parallel()

	price := 29.99
	listingPrice := 19.99
	shipping := 4.5
	spread := 5.5
	result := domain.MatchResult{
		Item: domain.DiscoveredItem{
			CatalogItem: domain.CatalogItem{ID: "B001", Title: "Orthopedic Dog Bed"},
			Price:       &price,
		},
		Listing: &domain.Listing{
			ID:       "123",
			Title:    "Acme Orthopedic Dog Bed",
			Price:    &listingPrice,
			Shipping: &shipping,
			URL:      "https://listings.example/123",
		},
		Similarity: 96.5,
		Basis:      domain.MatchBasisTitle,
		Accepted:   true,
		Spread:     &spread,
		MatchedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	record := toMatchRecord(result)

	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "B001", record.ItemID)
	require.NotNil(t, record.ItemTitle)
	assert.Equal(t, "Orthopedic Dog Bed", *record.ItemTitle)
	require.NotNil(t, record.ListingPrice)
	assert.InDelta(t, 24.49, *record.ListingPrice, 0.001)
	require.NotNil(t, record.Basis)
	assert.Equal(t, "title", *record.Basis)
	require.NotNil(t, record.ListingURL)
	assert.True(t, record.Accepted)
}

func TestToMatchRecordRejected(t *testing.T) {
	t.Parallel()

	result := domain.MatchResult{
		Item: domain.DiscoveredItem{
			CatalogItem: domain.CatalogItem{ID: "B002"},
		},
		MatchedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	record := toMatchRecord(result)

	assert.False(t, record.Accepted)
	assert.Nil(t, record.ItemTitle)
	assert.Nil(t, record.ListingID)
	assert.Nil(t, record.Basis)
}
