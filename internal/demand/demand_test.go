package demand_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/demand"
)

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestEstimateNilAndInvalidRank(t *testing.T) {
	t.Parallel()

	assert.Nil(t, demand.Estimate(nil, strPtr("Electronics")))
	assert.Nil(t, demand.Estimate(intPtr(0), nil))
	assert.Nil(t, demand.Estimate(intPtr(-5), nil))
}

func TestEstimateAnchorValues(t *testing.T) {
	t.Parallel()

	category := strPtr("Electronics")

	atLow := demand.Estimate(intPtr(100), category)
	require.NotNil(t, atLow)
	assert.Equal(t, 1200, *atLow)

	atHigh := demand.Estimate(intPtr(100_000), category)
	require.NotNil(t, atHigh)
	assert.Equal(t, 12, *atHigh)
}

func TestEstimateClampsAtTableEdges(t *testing.T) {
	t.Parallel()

	below := demand.Estimate(intPtr(1), strPtr("Electronics"))
	require.NotNil(t, below)
	assert.Equal(t, 5000, *below)

	above := demand.Estimate(intPtr(9_000_000), strPtr("Electronics"))
	require.NotNil(t, above)
	assert.Equal(t, 2, *above)
}

func TestEstimateInterpolatesBetweenAnchors(t *testing.T) {
	t.Parallel()

	category := strPtr("Electronics")

	lo := demand.Estimate(intPtr(1_000), category)
	hi := demand.Estimate(intPtr(100), category)
	mid := demand.Estimate(intPtr(400), category)

	require.NotNil(t, lo)
	require.NotNil(t, hi)
	require.NotNil(t, mid)

	assert.Greater(t, *mid, *lo)
	assert.Less(t, *mid, *hi)
}

func TestEstimateMonotonicNonIncreasing(t *testing.T) {
	t.Parallel()

	categories := []*string{nil, strPtr("Electronics"), strPtr("Pet Supplies"), strPtr("Books")}
	ranks := []int{1, 10, 50, 100, 500, 1_000, 5_000, 20_000, 100_000, 500_000, 2_000_000}

	for _, category := range categories {
		prev := -1
		for _, rank := range ranks {
			est := demand.Estimate(intPtr(rank), category)
			require.NotNil(t, est, "rank %d", rank)
			if prev >= 0 {
				assert.LessOrEqual(t, *est, prev, "rank %d must not beat a better rank", rank)
			}
			prev = *est
		}
	}
}

func TestEstimateFlooredAtOne(t *testing.T) {
	t.Parallel()

	est := demand.Estimate(intPtr(450_000), strPtr("Toys & Games"))
	require.NotNil(t, est)
	assert.GreaterOrEqual(t, *est, 1)
}

func TestResolveCluster(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category string
		want     string
	}{
		{"Electronics", "electronics"},
		{"Computers & Accessories", "electronics"},
		{"Home & Kitchen", "home"},
		{"Toys & Games", "toys"},
		{"Pet Supplies", "pet"},
		{"Books", "books"},
		{"Grocery & Gourmet Food", "grocery"},
		{"Automotive", "default"},
		{"", "default"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, demand.ResolveCluster(tt.category), tt.category)
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	tests := []struct {
		sales *int
		want  *string
	}{
		{nil, nil},
		{intPtr(0), nil},
		{intPtr(500), strPtr("very-high")},
		{intPtr(300), strPtr("very-high")},
		{intPtr(299), strPtr("high")},
		{intPtr(100), strPtr("high")},
		{intPtr(99), strPtr("medium")},
		{intPtr(30), strPtr("medium")},
		{intPtr(29), strPtr("moderate")},
		{intPtr(10), strPtr("moderate")},
		{intPtr(9), strPtr("low")},
		{intPtr(3), strPtr("low")},
		{intPtr(2), strPtr("very-low")},
		{intPtr(1), strPtr("very-low")},
	}

	for _, tt := range tests {
		got := demand.Bucket(tt.sales)
		if tt.want == nil {
			assert.Nil(t, got)
			continue
		}
		require.NotNil(t, got)
		assert.Equal(t, *tt.want, *got)
	}
}
