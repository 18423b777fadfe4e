package spapi

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbminer/arbminer/internal/logger"
)

func newTestQuoter(t *testing.T) (*Quoter, *[]time.Duration) {
	t.Helper()

	c, _ := newTestClient(t, testConfig())
	stubTokenEndpoint(t)

	q := NewQuoter(c, logger.NewNop(), nil)
	sleeps := &[]time.Duration{}
	q.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return q, sleeps
}

func pricingURL(itemID string) string {
	return "https://" + testHost + fmt.Sprintf(pricingPathFmt, itemID)
}

func offersResponse(summary map[string]any) map[string]any {
	return map[string]any{"payload": map[string]any{"Summary": summary}}
}

func TestQuoterPrefersBuyBoxPrice(t *testing.T) {
	q, _ := newTestQuoter(t)

	httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
		func(req *http.Request) (*http.Response, error) {
			query := req.URL.Query()
			assert.Equal(t, "MKT", query.Get("MarketplaceId"))
			assert.Equal(t, "New", query.Get("ItemCondition"))
			assert.Equal(t, "Consumer", query.Get("CustomerType"))
			return httpmock.NewJsonResponse(http.StatusOK, offersResponse(map[string]any{
				"BuyBoxPrices": []any{map[string]any{
					"ListingPrice":       map[string]any{"Amount": 24.99, "CurrencyCode": "USD"},
					"IsPrime":            true,
					"FulfillmentChannel": "AMAZON",
				}},
				"LowestPrices": []any{map[string]any{
					"ListingPrice": map[string]any{"Amount": 19.99, "CurrencyCode": "USD"},
				}},
			}))
		})

	quote, err := q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)
	require.NotNil(t, quote)
	require.NotNil(t, quote.Price)
	assert.Equal(t, 24.99, *quote.Price)
	assert.Equal(t, "USD", quote.Currency)
	assert.Equal(t, "AMAZON", quote.FulfillmentChannel)
	require.NotNil(t, quote.IsPrime)
	assert.True(t, *quote.IsPrime)
	assert.Equal(t, "New", quote.Condition)
}

func TestQuoterFallsBackToLowestPrice(t *testing.T) {
	q, _ := newTestQuoter(t)

	httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
		httpmock.NewJsonResponderOrPanic(http.StatusOK, offersResponse(map[string]any{
			"LowestPrices": []any{map[string]any{
				"ListingPrice":       map[string]any{"Amount": 15.5, "CurrencyCode": "USD"},
				"FulfillmentChannel": "MERCHANT",
			}},
		})))

	quote, err := q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, 15.5, *quote.Price)
	assert.Equal(t, "MERCHANT", quote.FulfillmentChannel)
	assert.Nil(t, quote.IsPrime)
}

func TestQuoterNoPriceIsNotAnError(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
	}{
		{"empty summary", offersResponse(map[string]any{})},
		{"no payload", map[string]any{}},
		{"offer without amount", offersResponse(map[string]any{
			"BuyBoxPrices": []any{map[string]any{"ListingPrice": map[string]any{"CurrencyCode": "USD"}}},
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := newTestQuoter(t)
			httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
				httpmock.NewJsonResponderOrPanic(http.StatusOK, tt.payload))

			quote, err := q.GetPrice(context.Background(), "B00TEST")
			require.NoError(t, err)
			assert.Nil(t, quote)
		})
	}
}

func TestQuoterSpacesCallsByMinGap(t *testing.T) {
	q, sleeps := newTestQuoter(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return base }

	httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
		httpmock.NewJsonResponderOrPanic(http.StatusOK, offersResponse(map[string]any{})))

	_, err := q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)
	assert.Empty(t, *sleeps)

	// The clock has not advanced, so the second call waits a full gap
	// and the third waits two.
	_, err = q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)
	_, err = q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)

	gap := q.minGap
	assert.Equal(t, []time.Duration{gap, 2 * gap}, *sleeps)
}

func TestQuoterDefaultMinGap(t *testing.T) {
	q, _ := newTestQuoter(t)
	assert.Equal(t, 2200*time.Millisecond, q.minGap)
}

func TestQuoterRetriesQuotaWithLongerPause(t *testing.T) {
	q, sleeps := newTestQuoter(t)

	calls := 0
	httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls <= 3 {
				// One full client-level quota cycle fails first.
				return httpmock.NewStringResponse(http.StatusTooManyRequests, "QuotaExceeded"), nil
			}
			return httpmock.NewJsonResponse(http.StatusOK, offersResponse(map[string]any{
				"BuyBoxPrices": []any{map[string]any{
					"ListingPrice": map[string]any{"Amount": 9.99, "CurrencyCode": "USD"},
				}},
			}))
		})

	quote, err := q.GetPrice(context.Background(), "B00TEST")
	require.NoError(t, err)
	require.NotNil(t, quote)
	assert.Equal(t, 9.99, *quote.Price)
	assert.Contains(t, *sleeps, pricingQuotaPause)
}

func TestQuoterSurfacesQuotaAfterRetries(t *testing.T) {
	q, sleeps := newTestQuoter(t)

	httpmock.RegisterResponder(http.MethodGet, pricingURL("B00TEST"),
		httpmock.NewStringResponder(http.StatusTooManyRequests, "QuotaExceeded"))

	_, err := q.GetPrice(context.Background(), "B00TEST")
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	pauses := 0
	for _, d := range *sleeps {
		if d == pricingQuotaPause {
			pauses++
		}
	}
	assert.Equal(t, 2, pauses)
}
