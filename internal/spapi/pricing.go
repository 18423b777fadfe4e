package spapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

const (
	pricingPathFmt    = "/products/pricing/v0/items/%s/offers"
	pricingQuotaPause = 3 * time.Second
	pricingQuotaTries = 3
)

// Quoter fetches best-offer prices with a global rate gate: calls are
// spaced at least PricingMinGap apart across the whole process. The
// gate is a mutex-protected next-allowed-time value, so concurrent
// callers queue up deterministic slots instead of racing on sleeps.
type Quoter struct {
	client  *Client
	log     logger.Interface
	metrics *metrics.Metrics
	minGap  time.Duration

	mu          sync.Mutex
	nextAllowed time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewQuoter creates a Quoter sharing the given client.
func NewQuoter(client *Client, log logger.Interface, m *metrics.Metrics) *Quoter {
	return &Quoter{
		client:  client,
		log:     log.WithComponent("pricing"),
		metrics: m,
		minGap:  client.cfg.pricingMinGap(),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

// GetPrice returns the best-offer price for an item in New condition.
// An item with no usable price returns (nil, nil): absence of a price
// is a normal outcome, not an error.
func (q *Quoter) GetPrice(ctx context.Context, itemID string) (*domain.PriceQuote, error) {
	return q.GetPriceWithCondition(ctx, itemID, "New")
}

// GetPriceWithCondition is GetPrice for an explicit item condition.
func (q *Quoter) GetPriceWithCondition(ctx context.Context, itemID, condition string) (*domain.PriceQuote, error) {
	path := fmt.Sprintf(pricingPathFmt, itemID)
	params := map[string]string{
		"MarketplaceId": q.client.MarketplaceID(),
		"ItemCondition": condition,
		"CustomerType":  "Consumer",
	}

	q.waitForSlot()
	q.metrics.RecordPriceLookup()

	var data map[string]any
	var err error
	for attempt := 0; attempt < pricingQuotaTries; attempt++ {
		data, err = q.client.Execute(ctx, "GET", path, params, nil)
		if err == nil {
			break
		}
		if IsQuotaExceeded(err) && attempt < pricingQuotaTries-1 {
			q.log.Warn("pricing quota exceeded, pausing", "item_id", itemID, "attempt", attempt+1)
			q.sleep(pricingQuotaPause)
			continue
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	return extractQuote(data, itemID, condition), nil
}

// waitForSlot blocks until this call's reserved slot arrives.
func (q *Quoter) waitForSlot() {
	q.mu.Lock()
	now := q.now()
	wait := q.nextAllowed.Sub(now)
	if wait < 0 {
		wait = 0
	}
	q.nextAllowed = now.Add(wait + q.minGap)
	q.mu.Unlock()

	if wait > 0 {
		q.sleep(wait)
	}
}

// extractQuote reads the price out of an offers response, preferring
// the buy-box block and falling back to the lowest listed price.
// Returns nil when neither block yields a usable amount.
func extractQuote(data map[string]any, itemID, condition string) *domain.PriceQuote {
	payload := asMap(data["payload"])
	if payload == nil {
		payload = data
	}
	summary := asMap(payload["Summary"])

	var offer map[string]any
	if prices := asSlice(summary["BuyBoxPrices"]); len(prices) > 0 {
		offer = asMap(prices[0])
	} else if prices := asSlice(summary["LowestPrices"]); len(prices) > 0 {
		offer = asMap(prices[0])
	}
	if offer == nil {
		return nil
	}

	listing := asMap(offer["ListingPrice"])
	amount, ok := getFloat(listing, "Amount")
	if !ok {
		return nil
	}

	quote := &domain.PriceQuote{
		ItemID:             itemID,
		Price:              &amount,
		Currency:           getString(listing, "CurrencyCode"),
		FulfillmentChannel: getString(offer, "FulfillmentChannel"),
		Condition:          condition,
	}
	if prime, ok := getBool(offer, "IsPrime"); ok {
		quote.IsPrime = &prime
	}
	return quote
}
