package ebay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/arbminer/arbminer/internal/cache"
	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

const (
	browseSearchPath = "/buy/browse/v1/item_summary/search"
	browseItemPath   = "/buy/browse/v1/item/"
	maxPageLimit     = 200
	searchMaxPages   = 10
	pagePause        = 100 * time.Millisecond

	searchRetries    = 5
	searchBackoff    = 500 * time.Millisecond
	platformLabel    = "platform_b"
	defaultBrowseURL = "https://api.ebay.com"
)

// RequestError is a non-success Browse API response.
type RequestError struct {
	Status int
	Body   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("browse api error %d: %s", e.Status, e.Body)
}

// Config holds the Browse API credentials and search filters applied
// to every query.
type Config struct {
	ClientID     string
	ClientSecret string

	BaseURL       string
	MarketplaceID string
	SiteID        string

	PriceMin  *float64
	PriceMax  *float64
	Condition string

	Timeout time.Duration
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return defaultBrowseURL
}

func (c Config) marketplaceID() string {
	if c.MarketplaceID != "" {
		return c.MarketplaceID
	}
	return "EBAY_US"
}

func (c Config) siteID() string {
	if c.SiteID != "" {
		return c.SiteID
	}
	return "0"
}

// Client queries the Browse API. GET requests are retried with
// exponential backoff on 429 and transient 5xx statuses.
type Client struct {
	cfg        Config
	httpClient *http.Client
	auth       *AppTokenSource
	log        logger.Interface
	metrics    *metrics.Metrics

	sleep func(time.Duration)
}

// NewClient creates a Browse API client sharing one HTTP transport
// for auth and search calls.
func NewClient(cfg Config, store cache.Store, log logger.Interface, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 5 * time.Second,
			}).DialContext,
			MaxIdleConnsPerHost: 4,
		},
		Timeout: timeout,
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		auth:       NewAppTokenSource(cfg, httpClient, store, log),
		log:        log.WithComponent("ebay"),
		metrics:    m,
		sleep:      time.Sleep,
	}
}

// HTTPClient exposes the underlying HTTP client for tests.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// SearchByIdentifier searches listings by GTIN/UPC/EAN/ISBN.
func (c *Client) SearchByIdentifier(ctx context.Context, identifier string, limit int) ([]domain.Listing, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}
	return c.search(ctx, map[string]string{"gtin": identifier}, limit)
}

// SearchByKeyword searches listings by free-text query.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]domain.Listing, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, fmt.Errorf("search requires a keyword")
	}
	return c.search(ctx, map[string]string{"q": keyword}, limit)
}

// SearchByCategory searches listings within one category.
func (c *Client) SearchByCategory(ctx context.Context, categoryID, limit int) ([]domain.Listing, error) {
	return c.search(ctx, map[string]string{"category_ids": strconv.Itoa(categoryID)}, limit)
}

func (c *Client) search(ctx context.Context, query map[string]string, limit int) ([]domain.Listing, error) {
	if limit <= 0 {
		limit = 50
	}
	perPage := limit
	if perPage > maxPageLimit {
		perPage = maxPageLimit
	}

	params := url.Values{}
	for k, v := range query {
		params.Set(k, v)
	}
	params.Set("limit", strconv.Itoa(perPage))
	if filter := c.buildFilter(); filter != "" {
		params.Set("filter", filter)
	}

	var listings []domain.Listing
	offset := 0

	for page := 0; page < searchMaxPages && len(listings) < limit; page++ {
		params.Set("offset", strconv.Itoa(offset))

		data, err := c.get(ctx, browseSearchPath, params)
		if err != nil {
			return nil, err
		}

		summaries := asSlice(data["itemSummaries"])
		if len(summaries) == 0 {
			break
		}
		for _, raw := range summaries {
			summary := asMap(raw)
			if summary == nil {
				continue
			}
			listings = append(listings, flattenSummary(summary))
		}

		total, _ := getInt(data, "total")
		offset += perPage
		if offset >= total {
			break
		}
		c.sleep(pagePause)
	}

	if len(listings) > limit {
		listings = listings[:limit]
	}
	return listings, nil
}

// ItemDetail is one Browse API item lookup with availability info.
type ItemDetail struct {
	ItemID       string
	AvailableQty *int
	QtyFlag      string
	Brand        string
	MPN          string
	Identifier   string
	CategoryID   *int
}

// GetItemDetail fetches a single listing's detail. 404 and 429 are
// reported through QtyFlag ("NOT_FOUND" / "RATE_LIMIT") rather than
// as errors, since callers enrich in bulk and skip such rows.
func (c *Client) GetItemDetail(ctx context.Context, itemID string) (*ItemDetail, error) {
	params := url.Values{}
	params.Set("fieldgroups", "PRODUCT,ADDITIONAL_SELLER_DETAILS")

	data, err := c.get(ctx, browseItemPath+url.PathEscape(itemID), params)
	var reqErr *RequestError
	if err != nil && errors.As(err, &reqErr) {
		switch reqErr.Status {
		case http.StatusBadRequest:
			// Some listings reject the fieldgroups combination.
			data, err = c.get(ctx, browseItemPath+url.PathEscape(itemID), url.Values{})
		case http.StatusNotFound:
			return &ItemDetail{ItemID: itemID, QtyFlag: "NOT_FOUND"}, nil
		case http.StatusTooManyRequests:
			return &ItemDetail{ItemID: itemID, QtyFlag: "RATE_LIMIT"}, nil
		}
	}
	if err != nil {
		return nil, err
	}

	detail := &ItemDetail{
		ItemID:  getString(data, "itemId"),
		QtyFlag: "EXACT",
		Brand:   getString(data, "brand"),
		MPN:     getString(data, "mpn"),
	}
	if id, ok := getInt(data, "categoryId"); ok {
		detail.CategoryID = &id
	} else if s := getString(data, "categoryId"); s != "" {
		if id, err := strconv.Atoi(s); err == nil {
			detail.CategoryID = &id
		}
	}

	if qty, ok := estimatedQty(data); ok {
		detail.AvailableQty = &qty
	}

	if product := asMap(data["product"]); product != nil {
		if gtins := asSlice(product["gtin"]); len(gtins) > 0 {
			detail.Identifier, _ = gtins[0].(string)
		}
		aspects := asMap(product["aspects"])
		if detail.Brand == "" {
			detail.Brand = firstAspect(aspects, "Brand")
		}
		if detail.MPN == "" {
			detail.MPN = firstAspect(aspects, "MPN", "Manufacturer Part Number")
		}
	}

	return detail, nil
}

// get issues one authorized GET with retry on transient statuses.
func (c *Client) get(ctx context.Context, path string, params url.Values) (map[string]any, error) {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain app token: %w", err)
	}

	reqURL := c.cfg.baseURL() + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	backoff := searchBackoff
	var lastErr error

	for attempt := 0; attempt < searchRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.marketplaceID())
		req.Header.Set("X-EBAY-C-ENDUSERCTX",
			"contextualLocation=country=US,zip=00000;siteid="+c.cfg.siteID())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			c.metrics.RecordAPIRetry(platformLabel)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("failed to read response: %w", readErr)
			c.sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = &RequestError{Status: resp.StatusCode, Body: truncate(string(body), 500)}
			if transientStatus(resp.StatusCode) && attempt+1 < searchRetries {
				c.metrics.RecordAPIRetry(platformLabel)
				c.sleep(backoff)
				backoff *= 2
				continue
			}
			c.metrics.RecordAPIRequest(platformLabel, "error")
			return nil, lastErr
		}

		var data map[string]any
		if err := json.Unmarshal(body, &data); err != nil {
			c.metrics.RecordAPIRequest(platformLabel, "error")
			return nil, fmt.Errorf("response is not JSON: %w", err)
		}
		c.metrics.RecordAPIRequest(platformLabel, "success")
		return data, nil
	}

	c.metrics.RecordAPIRequest(platformLabel, "error")
	return nil, lastErr
}

// buildFilter renders the Browse API filter parameter, e.g.
// "price:[15..80],conditions:{NEW}".
func (c *Client) buildFilter() string {
	var parts []string

	switch {
	case c.cfg.PriceMin != nil && c.cfg.PriceMax != nil:
		parts = append(parts, fmt.Sprintf("price:[%v..%v]", *c.cfg.PriceMin, *c.cfg.PriceMax))
	case c.cfg.PriceMin != nil:
		parts = append(parts, fmt.Sprintf("price:[%v..]", *c.cfg.PriceMin))
	case c.cfg.PriceMax != nil:
		parts = append(parts, fmt.Sprintf("price:[..%v]", *c.cfg.PriceMax))
	}

	if c.cfg.Condition != "" {
		parts = append(parts, fmt.Sprintf("conditions:{%s}", c.cfg.Condition))
	}

	return strings.Join(parts, ",")
}

// flattenSummary normalizes one itemSummary into a Listing.
func flattenSummary(summary map[string]any) domain.Listing {
	listing := domain.Listing{
		ID:         getString(summary, "itemId"),
		Title:      getString(summary, "title"),
		Condition:  getString(summary, "condition"),
		URL:        getString(summary, "itemWebUrl"),
		Brand:      getString(summary, "brand"),
		Identifier: getString(summary, "gtin"),
	}

	price := asMap(summary["price"])
	listing.Currency = getString(price, "currency")
	if listing.Currency == "" {
		listing.Currency = "USD"
	}
	if v, ok := parsePrice(price, "value"); ok {
		listing.Price = &v
	}

	if options := asSlice(summary["shippingOptions"]); len(options) > 0 {
		cost := asMap(asMap(options[0])["shippingCost"])
		if v, ok := parsePrice(cost, "value"); ok {
			listing.Shipping = &v
		}
	}

	seller := asMap(summary["seller"])
	listing.Seller = getString(seller, "username")

	if s := getString(summary, "categoryId"); s != "" {
		if id, err := strconv.Atoi(s); err == nil {
			listing.CategoryID = &id
		}
	}

	if qty, ok := estimatedQty(summary); ok {
		listing.AvailableQty = &qty
	}

	return listing
}

func estimatedQty(data map[string]any) (int, bool) {
	est := asSlice(data["estimatedAvailabilities"])
	if len(est) == 0 {
		return 0, false
	}
	return getInt(asMap(est[0]), "estimatedAvailableQuantity")
}

func firstAspect(aspects map[string]any, names ...string) string {
	for _, name := range names {
		values := asSlice(aspects[name])
		if len(values) > 0 {
			if s, ok := values[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// parsePrice reads a price that may arrive as a JSON string or number.
func parsePrice(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getInt(m map[string]any, key string) (int, bool) {
	if m == nil {
		return 0, false
	}
	if f, ok := m[key].(float64); ok {
		return int(f), true
	}
	return 0, false
}
