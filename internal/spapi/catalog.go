package spapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/matching"
)

const (
	catalogItemsPath = "/catalog/2022-04-01/items"
	maxKeywordLen    = 200
	maxCatalogPage   = 20
)

// SearchFilters narrows a catalog search session. Two searches with
// the same keyword but different filters use separate page caches.
type SearchFilters struct {
	IncludedData string
	BrowseNodeID *int
}

func (f SearchFilters) includedData() string {
	if f.IncludedData != "" {
		return f.IncludedData
	}
	return includedDataDefault
}

type sessionKey struct {
	keyword      string
	pageSize     int
	includedData string
	browseNode   int
	hasBrowse    bool
	marketplace  string
}

// pageSession caches fetched pages of one search. tokens[n] holds the
// continuation token used to fetch page n; page 1 always uses "".
// tokens[n+1] is only populated after page n was fetched, preserving
// the continuation chain.
type pageSession struct {
	items     map[int][]domain.CatalogItem
	tokens    map[int]string
	exhausted bool
}

// Pager serves catalog search results by integer page index on top of
// the API's forward-only continuation tokens. To serve page k it
// replays forward from the highest cached page at or below k, caching
// every intermediate page, so iterating pages 1..N costs one HTTP call
// per page.
type Pager struct {
	client *Client
	log    logger.Interface

	mu       sync.Mutex
	sessions map[sessionKey]*pageSession
}

// NewPager creates a Pager on top of a Client.
func NewPager(client *Client, log logger.Interface) *Pager {
	return &Pager{
		client:   client,
		log:      log.WithComponent("catalog"),
		sessions: make(map[sessionKey]*pageSession),
	}
}

// Reset discards all cached search sessions.
func (p *Pager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = make(map[sessionKey]*pageSession)
}

// FetchPage returns page `page` (1-based) of the catalog search for
// the given keyword and filters. Pages past the end of the result set
// return an empty slice, not an error.
func (p *Pager) FetchPage(ctx context.Context, keyword string, filters SearchFilters, pageSize, page int) ([]domain.CatalogItem, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	if len(keyword) > maxKeywordLen {
		keyword = keyword[:maxKeywordLen]
	}
	pageSize = clampPageSize(pageSize)
	if page < 1 {
		page = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := sessionKey{
		keyword:      keyword,
		pageSize:     pageSize,
		includedData: filters.includedData(),
		marketplace:  p.client.MarketplaceID(),
	}
	if filters.BrowseNodeID != nil {
		key.browseNode = *filters.BrowseNodeID
		key.hasBrowse = true
	}

	session, ok := p.sessions[key]
	if !ok {
		session = &pageSession{
			items:  make(map[int][]domain.CatalogItem),
			tokens: map[int]string{1: ""},
		}
		p.sessions[key] = session
	}

	if items, ok := session.items[page]; ok {
		return items, nil
	}
	if session.exhausted {
		return nil, nil
	}

	// Replay forward from the highest cached page at or below the
	// requested one.
	startPage := 1
	for known := range session.tokens {
		if known <= page && known > startPage {
			startPage = known
		}
	}
	token := session.tokens[startPage]

	for current := startPage; current <= page; current++ {
		if _, ok := session.items[current]; ok {
			if next, ok := session.tokens[current+1]; ok {
				token = next
			}
			continue
		}

		items, nextToken, err := p.searchPage(ctx, keyword, filters, pageSize, token)
		if err != nil {
			return nil, err
		}

		session.items[current] = items
		if nextToken != "" {
			session.tokens[current+1] = nextToken
		} else {
			session.exhausted = true
		}

		if current == page {
			return items, nil
		}
		if nextToken == "" {
			return nil, nil
		}
		token = nextToken
	}

	return nil, nil
}

// searchPage fetches one raw page. When a browse-node filter is
// rejected by the API, the request is retried once without it.
func (p *Pager) searchPage(ctx context.Context, keyword string, filters SearchFilters, pageSize int, pageToken string) ([]domain.CatalogItem, string, error) {
	params := map[string]string{
		"marketplaceIds": p.client.MarketplaceID(),
		"keywords":       keyword,
		"includedData":   filters.includedData(),
		"pageSize":       strconv.Itoa(pageSize),
	}
	if pageToken != "" {
		params["pageToken"] = pageToken
	}
	if filters.BrowseNodeID != nil {
		params["classificationIds"] = strconv.Itoa(*filters.BrowseNodeID)
	}

	data, err := p.client.Execute(ctx, "GET", catalogItemsPath, params, nil)
	if err != nil {
		if filters.BrowseNodeID != nil && isClassificationRejected(err) {
			p.log.Debug("classification filter rejected, retrying without it", "keyword", keyword)
			delete(params, "classificationIds")
			data, err = p.client.Execute(ctx, "GET", catalogItemsPath, params, nil)
		}
		if err != nil {
			return nil, "", err
		}
	}

	rawItems := asSlice(data["items"])
	items := make([]domain.CatalogItem, 0, len(rawItems))
	for _, raw := range rawItems {
		item := asMap(raw)
		if item == nil {
			continue
		}
		items = append(items, ExtractCatalogItem(item, p.client.MarketplaceID(), ""))
	}

	return items, extractNextToken(data), nil
}

// SearchByIdentifier looks up a catalog item by GTIN/UPC/EAN/ISBN.
// The identifier length picks the most likely identifier types to try
// first; a miss on one type falls through to the next. Returns nil
// when no type yields a hit.
func (p *Pager) SearchByIdentifier(ctx context.Context, identifier string) (*domain.CatalogItem, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, nil
	}

	var candidates []string
	switch len(identifier) {
	case 12:
		candidates = []string{"UPC", "GTIN"}
	case 13:
		candidates = []string{"EAN", "GTIN"}
	case 10:
		candidates = []string{"ISBN", "GTIN"}
	default:
		candidates = []string{"GTIN", "UPC", "EAN", "ISBN"}
	}

	for _, identType := range candidates {
		params := map[string]string{
			"marketplaceIds":  p.client.MarketplaceID(),
			"identifiers":     identifier,
			"identifiersType": identType,
			"includedData":    includedDataDefault,
		}

		data, err := p.client.Execute(ctx, "GET", catalogItemsPath, params, nil)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("identifier search failed for %s as %s: %w", identifier, identType, err)
		}

		rawItems := asSlice(data["items"])
		if len(rawItems) == 0 {
			continue
		}
		item := ExtractCatalogItem(asMap(rawItems[0]), p.client.MarketplaceID(), identifier)
		return &item, nil
	}

	return nil, nil
}

// SearchByTitle searches the catalog by keywords and returns the best
// match. When originalTitle is given, candidates are ranked by title
// similarity against it; otherwise the first result wins.
func (p *Pager) SearchByTitle(ctx context.Context, title, originalTitle string, pageSize int) (*domain.CatalogItem, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	if len(title) > maxKeywordLen {
		title = title[:maxKeywordLen]
	}
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > 10 {
		pageSize = 10
	}

	params := map[string]string{
		"marketplaceIds": p.client.MarketplaceID(),
		"keywords":       title,
		"includedData":   includedDataDefault,
		"pageSize":       strconv.Itoa(pageSize),
	}

	data, err := p.client.Execute(ctx, "GET", catalogItemsPath, params, nil)
	if err != nil {
		return nil, err
	}

	rawItems := asSlice(data["items"])
	if len(rawItems) == 0 {
		return nil, nil
	}

	best := asMap(rawItems[0])
	if originalTitle != "" {
		bestScore := -1.0
		for _, raw := range rawItems {
			candidate := asMap(raw)
			if candidate == nil {
				continue
			}
			summaries := asSlice(candidate["summaries"])
			candTitle := ""
			if len(summaries) > 0 {
				candTitle = getString(asMap(summaries[0]), "itemName")
			}
			score := matching.TitleSimilarity(originalTitle, candTitle)
			if score > bestScore {
				bestScore = score
				best = candidate
			}
		}
	}

	item := ExtractCatalogItem(best, p.client.MarketplaceID(), "")
	return &item, nil
}

// GetItem fetches the raw catalog record for one item ID.
func (p *Pager) GetItem(ctx context.Context, itemID string) (map[string]any, error) {
	params := map[string]string{
		"marketplaceIds": p.client.MarketplaceID(),
		"includedData":   includedDataDefault,
	}
	return p.client.Execute(ctx, "GET", catalogItemsPath+"/"+itemID, params, nil)
}

// ExtractCatalogItem normalizes one raw catalog record into a
// CatalogItem. Summaries and identifier blocks are matched against
// the marketplace first, falling back to the first block present.
func ExtractCatalogItem(item map[string]any, marketplaceID, fallbackIdentifier string) domain.CatalogItem {
	out := domain.CatalogItem{
		ID:            getString(item, "asin"),
		MarketplaceID: marketplaceID,
	}

	summaries := asSlice(item["summaries"])
	summary := pickMarketplaceBlock(summaries, marketplaceID)
	if summary != nil {
		out.Title = getString(summary, "itemName")
		out.Brand = getString(summary, "brand")
		if bc := asMap(summary["browseClassification"]); bc != nil {
			out.BrowseNodeID = getString(bc, "classificationId")
			out.BrowseNodeName = getString(bc, "displayName")
		}
	}

	identifier, identType := pickIdentifier(asSlice(item["identifiers"]), marketplaceID)
	if identifier == "" {
		identifier = fallbackIdentifier
	}
	out.Identifier = identifier
	out.IdentifierType = identType

	if rank, category, ok := bestSalesRank(asSlice(item["salesRanks"]), marketplaceID); ok {
		out.SalesRank = &rank
		out.SalesRankCategory = &category
	}

	return out
}

func pickMarketplaceBlock(blocks []any, marketplaceID string) map[string]any {
	var first map[string]any
	for _, raw := range blocks {
		block := asMap(raw)
		if block == nil {
			continue
		}
		if first == nil {
			first = block
		}
		if getString(block, "marketplaceId") == marketplaceID {
			return block
		}
	}
	return first
}

// pickIdentifier chooses the best available identifier for the
// marketplace, preferring GTIN, then EAN, UPC and ISBN.
func pickIdentifier(blocks []any, marketplaceID string) (string, string) {
	chosen := pickMarketplaceBlock(blocks, marketplaceID)
	if chosen == nil {
		return "", ""
	}

	ids := asSlice(chosen["identifiers"])
	preferred := []string{"GTIN", "EAN", "UPC", "ISBN"}
	for _, pref := range preferred {
		for _, raw := range ids {
			entry := asMap(raw)
			if getString(entry, "identifierType") == pref && getString(entry, "identifier") != "" {
				return getString(entry, "identifier"), pref
			}
		}
	}
	if len(ids) > 0 {
		entry := asMap(ids[0])
		return getString(entry, "identifier"), getString(entry, "identifierType")
	}
	return "", ""
}

// bestSalesRank returns the lowest (best) classification rank for the
// marketplace.
func bestSalesRank(blocks []any, marketplaceID string) (int, string, bool) {
	bestRank := 0
	bestCategory := ""
	found := false

	for _, raw := range blocks {
		block := asMap(raw)
		if block == nil || getString(block, "marketplaceId") != marketplaceID {
			continue
		}
		for _, rawRank := range asSlice(block["classificationRanks"]) {
			entry := asMap(rawRank)
			rank, ok := getInt(entry, "rank")
			if !ok {
				continue
			}
			category := getString(entry, "title")
			if category == "" {
				category = getString(block, "displayGroup")
			}
			if !found || rank < bestRank {
				bestRank = rank
				bestCategory = category
				found = true
			}
		}
	}

	return bestRank, bestCategory, found
}

// extractNextToken pulls the continuation token out of a search
// response. The field location varies across API versions, so a few
// known paths are checked.
func extractNextToken(data map[string]any) string {
	pagination := asMap(data["pagination"])
	if pagination == nil {
		pagination = asMap(data["Pagination"])
	}
	for _, key := range []string{"nextToken", "NextToken", "nextPageToken"} {
		if token := getString(pagination, key); token != "" {
			return token
		}
	}
	for _, key := range []string{"nextToken", "NextToken", "nextPageToken"} {
		if token := getString(data, key); token != "" {
			return token
		}
	}
	return ""
}

func isClassificationRejected(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "classification") || strings.Contains(msg, "invalidinput")
}

func clampPageSize(pageSize int) int {
	if pageSize < 1 {
		return 1
	}
	if pageSize > maxCatalogPage {
		return maxCatalogPage
	}
	return pageSize
}
