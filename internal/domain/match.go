package domain

import "time"

// MatchBasis identifies how a cross-marketplace match was found.
type MatchBasis string

const (
	MatchBasisIdentifier MatchBasis = "identifier"
	MatchBasisTitle      MatchBasis = "title"
)

// Listing is one flattened search result from the Platform-B Browse API.
type Listing struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Price        *float64 `json:"price"`
	Shipping     *float64 `json:"shipping"`
	Currency     string   `json:"currency"`
	Condition    string   `json:"condition"`
	Seller       string   `json:"seller"`
	CategoryID   *int     `json:"category_id"`
	URL          string   `json:"url"`
	Brand        string   `json:"brand"`
	Identifier   string   `json:"identifier"`
	AvailableQty *int     `json:"available_qty"`
}

// TotalPrice returns price plus shipping, or nil when the price is unknown.
func (l *Listing) TotalPrice() *float64 {
	if l.Price == nil {
		return nil
	}
	total := *l.Price
	if l.Shipping != nil {
		total += *l.Shipping
	}
	return &total
}

// MatchResult pairs one Platform-A item with the best-scoring Platform-B
// listing. Accepted=false is a valid "no match found" outcome, distinct
// from an API failure.
type MatchResult struct {
	Item       DiscoveredItem `json:"item"`
	Listing    *Listing       `json:"listing,omitempty"`
	Similarity float64        `json:"similarity"`
	Basis      MatchBasis     `json:"basis,omitempty"`
	Accepted   bool           `json:"accepted"`
	Spread     *float64       `json:"spread,omitempty"`
	SpreadPct  *float64       `json:"spread_pct,omitempty"`
	MatchedAt  time.Time      `json:"matched_at"`
}
