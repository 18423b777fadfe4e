// Package domain provides domain models used across the application.
package domain

import (
	"time"
)

// Identifier is a standardized product identifier (GTIN/UPC/EAN/ISBN).
type Identifier struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// CatalogItem is one normalized record from the Platform-A catalog API.
// It is never mutated after construction.
type CatalogItem struct {
	ID                string  `db:"id"                  json:"id"`
	MarketplaceID     string  `db:"marketplace_id"      json:"marketplace_id"`
	Title             string  `db:"title"               json:"title"`
	Brand             string  `db:"brand"               json:"brand"`
	BrowseNodeID      string  `db:"browse_node_id"      json:"browse_node_id"`
	BrowseNodeName    string  `db:"browse_node_name"    json:"browse_node_name"`
	Identifier        string  `db:"identifier"          json:"identifier"`
	IdentifierType    string  `db:"identifier_type"     json:"identifier_type"`
	SalesRank         *int    `db:"sales_rank"          json:"sales_rank"`
	SalesRankCategory *string `db:"sales_rank_category" json:"sales_rank_category"`
}

// PriceQuote is one best-offer price observation for a catalog item.
type PriceQuote struct {
	ItemID             string   `json:"item_id"`
	Price              *float64 `json:"price"`
	Currency           string   `json:"currency"`
	IsPrime            *bool    `json:"is_prime"`
	FulfillmentChannel string   `json:"fulfillment_channel"`
	Condition          string   `json:"condition"`
}

// DiscoveredItem is a catalog item enriched with its price quote, demand
// estimate and the task that surfaced it. At most one DiscoveredItem per
// item ID exists within a single discovery run (first seen wins).
type DiscoveredItem struct {
	CatalogItem
	Price                 *float64  `db:"price"                   json:"price"`
	Currency              string    `db:"currency"                json:"currency"`
	IsPrime               *bool     `db:"is_prime"                json:"is_prime"`
	FulfillmentChannel    string    `db:"fulfillment_channel"     json:"fulfillment_channel"`
	EstimatedMonthlySales *int      `db:"estimated_monthly_sales" json:"estimated_monthly_sales"`
	DemandBucket          *string   `db:"demand_bucket"           json:"demand_bucket"`
	SourceTask            Task      `db:"-"                       json:"source_task"`
	FetchedAt             time.Time `db:"fetched_at"              json:"fetched_at"`
}

// ProductURL returns the public product page for the item on Platform A.
func (d *DiscoveredItem) ProductURL() string {
	if d.ID == "" {
		return ""
	}
	return "https://www.amazon.com/dp/" + d.ID
}
