// Package spapi implements the Platform-A client: LWA-style token
// refresh, SigV4 request signing, bounded retry with quota awareness,
// token-paginated catalog search and best-offer price quotes.
package spapi

import (
	"fmt"
	"time"
)

const (
	defaultTokenURL      = "https://api.amazon.com/auth/o2/token"
	defaultMarketplaceID = "ATVPDKIKX0DER"
	defaultMaxRetries    = 5
	defaultPricingMinGap = 2200 * time.Millisecond
	signingService       = "execute-api"
	userAgent            = "arbminer/1.0"
	includedDataDefault  = "summaries,identifiers,salesRanks"
)

// Config holds the credentials and tuning knobs for the Platform-A
// client.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	AccessKey string
	SecretKey string

	// Region is the logical region ("na", "eu", "fe").
	Region        string
	MarketplaceID string

	// TokenURL and Endpoint override the defaults, mainly for tests.
	TokenURL string
	Endpoint string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     int
	PricingMinGap  time.Duration
}

// Host returns the API host for the logical region.
func (c Config) Host() string {
	if c.Endpoint != "" {
		return c.Endpoint
	}
	region := c.Region
	if region == "" {
		region = "na"
	}
	return fmt.Sprintf("sellingpartnerapi-%s.amazon.com", region)
}

// SigningRegion maps the logical region to the region name used in
// the request signature.
func (c Config) SigningRegion() string {
	switch c.Region {
	case "eu":
		return "eu-west-1"
	case "fe":
		return "us-west-2"
	default:
		return "us-east-1"
	}
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return defaultTokenURL
}

func (c Config) marketplaceID() string {
	if c.MarketplaceID != "" {
		return c.MarketplaceID
	}
	return defaultMarketplaceID
}

func (c Config) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return defaultMaxRetries
}

func (c Config) pricingMinGap() time.Duration {
	if c.PricingMinGap > 0 {
		return c.PricingMinGap
	}
	return defaultPricingMinGap
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout > 0 {
		return c.ConnectTimeout
	}
	return 5 * time.Second
}

func (c Config) readTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return 30 * time.Second
}
