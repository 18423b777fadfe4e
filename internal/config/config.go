// Package config loads and validates application configuration from
// config files, environment variables and defaults via viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/arbminer/arbminer/internal/logger"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// PlatformAConfig configures the SP-API-style client: OAuth refresh
// credentials plus the signing key pair.
type PlatformAConfig struct {
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RefreshToken   string        `mapstructure:"refresh_token"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	Region         string        `mapstructure:"region"`
	MarketplaceID  string        `mapstructure:"marketplace_id"`
	TokenURL       string        `mapstructure:"token_url"`
	Endpoint       string        `mapstructure:"endpoint"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	PricingMinGap  time.Duration `mapstructure:"pricing_min_gap"`
}

// PlatformBConfig configures the Browse-API-style client.
type PlatformBConfig struct {
	ClientID      string        `mapstructure:"client_id"`
	ClientSecret  string        `mapstructure:"client_secret"`
	BaseURL       string        `mapstructure:"base_url"`
	MarketplaceID string        `mapstructure:"marketplace_id"`
	SiteID        string        `mapstructure:"site_id"`
	Currency      string        `mapstructure:"currency"`
	SearchLimit   int           `mapstructure:"search_limit"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// CrawlerConfig controls the batch crawler rotation.
type CrawlerConfig struct {
	TaskFile         string        `mapstructure:"task_file"`
	StateFile        string        `mapstructure:"state_file"`
	MaxTasksPerRun   int           `mapstructure:"max_tasks_per_run"`
	MaxItemsPerTask  int           `mapstructure:"max_items_per_task"`
	MaxPagesPerTask  int           `mapstructure:"max_pages_per_task"`
	SleepBetweenTask time.Duration `mapstructure:"sleep_between_tasks"`
}

// DiscoveryConfig holds the filters applied while mining catalog items.
type DiscoveryConfig struct {
	PriceMin        *float64 `mapstructure:"price_min"`
	PriceMax        *float64 `mapstructure:"price_max"`
	OfferType       string   `mapstructure:"offer_type"`
	MinMonthlySales int      `mapstructure:"min_monthly_sales"`
	PageSize        int      `mapstructure:"page_size"`
}

// MatchingConfig holds cross-marketplace matching thresholds and filters.
type MatchingConfig struct {
	MinScoreIdentifier float64  `mapstructure:"min_score_identifier"`
	MinScoreWithBrand  float64  `mapstructure:"min_score_with_brand"`
	MinScoreNoBrand    float64  `mapstructure:"min_score_no_brand"`
	PriceMin           *float64 `mapstructure:"price_min"`
	PriceMax           *float64 `mapstructure:"price_max"`
	OfferType          string   `mapstructure:"offer_type"`
	Condition          string   `mapstructure:"condition"`
	CacheSize          int      `mapstructure:"cache_size"`
}

// DatabaseConfig holds Postgres connection settings. The database is an
// optional sink: when disabled, results are only rendered and logged.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig holds the optional cache backend settings.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Config is the root configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    logger.Config   `mapstructure:"logger"`
	PlatformA PlatformAConfig `mapstructure:"platform_a"`
	PlatformB PlatformBConfig `mapstructure:"platform_b"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
}

// Load unmarshals the already-initialized viper state into a Config.
func Load() (*Config, error) {
	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := viper.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration coherence. Platform credentials are
// validated lazily by the commands that need them, so that read-only
// commands (state, serve) work without API keys.
func (c *Config) Validate() error {
	if c.Crawler.MaxTasksPerRun < 0 {
		return errors.New("crawler.max_tasks_per_run must be non-negative")
	}
	if c.Crawler.MaxItemsPerTask <= 0 {
		return errors.New("crawler.max_items_per_task must be positive")
	}
	if c.Discovery.PageSize <= 0 || c.Discovery.PageSize > 20 {
		return errors.New("discovery.page_size must be between 1 and 20")
	}
	if !validOfferType(c.Discovery.OfferType) {
		return fmt.Errorf("discovery.offer_type %q is not one of any, prime, merchant", c.Discovery.OfferType)
	}
	if !validOfferType(c.Matching.OfferType) {
		return fmt.Errorf("matching.offer_type %q is not one of any, prime, merchant", c.Matching.OfferType)
	}
	if c.Matching.MinScoreIdentifier <= 0 || c.Matching.MinScoreIdentifier > 100 {
		return errors.New("matching.min_score_identifier must be in (0, 100]")
	}
	return nil
}

// ValidatePlatformA ensures the SP-API credentials are present.
func (c *Config) ValidatePlatformA() error {
	missing := []string{}
	required := map[string]string{
		"platform_a.client_id":     c.PlatformA.ClientID,
		"platform_a.client_secret": c.PlatformA.ClientSecret,
		"platform_a.refresh_token": c.PlatformA.RefreshToken,
		"platform_a.access_key":    c.PlatformA.AccessKey,
		"platform_a.secret_key":    c.PlatformA.SecretKey,
	}
	for name, v := range required {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing Platform-A credentials: %v", missing)
	}
	return nil
}

// ValidatePlatformB ensures the Browse-API credentials are present.
func (c *Config) ValidatePlatformB() error {
	if c.PlatformB.ClientID == "" || c.PlatformB.ClientSecret == "" {
		return errors.New("missing Platform-B credentials: platform_b.client_id / platform_b.client_secret")
	}
	return nil
}

func validOfferType(t string) bool {
	switch t {
	case "any", "prime", "merchant":
		return true
	}
	return false
}
