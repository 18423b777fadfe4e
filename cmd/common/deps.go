// Package common wires the shared dependencies used by the CLI
// commands: configuration, logging, metrics, the cache backend, the
// optional database and the platform clients.
package common

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/arbminer/arbminer/internal/cache"
	"github.com/arbminer/arbminer/internal/config"
	"github.com/arbminer/arbminer/internal/crawler"
	"github.com/arbminer/arbminer/internal/database"
	"github.com/arbminer/arbminer/internal/discovery"
	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/ebay"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/matching"
	"github.com/arbminer/arbminer/internal/metrics"
	"github.com/arbminer/arbminer/internal/spapi"
	"github.com/arbminer/arbminer/internal/tasks"
)

// Deps bundles the application dependencies one command needs.
type Deps struct {
	Cfg     *config.Config
	Log     logger.Interface
	Metrics *metrics.Metrics
	Cache   cache.Store

	db *sqlx.DB
}

// Build loads configuration and constructs the shared dependencies.
// The database connection is only opened when enabled in config.
func Build(ctx context.Context) (*Deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logger)
	d := &Deps{
		Cfg:     cfg,
		Log:     log,
		Metrics: metrics.New(),
		Cache:   cache.NewNoop(),
	}

	if cfg.Redis.Enabled {
		store := cache.NewRedisStore(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err := store.Ping(ctx); err != nil {
			log.Warn("redis unreachable, caching degraded to misses", "error", err)
		}
		d.Cache = store
	}

	if cfg.Database.Enabled {
		db, err := database.Connect(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		d.db = db
	}

	return d, nil
}

// Close releases held connections.
func (d *Deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if closer, ok := d.Cache.(interface{ Close() error }); ok {
		closer.Close()
	}
}

// HasDatabase reports whether a database sink is available.
func (d *Deps) HasDatabase() bool {
	return d.db != nil
}

// StateStore returns the persisted rotation cursor store.
func (d *Deps) StateStore() *crawler.StateStore {
	return crawler.NewStateStore(d.Cfg.Crawler.StateFile)
}

// Tasks loads and flattens the category tree.
func (d *Deps) Tasks() ([]domain.Task, error) {
	taskList, err := tasks.Load(d.Cfg.Crawler.TaskFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks from %s: %w", d.Cfg.Crawler.TaskFile, err)
	}
	return taskList, nil
}

// spapiConfig maps the platform-A section onto the client config.
func (d *Deps) spapiConfig() spapi.Config {
	a := d.Cfg.PlatformA
	return spapi.Config{
		ClientID:       a.ClientID,
		ClientSecret:   a.ClientSecret,
		RefreshToken:   a.RefreshToken,
		AccessKey:      a.AccessKey,
		SecretKey:      a.SecretKey,
		Region:         a.Region,
		MarketplaceID:  a.MarketplaceID,
		TokenURL:       a.TokenURL,
		Endpoint:       a.Endpoint,
		ConnectTimeout: a.ConnectTimeout,
		ReadTimeout:    a.ReadTimeout,
		MaxRetries:     a.MaxRetries,
		PricingMinGap:  a.PricingMinGap,
	}
}

// Discoverer builds the per-task discovery pipeline on the platform-A
// client.
func (d *Deps) Discoverer() (*discovery.Discoverer, error) {
	if err := d.Cfg.ValidatePlatformA(); err != nil {
		return nil, err
	}

	client := spapi.NewClient(d.spapiConfig(), d.Log, d.Metrics)
	pager := spapi.NewPager(client, d.Log)
	quoter := spapi.NewQuoter(client, d.Log, d.Metrics)

	cfg := discovery.Config{
		PriceMin:        d.Cfg.Discovery.PriceMin,
		PriceMax:        d.Cfg.Discovery.PriceMax,
		OfferType:       d.Cfg.Discovery.OfferType,
		MinMonthlySales: d.Cfg.Discovery.MinMonthlySales,
		PageSize:        d.Cfg.Discovery.PageSize,
	}
	return discovery.New(pager, quoter, cfg, d.Log, d.Metrics), nil
}

// MatchEngine builds the cross-marketplace matching engine on the
// platform-B client.
func (d *Deps) MatchEngine() (*matching.Engine, error) {
	if err := d.Cfg.ValidatePlatformB(); err != nil {
		return nil, err
	}

	b := d.Cfg.PlatformB
	m := d.Cfg.Matching
	client := ebay.NewClient(ebay.Config{
		ClientID:      b.ClientID,
		ClientSecret:  b.ClientSecret,
		BaseURL:       b.BaseURL,
		MarketplaceID: b.MarketplaceID,
		SiteID:        b.SiteID,
		PriceMin:      m.PriceMin,
		PriceMax:      m.PriceMax,
		Condition:     m.Condition,
		Timeout:       b.Timeout,
	}, d.Cache, d.Log, d.Metrics)

	engineCfg := matching.Config{
		MinScoreIdentifier: m.MinScoreIdentifier,
		MinScoreWithBrand:  m.MinScoreWithBrand,
		MinScoreNoBrand:    m.MinScoreNoBrand,
		PriceMin:           m.PriceMin,
		PriceMax:           m.PriceMax,
		OfferType:          m.OfferType,
		Condition:          m.Condition,
		SearchLimit:        b.SearchLimit,
	}
	return matching.NewEngine(client, matching.NewMatchCache(m.CacheSize), engineCfg, d.Log, d.Metrics), nil
}

// ProductSink returns the database-backed sink, or nil when storage
// is disabled.
func (d *Deps) ProductSink() crawler.Sink {
	if d.db == nil {
		return nil
	}
	return database.NewProductRepository(d.db, d.Log)
}

// ProductRepository returns the product repository, or nil.
func (d *Deps) ProductRepository() *database.ProductRepository {
	if d.db == nil {
		return nil
	}
	return database.NewProductRepository(d.db, d.Log)
}

// RunRepository returns the run repository, or nil.
func (d *Deps) RunRepository() *database.RunRepository {
	if d.db == nil {
		return nil
	}
	return database.NewRunRepository(d.db, d.Log)
}

// MatchRepository returns the match repository, or nil.
func (d *Deps) MatchRepository() *database.MatchRepository {
	if d.db == nil {
		return nil
	}
	return database.NewMatchRepository(d.db, d.Log)
}

// Machine builds the batch crawler over the configured task file.
func (d *Deps) Machine() (*crawler.Machine, error) {
	taskList, err := d.Tasks()
	if err != nil {
		return nil, err
	}
	disc, err := d.Discoverer()
	if err != nil {
		return nil, err
	}
	return crawler.New(taskList, d.StateStore(), disc, d.ProductSink(), d.Log, d.Metrics), nil
}

// RecordRun persists a finished crawl report when storage is enabled.
func (d *Deps) RecordRun(ctx context.Context, report *crawler.Report, opts crawler.Options) {
	repo := d.RunRepository()
	if repo == nil {
		return
	}

	endedAt := report.EndedAt
	run := domain.CrawlerRun{
		MarketplaceID:       d.Cfg.PlatformA.MarketplaceID,
		StartedAt:           report.StartedAt,
		EndedAt:             &endedAt,
		Status:              "finished",
		MaxTasks:            opts.MaxTasks,
		MaxItems:            opts.MaxItems,
		TasksTotal:          report.State.TotalTasks,
		TasksRun:            report.TasksRun,
		LastTaskIndexBefore: report.StateBefore.LastTaskIndex,
		Stats:               report.Stats,
	}
	if report.StopReason != "" {
		reason := report.StopReason
		run.StopReason = &reason
	}
	if len(opts.RootFilter) > 0 {
		filter := fmt.Sprintf("%v", opts.RootFilter)
		run.RootFilter = &filter
	}
	after := report.State.LastTaskIndex
	run.LastTaskIndexAfter = &after

	if _, err := repo.Save(ctx, run); err != nil {
		d.Log.Warn("failed to record run", "error", err)
	}
}
