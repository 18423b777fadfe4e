// Package api exposes a thin read-only HTTP surface over the miner's
// state and stored results, plus the Prometheus metrics endpoint.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arbminer/arbminer/internal/config"
	"github.com/arbminer/arbminer/internal/crawler"
	"github.com/arbminer/arbminer/internal/database"
	"github.com/arbminer/arbminer/internal/domain"
	"github.com/arbminer/arbminer/internal/logger"
	"github.com/arbminer/arbminer/internal/metrics"
)

const defaultListLimit = 50

// Server serves the read API. The repositories are optional: without a
// database the corresponding endpoints answer 503.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	log        logger.Interface

	states   *crawler.StateStore
	products *database.ProductRepository
	runs     *database.RunRepository
	matches  *database.MatchRepository
}

// Deps carries the optional data sources the API reads from.
type Deps struct {
	States   *crawler.StateStore
	Products *database.ProductRepository
	Runs     *database.RunRepository
	Matches  *database.MatchRepository
	Metrics  *metrics.Metrics
}

// NewServer builds the router and HTTP server.
func NewServer(cfg config.ServerConfig, deps Deps, log logger.Interface) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine:   engine,
		log:      log.WithComponent("api"),
		states:   deps.States,
		products: deps.Products,
		runs:     deps.Runs,
		matches:  deps.Matches,
	}

	engine.Use(gin.Recovery())
	engine.Use(s.requestLogger())

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		deps.Metrics.Registry(), promhttp.HandlerOpts{})))

	v1 := engine.Group("/api/v1")
	{
		v1.GET("/state", s.handleState)
		v1.GET("/products", s.handleProducts)
		v1.GET("/products/:id", s.handleProduct)
		v1.GET("/runs", s.handleRuns)
		v1.GET("/matches", s.handleMatches)
	}

	address := cfg.Address
	if address == "" {
		address = ":8080"
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      engine,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Engine returns the router, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api server listening", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("api server stopped")
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	if s.states == nil {
		noDatabase(c)
		return
	}
	state, err := s.states.Load()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (s *Server) handleProducts(c *gin.Context) {
	if s.products == nil {
		noDatabase(c)
		return
	}
	items, err := s.products.List(c.Request.Context(), queryInt(c, "limit", defaultListLimit), queryInt(c, "offset", 0))
	if err != nil {
		s.fail(c, err)
		return
	}
	if items == nil {
		items = []domain.DiscoveredItem{}
	}
	c.JSON(http.StatusOK, gin.H{"products": items, "count": len(items)})
}

func (s *Server) handleProduct(c *gin.Context) {
	if s.products == nil {
		noDatabase(c)
		return
	}
	item, err := s.products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) handleRuns(c *gin.Context) {
	if s.runs == nil {
		noDatabase(c)
		return
	}
	runs, err := s.runs.List(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		s.fail(c, err)
		return
	}
	if runs == nil {
		runs = []domain.CrawlerRun{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) handleMatches(c *gin.Context) {
	if s.matches == nil {
		noDatabase(c)
		return
	}
	records, err := s.matches.ListAccepted(c.Request.Context(), queryInt(c, "limit", defaultListLimit))
	if err != nil {
		s.fail(c, err)
		return
	}
	if records == nil {
		records = []database.MatchRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"matches": records, "count": len(records)})
}

func (s *Server) fail(c *gin.Context, err error) {
	s.log.Error("request failed", "path", c.Request.URL.Path, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func noDatabase(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
