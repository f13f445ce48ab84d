// Package server wires the scoring engine into an HTTP API.
//
// One Agent per configured region, sharing the signal-source querier, the
// assessment cache and store, the baseline worker, and the realtime alert
// hub. Storage is PostgreSQL when DATABASE_URL is set and in-memory
// otherwise; the cache is Redis when REDIS_URL is set and in-memory
// otherwise.
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/vigialabs/vigia/internal/agent"
	"github.com/vigialabs/vigia/internal/assessments"
	"github.com/vigialabs/vigia/internal/baseline"
	"github.com/vigialabs/vigia/internal/cache"
	"github.com/vigialabs/vigia/internal/config"
	"github.com/vigialabs/vigia/internal/health"
	"github.com/vigialabs/vigia/internal/logging"
	"github.com/vigialabs/vigia/internal/metrics"
	"github.com/vigialabs/vigia/internal/ratelimit"
	"github.com/vigialabs/vigia/internal/realtime"
	"github.com/vigialabs/vigia/internal/region"
	"github.com/vigialabs/vigia/internal/risk"
	"github.com/vigialabs/vigia/internal/security"
	"github.com/vigialabs/vigia/internal/signalsource"
	"github.com/vigialabs/vigia/internal/traces"
	"github.com/vigialabs/vigia/internal/validation"
)

// Server is the HTTP front of the engine.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *gin.Engine
	httpSrv *http.Server

	db            *sql.DB
	redis         *cache.RedisStore
	cacheStore    cache.Store
	assessStore   assessments.Store
	baselineStore baseline.Store

	registry  *region.Registry
	sources   []signalsource.Source
	querier   *signalsource.Querier
	agents    map[string]*agent.Agent
	worker    *baseline.Worker
	hub       *realtime.Hub
	collector *metrics.Collector
	checks    *health.Registry

	rateLimiter    *ratelimit.Limiter
	tracesShutdown func(context.Context) error

	ready        atomic.Bool
	healthy      atomic.Bool
	cancelRunCtx context.CancelFunc
}

// Option configures optional server dependencies
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithSignalSources injects signal sources directly, bypassing the
// SIGNAL_SOURCES config. Used in tests and demo setups.
func WithSignalSources(sources ...signalsource.Source) Option {
	return func(s *Server) { s.sources = sources }
}

// New creates a server from config, opening storage and building one
// agent per configured region.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		agents: make(map[string]*agent.Agent),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		assessStore := assessments.NewPostgresStore(db)
		if err := assessStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate assessments: %w", err)
		}
		s.assessStore = assessStore

		baselineStore := baseline.NewPostgresStore(db)
		if err := baselineStore.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate baselines: %w", err)
		}
		s.baselineStore = baselineStore

		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.assessStore = assessments.NewMemoryStore()
		s.baselineStore = baseline.NewMemoryStore()
		s.logger.Info("using in-memory storage")
	}

	// Cache: Redis if REDIS_URL set, otherwise in-memory
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redis = redisStore
		s.cacheStore = redisStore
		s.logger.Info("using Redis assessment cache")

		s.checks.Register("cache", func(ctx context.Context) health.Status {
			if err := redisStore.Ping(ctx); err != nil {
				return health.Status{Name: "cache", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "cache", Healthy: true}
		})
	} else {
		s.cacheStore = cache.NewMemoryStore()
	}

	registry, err := s.buildRegistry()
	if err != nil {
		return nil, err
	}
	s.registry = registry

	if len(s.sources) == 0 {
		sources, err := parseSignalSources(cfg.SignalSources)
		if err != nil {
			return nil, err
		}
		s.sources = sources
	}
	s.querier = signalsource.NewQuerier(s.sources, s.logger).WithTimeout(cfg.SourceTimeout)

	s.hub = realtime.NewHub(s.logger)
	s.collector = metrics.NewCollector()
	s.worker = baseline.NewWorker(s.baselineStore, s.logger)

	for _, code := range registry.Regions() {
		profile := registry.Get(code)
		s.agents[code] = agent.New(profile, s.logger,
			agent.WithQuerier(s.querier),
			agent.WithCache(s.cacheStore, cfg.CacheTTL),
			agent.WithAssessmentStore(s.assessStore),
			agent.WithBaselines(s.worker),
			agent.WithCollector(s.collector),
			agent.WithAlertFunc(s.hub.BroadcastAssessment),
		)
	}
	s.logger.Info("agents initialized",
		"regions", registry.Regions(),
		"signal_sources", len(s.sources),
	)

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// buildRegistry assembles the region set: built-in profiles, then JSON
// overrides from PROFILE_DIR, then the REGIONS allowlist.
func (s *Server) buildRegistry() (*region.Registry, error) {
	profiles := region.Builtin()

	if s.cfg.ProfileDir != "" {
		overrides, err := region.LoadDir(s.cfg.ProfileDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load region profiles: %w", err)
		}
		if len(overrides) > 0 {
			s.logger.Info("loaded region profile overrides",
				"dir", s.cfg.ProfileDir, "count", len(overrides))
		}
		profiles = append(profiles, overrides...)
	}

	if s.cfg.Regions != "" {
		allowed := make(map[string]bool)
		for _, code := range strings.Split(s.cfg.Regions, ",") {
			allowed[validation.NormalizeRegion(code)] = true
		}
		kept := profiles[:0]
		for _, p := range profiles {
			if allowed[p.Region] {
				kept = append(kept, p)
			}
		}
		profiles = kept
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("no region profiles configured")
	}
	return region.NewRegistry(profiles...)
}

// parseSignalSources builds HTTP sources from "name=url" pairs. Endpoints
// are validated against private and loopback targets.
func parseSignalSources(spec string) ([]signalsource.Source, error) {
	if spec == "" {
		return nil, nil
	}
	var sources []signalsource.Source
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, endpoint, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid SIGNAL_SOURCES entry %q (want name=url)", pair)
		}
		src, err := signalsource.NewHTTPSource(name, endpoint, signalsource.StandardChecks)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limitCfg := ratelimit.DefaultConfig()
	limitCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limitCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.POST("/analyze", s.analyzeHandler)
	v1.GET("/assessments", s.listAssessmentsHandler)
	v1.GET("/assessments/:id", s.getAssessmentHandler)
	v1.GET("/regions", s.regionsHandler)
	v1.GET("/metrics/engine", s.engineMetricsHandler)

	// WebSocket alert stream
	v1.GET("/alerts/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})
	v1.GET("/alerts/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.hub.Stats())
	})
}

// analyzeRequest is the body of POST /v1/analyze.
type analyzeRequest struct {
	Region     string            `json:"region" binding:"required"`
	EntityID   string            `json:"entityId" binding:"required"`
	EntityType string            `json:"entityType"`
	Payload    *agent.Payload    `json:"payload"`
	Context    map[string]string `json:"context"`
	SkipCache  bool              `json:"skipCache"`
}

func (s *Server) analyzeHandler(c *gin.Context) {
	var body analyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	code := validation.NormalizeRegion(body.Region)
	if !validation.IsValidRegionCode(code) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_region",
			"message": "region must be an ISO 3166-1 alpha-2 code",
		})
		return
	}
	ag, ok := s.agents[code]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_region",
			"message": fmt.Sprintf("no profile configured for region %s", code),
		})
		return
	}

	result, err := ag.AnalyzeBehavior(c.Request.Context(), &agent.Request{
		EntityID:   body.EntityID,
		EntityType: body.EntityType,
		Payload:    body.Payload,
		Context:    body.Context,
		SkipCache:  body.SkipCache,
	})
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrInvalidEntity), errors.Is(err, agent.ErrEmptyPayload):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": err.Error(),
			})
		case errors.Is(err, agent.ErrTimedOut):
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error":   "analysis_timeout",
				"message": "analysis did not complete in time",
			})
		default:
			logging.L(c.Request.Context()).Error("analysis failed",
				"region", code, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "analysis_failed",
				"message": "An unexpected error occurred",
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) listAssessmentsHandler(c *gin.Context) {
	filter := assessments.Filter{
		EntityID: validation.SanitizeString(c.Query("entity_id"), validation.MaxEntityIDLength),
		Cursor:   c.Query("cursor"),
	}

	if regionParam := c.Query("region"); regionParam != "" {
		code := validation.NormalizeRegion(regionParam)
		if !validation.IsValidRegionCode(code) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_region",
				"message": "region must be an ISO 3166-1 alpha-2 code",
			})
			return
		}
		filter.Region = code
	}

	if levelParam := c.Query("min_level"); levelParam != "" {
		level, ok := risk.ParseLevel(levelParam)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_level",
				"message": "min_level must be one of low, medium, high, critical",
			})
			return
		}
		filter.MinLevel = level
	}

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a non-negative integer",
			})
			return
		}
		filter.Limit = limit
	}

	page, err := s.assessStore.List(c.Request.Context(), filter)
	if err != nil {
		logging.L(c.Request.Context()).Error("assessment list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "list_failed",
			"message": "An unexpected error occurred",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"assessments": page.Items,
		"next_cursor": page.NextCursor,
		"has_more":    page.HasMore,
	})
}

func (s *Server) getAssessmentHandler(c *gin.Context) {
	id := c.Param("id")
	result, err := s.assessStore.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, assessments.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "not_found",
				"message": fmt.Sprintf("no assessment %s", id),
			})
			return
		}
		logging.L(c.Request.Context()).Error("assessment fetch failed",
			"id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "fetch_failed",
			"message": "An unexpected error occurred",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// regionSummary is one entry of GET /v1/regions.
type regionSummary struct {
	Region   string `json:"region"`
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (s *Server) regionsHandler(c *gin.Context) {
	codes := s.registry.Regions()
	summaries := make([]regionSummary, 0, len(codes))
	for _, code := range codes {
		p := s.registry.Get(code)
		summaries = append(summaries, regionSummary{
			Region:   p.Region,
			Name:     p.Name,
			Currency: p.Currency,
		})
	}
	c.JSON(http.StatusOK, gin.H{"regions": summaries})
}

func (s *Server) engineMetricsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.collector.Snapshot())
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = "unhealthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and all background goroutines, blocking
// until the context is cancelled or a shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Error("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"regions", s.registry.Regions(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Realtime alert hub
	go s.hub.Run(runCtx)

	// Baseline recomputation worker
	go s.worker.Start(runCtx)

	// DB pool stats for Prometheus
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, worker)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.worker != nil {
		s.worker.Stop()
		s.logger.Info("baseline worker stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
