package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"calgrid/internal/config"
	"calgrid/internal/layout"
	appLog "calgrid/internal/log"
	"calgrid/internal/metrics"
	"calgrid/internal/model"
	"calgrid/internal/source"
)

const (
	// DefaultEventsCacheTTL keeps fetched windows around between page loads
	// so browsing back and forth does not hit the provider every time.
	DefaultEventsCacheTTL = 30 * time.Second

	eventsCacheSize = 32

	shutdownTimeout = 10 * time.Second
)

// Options wires a Server. Fetcher and Pipeline are required.
type Options struct {
	Config   *config.Config
	Fetcher  source.Fetcher
	Pipeline *layout.Pipeline
	// SourceKind labels fetch metrics ("google", "ics").
	SourceKind string
	Metrics    *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
	// EventsCacheTTL defaults to DefaultEventsCacheTTL; negative disables
	// caching.
	EventsCacheTTL time.Duration
}

// Server serves the calendar grid as JSON and HTML.
type Server struct {
	cfg        *config.Config
	fetcher    source.Fetcher
	pipeline   *layout.Pipeline
	sourceKind string
	metrics    *metrics.Metrics
	now        func() time.Time

	// events caches fetch results per window; nil when disabled.
	events *expirable.LRU[string, []model.Event]

	engine *gin.Engine
}

// NewServer builds the gin engine and registers every route.
func NewServer(opts Options) (*Server, error) {
	if opts.Fetcher == nil {
		return nil, errors.New("web: fetcher is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("web: pipeline is required")
	}
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		cfg:        opts.Config,
		fetcher:    opts.Fetcher,
		pipeline:   opts.Pipeline,
		sourceKind: opts.SourceKind,
		metrics:    opts.Metrics,
		now:        opts.Now,
	}

	ttl := opts.EventsCacheTTL
	if ttl == 0 {
		ttl = DefaultEventsCacheTTL
	}
	if ttl > 0 {
		s.events = expirable.NewLRU[string, []model.Event](eventsCacheSize, nil, ttl)
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger())
	s.engine.SetHTMLTemplate(tmpl)
	s.registerRoutes()
	return s, nil
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appLog.Info("shutting down HTTP server")
	return srv.Shutdown(shutdownCtx)
}

// Purge drops every cached fetch result so the next request refetches.
func (s *Server) Purge() {
	if s.events != nil {
		s.events.Purge()
	}
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	return ba != nil && ba.Username != "" && ba.Password != ""
}

func (s *Server) registerRoutes() {
	// /health is never behind basic auth.
	s.engine.GET("/health", s.handleHealth)

	protected := s.engine.Group("/")
	if s.basicAuthEnabled() {
		protected.Use(gin.BasicAuthForRealm(gin.Accounts{
			s.cfg.BasicAuth.Username: s.cfg.BasicAuth.Password,
		}, "calgrid"))
	}

	protected.GET("/api/calendar", s.handleCalendarJSON)
	protected.POST("/api/refresh", s.handleRefresh)
	protected.GET("/calendar", s.handleCalendarPage)
	protected.GET("/preview.png", s.handlePreview)
	protected.GET("/metrics", gin.WrapH(s.metrics.Handler()))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.Purge()
	appLog.Info("events cache purged", "trigger", "api")
	c.JSON(http.StatusOK, gin.H{"status": "purged"})
}

// handlePreview serves the last snapshot written by the refresh job.
func (s *Server) handlePreview(c *gin.Context) {
	c.File(s.cfg.PreviewPath)
}

// requestLogger logs every request through the application logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// writeError maps source errors onto HTTP statuses: fetch failures are the
// upstream's fault (502), configuration problems are ours (500).
func writeError(c *gin.Context, err error) {
	if fe, ok := source.AsFetchError(err); ok {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     fe.Error(),
			"status":    fe.Status,
			"retryable": fe.Retryable(),
		})
		return
	}
	if source.IsConfigError(err) {
		appLog.Error("configuration error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	appLog.Error("request failed", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
