// Package server exposes calculation statuses over HTTP: point reads, live
// Server-Sent Events subscriptions, starts, cleanup and report aggregates.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/agbru/policycalc/internal/logging"
	"github.com/agbru/policycalc/internal/metrics"
	"github.com/agbru/policycalc/internal/orchestration"
)

// ServiceName is the name reported by the tracing middleware.
const ServiceName = "policycalc"

// shutdownTimeout bounds the graceful shutdown of ListenAndServe.
const shutdownTimeout = 10 * time.Second

// Server is the HTTP read side of the orchestrator.
type Server struct {
	orch     *orchestration.Orchestrator
	agg      *orchestration.Aggregator
	metrics  *metrics.Collector
	logger   logging.Logger
	security SecurityConfig
	units    []string
	fanOut   []orchestration.FanOutOption
	router   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics exposes c on /metrics and records request counts on it.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithSecurity replaces DefaultSecurityConfig.
func WithSecurity(c SecurityConfig) Option {
	return func(s *Server) { s.security = c }
}

// WithFanOutUnits sets the units used by fan-out starts that do not list
// their own, and the options passed to every fan-out.
func WithFanOutUnits(units []string, opts ...orchestration.FanOutOption) Option {
	return func(s *Server) {
		s.units = append([]string(nil), units...)
		s.fanOut = opts
	}
}

// New builds the server and its routes.
func New(orch *orchestration.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:     orch,
		agg:      orchestration.NewAggregator(orch.Store()),
		logger:   logging.Nop(),
		security: DefaultSecurityConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(ServiceName))
	r.Use(SecurityMiddleware(s.security))
	r.Use(s.observe())

	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.POST("/calculations", s.handleStart)
	v1.GET("/calculations/:target/:id", s.handleGet)
	v1.GET("/calculations/:target/:id/events", s.handleEvents)
	v1.DELETE("/calculations/:id", s.handleCleanup)
	v1.GET("/aggregate", s.handleAggregate)
	return r
}

// observe logs and counts each request by route pattern.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		s.metrics.HTTPRequest(route, strconv.Itoa(code))
		s.logger.Debug("http request",
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("code", code),
			logging.Duration("duration", time.Since(start)))
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status API listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
