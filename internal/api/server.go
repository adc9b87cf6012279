package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/smash64-online/netcheck/internal/checker"
	"github.com/smash64-online/netcheck/internal/config"
	"github.com/smash64-online/netcheck/internal/events"
	"github.com/smash64-online/netcheck/internal/network"
	"github.com/smash64-online/netcheck/internal/scheduler"
	"github.com/smash64-online/netcheck/internal/util"
)

// Runner runs a single check.
type Runner interface {
	Run(ctx context.Context, kind events.CheckKind, req checker.Request) checker.Result
}

// StatusProvider reports the latest monitor results.
type StatusProvider interface {
	Status() []scheduler.TargetStatus
}

// Server is the HTTP check service.
type Server struct {
	cfg      config.APIConfig
	runner   Runner
	monitor  StatusProvider
	gatherer prometheus.Gatherer
	logger   zerolog.Logger

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates the check service. gatherer may be nil, in which case
// /metrics is not served.
func NewServer(cfg config.APIConfig, runner Runner, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:      cfg,
		runner:   runner,
		gatherer: gatherer,
		logger:   util.ComponentLogger("api"),
	}
}

// SetMonitor exposes the scheduler results on /api/public/monitor.
func (s *Server) SetMonitor(monitor StatusProvider) {
	s.monitor = monitor
}

// Handler returns the router, building it on first use.
func (s *Server) Handler() http.Handler {
	if s.router == nil {
		s.router = s.buildRouter()
	}
	return s.router
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ln, err := network.Listen(ctx, addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	s.logger.Info().Str("addr", addr).Msg("check service starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn().Err(err).Msg("check service shutdown")
		}
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the check service.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// gin trusts every proxy unless told otherwise.
	var trusted []string
	if len(s.cfg.TrustedProxies) > 0 {
		trusted = s.cfg.TrustedProxies
	}
	if err := router.SetTrustedProxies(trusted); err != nil {
		s.logger.Warn().Err(err).Strs("trusted_proxies", trusted).Msg("invalid trusted proxies, trusting none")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"OPTIONS", "POST", "GET"},
		AllowHeaders:     []string{"Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rateLimiter := NewRateLimiter(s.cfg.RateLimitRPS)
	router.Use(rateLimiter.Middleware(s.callerIP))

	router.POST("/server-check", s.checkHandler(events.CheckServer))
	router.POST("/connection-check", s.checkHandler(events.CheckConnection))
	router.POST("/join-check", s.checkHandler(events.CheckJoin))
	router.POST("/p2p-check", s.checkHandler(events.CheckP2P))
	router.GET("/get-ip", s.handleGetIP)

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/monitor", s.handleMonitor)
	}

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}
