// Package server provides the HTTP API for kijkod.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Anansitrading/kijko/internal/config"
	"github.com/Anansitrading/kijko/internal/history"
	"github.com/Anansitrading/kijko/internal/ingest"
	"github.com/Anansitrading/kijko/internal/logging"
	"github.com/Anansitrading/kijko/internal/notify"
	"github.com/Anansitrading/kijko/internal/project"
	"github.com/Anansitrading/kijko/internal/realtime"
)

// Server wires the REST API, the WebSocket endpoint, and the SSE stream
// onto a single echo listener.
type Server struct {
	echo     *echo.Echo
	projects project.Store
	pipeline *ingest.Service
	hub      *realtime.Hub
	nc       *nats.Conn
	checker  *RepoChecker
	notifier *notify.Center
	sessions *history.Store
	limiter  *IPRateLimiter
	logger   *logging.Logger
	cfg      config.ServerConfig
}

// Options carries the server dependencies.
type Options struct {
	Projects  project.Store
	Pipeline  *ingest.Service
	Hub       *realtime.Hub
	Auth      realtime.Authenticator
	NATS      *nats.Conn
	Checker   *RepoChecker
	Notifier  *notify.Center
	History   *history.Store
	Logger    *logging.Logger
	Config    config.ServerConfig
	RateLimit config.RateLimitConfig
	Realtime  config.RealtimeConfig
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(opts Options) (*Server, error) {
	if opts.Projects == nil {
		return nil, fmt.Errorf("project store is required")
	}
	if opts.Pipeline == nil {
		return nil, fmt.Errorf("ingestion pipeline is required")
	}
	if opts.Hub == nil {
		return nil, fmt.Errorf("realtime hub is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Checker == nil {
		opts.Checker = NewRepoChecker("", nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(opts.Logger))
	e.Use(NewHTTPMetrics(opts.Logger).Middleware())
	var limiter *IPRateLimiter
	if opts.RateLimit.RPS > 0 {
		limiter = NewIPRateLimiter(opts.RateLimit.RPS, opts.RateLimit.Burst)
		e.Use(limiter.Middleware())
	}

	s := &Server{
		echo:     e,
		projects: opts.Projects,
		pipeline: opts.Pipeline,
		hub:      opts.Hub,
		nc:       opts.NATS,
		checker:  opts.Checker,
		notifier: opts.Notifier,
		sessions: opts.History,
		limiter:  limiter,
		logger:   opts.Logger,
		cfg:      opts.Config,
	}

	ws := realtime.NewHandler(opts.Hub, opts.Auth, opts.Realtime.SendBuffer)
	s.registerRoutes(ws)

	return s, nil
}

func (s *Server) registerRoutes(ws *realtime.Handler) {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ws", ws.Serve)

	v1 := s.echo.Group("/api/v1")

	v1.POST("/projects", s.handleCreateProject)
	v1.GET("/projects", s.handleListProjects)
	v1.GET("/projects/:id", s.handleGetProject)
	v1.PATCH("/projects/:id", s.handleUpdateProject)
	v1.DELETE("/projects/:id", s.handleDeleteProject)

	v1.POST("/projects/:id/repositories", s.handleAddRepository)
	v1.GET("/projects/:id/repositories", s.handleListRepositories)

	v1.POST("/projects/:id/members", s.handleInviteMember)
	v1.POST("/projects/:id/members/bulk", s.handleBulkInvite)
	v1.GET("/projects/:id/members", s.handleListMembers)
	v1.DELETE("/projects/:id/members/:memberID", s.handleRemoveMember)

	v1.GET("/validate/name", s.handleValidateName)
	v1.POST("/validate/repository", s.handleValidateRepository)

	v1.POST("/projects/:id/ingest", s.handleStartIngestion)
	v1.GET("/projects/:id/ingestion", s.handleIngestionSnapshot)
	v1.GET("/projects/:id/ingestion/events", s.handleIngestionEvents)

	if s.notifier != nil {
		v1.GET("/notifications", s.handleListNotifications)
		v1.POST("/notifications/read-all", s.handleMarkAllNotificationsRead)
		v1.POST("/notifications/:id/read", s.handleMarkNotificationRead)
	}

	if s.sessions != nil {
		v1.POST("/projects/:id/sessions", s.handleCreateSession)
		v1.GET("/projects/:id/sessions", s.handleListSessions)
		v1.PATCH("/sessions/:sessionID", s.handleRenameSession)
		v1.DELETE("/sessions/:sessionID", s.handleDeleteSession)
		v1.POST("/sessions/:sessionID/messages", s.handleAppendMessage)
		v1.GET("/sessions/:sessionID/messages", s.handleListMessages)
	}
}

// requestLogger logs one line per request with the request id attached.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	}
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	NATS   string `json:"nats"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", NATS: "disconnected"}
	if s.nc != nil && s.nc.IsConnected() {
		resp.NATS = "connected"
	}
	return c.JSON(http.StatusOK, resp)
}

// Start starts the HTTP listener and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
