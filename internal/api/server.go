package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/pkgfetch/pkgfetch/internal/catalog"
	"github.com/pkgfetch/pkgfetch/internal/config"
	"github.com/pkgfetch/pkgfetch/internal/download"
	"github.com/pkgfetch/pkgfetch/internal/preferences"
	"github.com/pkgfetch/pkgfetch/internal/scheduler"
	"github.com/pkgfetch/pkgfetch/internal/websocket"
)

// Server handles HTTP requests for the pkgfetch API.
type Server struct {
	echo      *echo.Echo
	hub       *websocket.Hub
	logger    zerolog.Logger
	cfg       *config.Config
	startTime time.Time

	catalogService *catalog.Service
	downloadPool   *download.Pool
	prefsService   *preferences.Service
	sched          *scheduler.Scheduler
}

// NewServer creates a new API server instance wired to the given services.
func NewServer(cfg *config.Config, hub *websocket.Hub, catalogService *catalog.Service, downloadPool *download.Pool, prefsService *preferences.Service, sched *scheduler.Scheduler, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:           e,
		hub:            hub,
		logger:         logger,
		cfg:            cfg,
		startTime:      time.Now(),
		catalogService: catalogService,
		downloadPool:   downloadPool,
		prefsService:   prefsService,
		sched:          sched,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Info().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)
	api.GET("/tasks", s.listTasks)

	catalog.NewHandlers(s.catalogService).RegisterRoutes(api.Group("/catalog"))
	download.NewHandlers(s.downloadPool).RegisterRoutes(api.Group("/downloads"))
	preferences.NewHandlers(s.prefsService).RegisterRoutes(api.Group("/preferences"))

	s.echo.GET("/ws", s.hub.HandleWebSocket)
}

// Start begins serving on the given address.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":         config.Version,
		"startTime":       s.startTime.Format(time.RFC3339),
		"installerCount":  len(s.catalogService.Installers()),
		"activeDownloads": s.downloadPool.ActiveCount(),
	})
}

func (s *Server) listTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, s.sched.ListTasks())
}
