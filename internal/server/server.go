package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"

	"github.com/storacha/certifier/internal/config"
	"github.com/storacha/certifier/internal/handlers"
	"github.com/storacha/certifier/internal/session"
)

var log = logging.Logger("server")

// Server represents the HTTP server instance
type Server struct {
	echo   *echo.Echo
	config *config.Config
}

type Params struct {
	fx.In

	Config   *config.Config
	Handlers *handlers.Handlers
	Gatherer prometheus.Gatherer `optional:"true"`
}

// NewServer creates the echo instance with middleware and routes installed.
func NewServer(p Params) (*Server, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	cfg := p.Config

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	if cfg.Server.MaxUploadSize != "" {
		e.Use(middleware.BodyLimit(cfg.Server.MaxUploadSize))
	}
	e.Use(session.Middleware([]byte(cfg.Server.SessionKey)))

	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.ReadHeaderTimeout = cfg.Server.ReadTimeout
	e.Server.IdleTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	p.Handlers.Register(e)
	if p.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, config: cfg}, nil
}

// Start runs the server for the lifetime of the fx app.
func Start(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			addr := s.config.Server.Address()
			log.Infow("Starting HTTP server", "address", addr)
			go func() {
				if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Errorw("HTTP server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down HTTP server")
			if err := s.echo.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		},
	})
}

// Echo returns the underlying Echo instance for advanced configuration
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
