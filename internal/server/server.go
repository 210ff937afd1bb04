// Package server is the HTTP surface: the management API, the history
// exports, and the live endpoints (SSE and WebSocket).
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/config"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/domain"
	apperrors "github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/errors"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/hub"
	"github.com/ShHaWkK/BSRQ-ViewerHub-sub000/internal/registry"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	registry *registry.Registry
	hub      *hub.Hub
	samples  domain.SampleStore
	titles   domain.TitleResolver
	auth     *AuthService
	clock    clockwork.Clock
}

func NewServer(cfg *config.Config, reg *registry.Registry, h *hub.Hub, samples domain.SampleStore, titles domain.TitleResolver, clock clockwork.Clock) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(apperrors.Middleware())
	if len(cfg.CORSAllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowCredentials: true,
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization},
		}))
	}

	srv := &Server{
		echo:     e,
		config:   cfg,
		registry: reg,
		hub:      h,
		samples:  samples,
		titles:   titles,
		auth:     NewAuthService(cfg.AuthSecret, cfg.AdminPassword, cfg.ClientPassword, clock),
		clock:    clock,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("http server starting", "port", s.config.Port)
	err := s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
