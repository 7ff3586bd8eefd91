package api

import (
	"context"
	"fmt"
	"net/http"

	"contactrelay/internal/config"
	"contactrelay/internal/api/middleware"
	"contactrelay/internal/metrics"
	"contactrelay/internal/queue"
	"contactrelay/internal/services"
	"contactrelay/internal/utils/logger"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

var log = logger.New("api")

// CustomValidator plugs validator/v10 into echo's c.Validate.
type CustomValidator struct {
	validator *validator.Validate
}

func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Dependencies are the services the HTTP layer exposes.
type Dependencies struct {
	Contacts *services.ContactService
	Drain    *queue.Runner
	// Limiter throttles contact submissions; nil disables throttling.
	Limiter middleware.Limiter
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	deps   Dependencies
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Validator = NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.BodyLimit("64K"))
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.Server.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		}))
	}

	s := &Server{echo: e, config: cfg, deps: deps}
	s.registerRoutes()
	return s
}

// Echo exposes the router, mainly for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	log.Info("listening on %s", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"mode":   s.config.Mode,
	})
}

func metricsHandler() echo.HandlerFunc {
	return echo.WrapHandler(metrics.MetricsHandler())
}
