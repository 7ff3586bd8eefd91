package api

import (
	"net/http"

	"contactrelay/internal/api/middleware"
	"contactrelay/internal/handlers"

	"github.com/labstack/echo/v4"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", metricsHandler())

	if s.deps.Contacts != nil {
		contact := handlers.NewContactHandler(s.deps.Contacts)
		var mws []echo.MiddlewareFunc
		if s.config.RateLimit.Enabled && s.deps.Limiter != nil {
			mws = append(mws, middleware.RateLimiter(middleware.RateLimitConfig{
				Limiter:     s.deps.Limiter,
				Max:         s.config.RateLimit.MaxPerWindow,
				EndpointKey: "contact",
				OnLimit:     handlers.RateLimited,
			}))
		}
		s.echo.POST("/api/contact", contact.Submit, mws...)
	}

	if s.deps.Drain != nil {
		mailQueue := s.echo.Group("/api/v1/mail-queue")

		auth := middleware.NewAuthMiddleware(s.config.JWT.Secret)
		auth.RegisterAPIKey(s.config.Drain.APIKey, middleware.APIKeyInfo{
			Name:   "drain",
			Scopes: []string{middleware.ScopeMailQueue},
		})
		mailQueue.Use(auth.Middleware())
		mailQueue.Use(middleware.RequireScope(middleware.ScopeMailQueue))

		queueHandler := handlers.NewQueueHandler(s.deps.Drain)
		mailQueue.GET("", queueHandler.List)
		mailQueue.Match([]string{http.MethodGet, http.MethodPost}, "/drain", queueHandler.Drain)
	}
}
