// Пакет server — HTTP-сервер File Vault с graceful shutdown.
// Без TLS — TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/goartstore/file-vault/internal/api/handlers"
	"github.com/bigkaa/goartstore/file-vault/internal/api/middleware"
	"github.com/bigkaa/goartstore/file-vault/internal/api/openapi"
	"github.com/bigkaa/goartstore/file-vault/internal/config"
)

// Routes — обработчики и middleware, из которых собирается роутер.
type Routes struct {
	API     *handlers.APIHandler
	Health  *handlers.HealthHandler
	Auth    *middleware.BearerAuth
	Limiter *middleware.LoginLimiter
}

// NewRouter собирает chi-роутер: служебные endpoints (health, metrics,
// JWKS, openapi.yaml) и бизнес-маршруты в корне и под /api.
func NewRouter(logger *slog.Logger, corsOrigin string, routes Routes) chi.Router {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.CORS(corsOrigin))
	router.Use(chimw.Recoverer)

	router.Get("/health/live", routes.Health.HealthLive)
	router.Get("/health/ready", routes.Health.HealthReady)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	router.Method(http.MethodGet, "/openapi.yaml", openapi.Handler())
	router.Get("/.well-known/jwks.json", routes.API.JWKS())

	requireAuth := routes.Auth.Middleware()
	loginLimit := routes.Limiter.Middleware()
	compress := middleware.Compress()

	routes.API.Mount(router, requireAuth, loginLimit, compress)
	router.Route("/api", func(r chi.Router) {
		routes.API.Mount(r, requireAuth, loginLimit, compress)
	})

	return router
}

// Server — HTTP-сервер File Vault.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с таймаутами из конфигурации.
func New(cfg *config.Config, logger *slog.Logger, handler http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// Run запускает сервер и блокируется до отмены ctx или ошибки
// ListenAndServe. После отмены ctx выполняется graceful shutdown
// с таймаутом cfg.ShutdownTimeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Получен сигнал завершения")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
