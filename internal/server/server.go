// Пакет server — HTTP-сервер open-dist с graceful shutdown.
// Без TLS: TLS termination на ingress.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/api/handlers"
	"github.com/bigkaa/opendist/internal/api/middleware"
	"github.com/bigkaa/opendist/internal/api/router"
	"github.com/bigkaa/opendist/internal/config"
	"github.com/bigkaa/opendist/internal/telemetry"
)

// Server — HTTP-сервер open-dist.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт HTTP-сервер с настроенными маршрутами и middleware.
// uploadAuth — JWT middleware для загрузки (nil — без аутентификации).
func New(cfg *config.Config, logger *slog.Logger, handler router.ServerInterface, uploadAuth func(http.Handler) http.Handler) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg, logger, handler, uploadAuth),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает chi-роутер: общие middleware, затем маршруты API.
func NewRouter(cfg *config.Config, logger *slog.Logger, handler router.ServerInterface, uploadAuth func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.SetHeader("Server", "open-dist"))
	r.Use(telemetry.Middleware("open-dist"))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}

	var upload []router.MiddlewareFunc
	if cfg.UploadRateLimit > 0 {
		upload = append(upload, httprate.Limit(cfg.UploadRateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				apierrors.RateLimited(w, "Превышен лимит загрузок, повторите позже")
			}),
		))
	}
	if uploadAuth != nil {
		upload = append(upload, uploadAuth)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.NotFound(w, "Маршрут не найден")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteError(w, http.StatusMethodNotAllowed, apierrors.CodeValidationError, "Метод не поддерживается")
	})

	return router.HandlerWithOptions(handler, r, router.Options{
		ArtifactMaxBodySize: cfg.ArtifactMaxBodySize,
		MaxBodySize:         cfg.MaxBodySize,
		UploadMiddlewares:   upload,
		ErrorHandlerFunc:    handlers.ParamErrorHandler,
	})
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM)
// или отмены ctx. Затем выполняется graceful shutdown.
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

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case <-ctx.Done():
		s.logger.Info("Контекст сервера отменён")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
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
