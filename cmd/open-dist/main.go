// Точка входа open-dist — сервиса раздачи сборок мобильных приложений.
// Команды: serve (по умолчанию), migrate, backfill-qrcodes, version.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/bigkaa/opendist/internal/api/handlers"
	"github.com/bigkaa/opendist/internal/api/middleware"
	"github.com/bigkaa/opendist/internal/api/openapi"
	"github.com/bigkaa/opendist/internal/config"
	"github.com/bigkaa/opendist/internal/database"
	"github.com/bigkaa/opendist/internal/server"
	"github.com/bigkaa/opendist/internal/service"
	"github.com/bigkaa/opendist/internal/telemetry"
)

func main() {
	// .env в рабочей директории — необязателен
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ошибка: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "open-dist",
		Short:         "Хранение и раздача сборок мобильных приложений",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(commandContext(cmd))
		},
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newBackfillCommand())
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запуск HTTP-сервера",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(commandContext(cmd))
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применение миграций хранилища метаданных и выход",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			return runMigrate(commandContext(cmd), cfg, logger)
		},
	}
}

func newBackfillCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backfill-qrcodes",
		Short: "Заполнение QR-кодов у артефактов, сохранённых без них",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)

			st, err := openStores(ctx, cfg, logger, false)
			if err != nil {
				return err
			}
			defer st.close()

			blobs, err := openBlobs(ctx, cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			projects := service.NewProjectLookup(st.projects, cfg.ProjectCacheSize, cfg.ProjectCacheTTL)
			svc := service.NewArtifactService(st.artifacts, projects, blobs.store,
				service.NewLinkGenerator(cfg.PublicBaseURL), nil, logger)

			res, err := svc.BackfillQRCodes(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "просмотрено: %d, обновлено: %d, ошибок: %d\n",
				res.Scanned, res.Updated, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("не удалось обновить %d записей", res.Failed)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Версия сборки",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Version)
		},
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}
	return cfg, config.SetupLogger(cfg), nil
}

func runServe(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Загрузка конфигурации и настройка логгера
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Info("open-dist запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreBackend),
		slog.String("blobs", cfg.BlobBackend),
	)

	// 2. Трассировка
	shutdownTracing, err := telemetry.Setup(ctx, "open-dist", config.Version, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Ошибка остановки трассировки", slog.String("error", err.Error()))
		}
	}()

	// 3. Хранилище метаданных (миграции применяются при старте)
	st, err := openStores(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer st.close()

	// 4. Хранилище файлов
	blobs, err := openBlobs(ctx, cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	// 5. Публикация событий
	publisher := openPublisher(cfg, logger)
	defer publisher.Close()

	// 6. Сервисы
	links := service.NewLinkGenerator(cfg.PublicBaseURL)
	projects := service.NewProjectLookup(st.projects, cfg.ProjectCacheSize, cfg.ProjectCacheTTL)
	artifactSvc := service.NewArtifactService(st.artifacts, projects, blobs.store, links, publisher, logger)
	downloadSvc := service.NewDownloadService(st.artifacts, blobs.store, links, logger)

	// 7. Handlers
	doc, err := openapi.Handler()
	if err != nil {
		return err
	}
	checkers := append(st.checkers, blobs.checker)
	healthHandler := handlers.NewHealthHandler(checkers...)
	apiHandler := handlers.NewAPIHandler(artifactSvc, downloadSvc, healthHandler, doc, logger)

	// 8. JWT middleware для загрузки (если задан JWKS)
	var uploadAuth func(next http.Handler) http.Handler
	if cfg.JWKSURL != "" {
		jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSURL,
			Issuer:          cfg.JWTIssuer,
			UserClaim:       cfg.JWTUserClaim,
			ClientTimeout:   cfg.JWKSClientTimeout,
			RefreshInterval: cfg.JWKSRefreshInterval,
			JWTLeeway:       cfg.JWTLeeway,
		}, logger)
		if err != nil {
			return fmt.Errorf("создание JWT middleware: %w", err)
		}
		uploadAuth = jwtAuth.Middleware()
		logger.Info("JWT middleware инициализирован", slog.String("jwks_url", cfg.JWKSURL))
	} else {
		logger.Warn("OD_JWKS_URL не задан, загрузка без аутентификации")
	}

	// 9. topologymetrics — мониторинг зависимостей
	startDephealth(ctx, cfg, st, logger)

	// 10. HTTP-сервер (блокирующий вызов с graceful shutdown)
	srv := server.New(cfg, logger, apiHandler, uploadAuth)
	if err := srv.Run(ctx); err != nil {
		return err
	}

	logger.Info("open-dist остановлен")
	return nil
}

// startDephealth запускает мониторинг; сбой не мешает работе сервиса.
func startDephealth(ctx context.Context, cfg *config.Config, st *stores, logger *slog.Logger) {
	params := service.DephealthParams{
		ServiceID:     "open-dist",
		Group:         cfg.DephealthGroup,
		DB:            st.sqlDB,
		JWKSURL:       cfg.JWKSURL,
		CheckInterval: cfg.DephealthCheckInterval,
		IsEntry:       cfg.DephealthIsEntry,
	}
	if st.sqlDB != nil {
		params.PGConnURL = cfg.DatabaseDSN()
	}

	ds, err := service.NewDephealthService(params, logger)
	if errors.Is(err, service.ErrNoDependencies) {
		logger.Info("topologymetrics: нет зависимостей для мониторинга")
		return
	}
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return
	}
	if err := ds.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return
	}
	go func() {
		<-ctx.Done()
		ds.Stop()
	}()
	logger.Info("topologymetrics запущен",
		slog.String("group", cfg.DephealthGroup),
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
}

// runMigrate применяет миграции выбранного бэкенда.
func runMigrate(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return database.Migrate(cfg, logger)
	case config.StoreSQLite, config.StoreMySQL:
		st, err := openStores(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		st.close()
		return nil
	default:
		logger.Info("Бэкенд не требует миграций", slog.String("store", cfg.StoreBackend))
		return nil
	}
}
