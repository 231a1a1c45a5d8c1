// app.go — сборка зависимостей по конфигурации: хранилища, файлы, события.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bigkaa/opendist/internal/api/handlers"
	"github.com/bigkaa/opendist/internal/config"
	"github.com/bigkaa/opendist/internal/database"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/events"
	"github.com/bigkaa/opendist/internal/repository"
	"github.com/bigkaa/opendist/internal/storage/blob"
	"github.com/bigkaa/opendist/internal/storage/filestore"
	"github.com/bigkaa/opendist/internal/storage/s3store"
)

// stores — хранилище метаданных выбранного бэкенда.
type stores struct {
	artifacts repository.ArtifactStore
	projects  repository.ProjectStore
	checkers  []handlers.NamedChecker
	// sqlDB — *sql.DB поверх pgxpool для topologymetrics (только postgres)
	sqlDB *sql.DB
	close func()
}

// openStores открывает хранилище метаданных. migrate — применить миграции
// (postgres) или AutoMigrate (sqlite, mysql) перед работой.
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger, migrate bool) (*stores, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		if migrate {
			logger.Info("Применение миграций БД...")
			if err := database.Migrate(cfg, logger); err != nil {
				return nil, fmt.Errorf("миграции БД: %w", err)
			}
		}
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		// Адаптер pgxpool → *sql.DB: проверка здоровья идёт через тот же пул
		sqlDB := stdlib.OpenDBFromPool(pool)
		return &stores{
			artifacts: repository.NewArtifactRepository(pool),
			projects:  repository.NewProjectRepository(pool),
			checkers: []handlers.NamedChecker{
				{Name: "postgresql", Checker: database.NewReadinessChecker(pool)},
			},
			sqlDB: sqlDB,
			close: func() {
				_ = sqlDB.Close()
				pool.Close()
			},
		}, nil

	case config.StoreSQLite, config.StoreMySQL:
		db, err := database.OpenGorm(cfg, logger)
		if err != nil {
			return nil, err
		}
		closeDB := func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}
		gs := repository.NewGormStore(db)
		if migrate {
			if err := gs.AutoMigrate(ctx); err != nil {
				closeDB()
				return nil, err
			}
		}
		for id, name := range cfg.SeedProjects {
			if err := gs.PutProject(ctx, model.Project{ID: id, Name: name}); err != nil {
				closeDB()
				return nil, fmt.Errorf("запись проекта %s: %w", id, err)
			}
		}
		checker, err := database.NewGormReadinessChecker(db, cfg.StoreBackend)
		if err != nil {
			closeDB()
			return nil, err
		}
		return &stores{
			artifacts: gs,
			projects:  gs.Projects(),
			checkers:  []handlers.NamedChecker{{Name: cfg.StoreBackend, Checker: checker}},
			close:     closeDB,
		}, nil

	case config.StoreMemory:
		ms := repository.NewMemoryStore()
		for id, name := range cfg.SeedProjects {
			ms.PutProject(model.Project{ID: id, Name: name})
		}
		logger.Warn("Используется in-memory хранилище: метаданные не переживут перезапуск",
			slog.Int("projects", len(cfg.SeedProjects)),
		)
		return &stores{
			artifacts: ms,
			projects:  ms.Projects(),
			close:     func() {},
		}, nil

	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища: %s", cfg.StoreBackend)
	}
}

// blobBackend — хранилище файлов и его readiness-проверка.
type blobBackend struct {
	store   blob.Store
	checker handlers.NamedChecker
}

// openBlobs открывает хранилище файлов; метрики ёмкости (local) регистрируются в reg.
func openBlobs(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (*blobBackend, error) {
	switch cfg.BlobBackend {
	case config.BlobLocal:
		fs, err := filestore.New(cfg.UploadRoot)
		if err != nil {
			return nil, err
		}
		if err := fs.RegisterUsageMetrics(reg); err != nil {
			return nil, err
		}
		return &blobBackend{
			store:   fs,
			checker: handlers.NamedChecker{Name: "uploads", Checker: handlers.CheckerFunc(fs.CheckWritable)},
		}, nil

	case config.BlobS3:
		st, err := s3store.New(ctx, s3store.Options{
			Endpoint:       cfg.S3Endpoint,
			Region:         cfg.S3Region,
			Bucket:         cfg.S3Bucket,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Prefix:         cfg.S3Prefix,
			ForcePathStyle: cfg.S3ForcePathStyle,
			ClientTimeout:  cfg.S3ClientTimeout,
		})
		if err != nil {
			return nil, err
		}
		check := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return st.CheckBucket(ctx)
		}
		return &blobBackend{
			store:   st,
			checker: handlers.NamedChecker{Name: "s3", Checker: handlers.CheckerFunc(check)},
		}, nil

	default:
		return nil, fmt.Errorf("неизвестный бэкенд файлов: %s", cfg.BlobBackend)
	}
}

// openPublisher подключается к NATS; при ошибке события отключаются.
func openPublisher(cfg *config.Config, logger *slog.Logger) events.Publisher {
	if cfg.NATSURL == "" {
		return events.NopPublisher{}
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, logger)
	if err != nil {
		logger.Warn("NATS недоступен, события artifact.created не публикуются",
			slog.String("url", cfg.NATSURL),
			slog.String("error", err.Error()),
		)
		return events.NopPublisher{}
	}
	logger.Info("Публикация событий в NATS включена",
		slog.String("url", cfg.NATSURL),
		slog.String("subject", cfg.NATSSubject),
	)
	return pub
}
