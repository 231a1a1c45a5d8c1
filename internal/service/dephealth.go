// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// open-dist мониторит:
//   - PostgreSQL — SQL checker через существующий pgxpool (critical), только для бэкенда postgres
//   - JWKS endpoint — HTTP checker (non-critical), только при включённой аутентификации
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DephealthParams — параметры мониторинга зависимостей.
type DephealthParams struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках (OD_DEPHEALTH_GROUP)
	Group string
	// DB — *sql.DB из pgxpool через stdlib.OpenDBFromPool() (nil — не мониторить)
	DB *sql.DB
	// PGConnURL — URL PostgreSQL для лейблов метрик
	PGConnURL string
	// JWKSURL — URL JWKS (пусто — не мониторить)
	JWKSURL       string
	CheckInterval time.Duration
	// IsEntry добавляет лейбл isentry=yes (DEPHEALTH_ISENTRY)
	IsEntry bool
}

// ErrNoDependencies — нечего мониторить.
var ErrNoDependencies = errors.New("dephealth: нет зависимостей для мониторинга")

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис. Метрики регистрируются в глобальном registry.
func NewDephealthService(p DephealthParams, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(p, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(p DephealthParams, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(p, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(p DephealthParams, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	opts := []dephealth.Option{dephealth.WithLogger(logger)}

	if p.DB != nil {
		pgOpts := []dephealth.DependencyOption{
			dephealth.FromURL(p.PGConnURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(true),
		}
		if p.IsEntry {
			pgOpts = append(pgOpts, dephealth.WithLabel("isentry", "yes"))
		}
		opts = append(opts, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(p.DB)), pgOpts...))
	}

	if p.JWKSURL != "" {
		parsed, err := url.Parse(p.JWKSURL)
		if err != nil {
			return nil, err
		}
		jwksOpts := []dephealth.DependencyOption{
			dephealth.FromURL(p.JWKSURL),
			dephealth.CheckInterval(p.CheckInterval),
			dephealth.Critical(false),
		}
		if parsed.Path != "" {
			jwksOpts = append(jwksOpts, dephealth.WithHTTPHealthPath(parsed.Path))
		}
		if parsed.Scheme == "https" {
			jwksOpts = append(jwksOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		if p.IsEntry {
			jwksOpts = append(jwksOpts, dephealth.WithLabel("isentry", "yes"))
		}
		opts = append(opts, dephealth.HTTP("jwks", jwksOpts...))
	}

	if len(opts) == 1 {
		return nil, ErrNoDependencies
	}
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(p.ServiceID, p.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
