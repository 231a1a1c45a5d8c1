// Пакет database — подключение к хранилищу метаданных: PostgreSQL через
// pgxpool с миграциями golang-migrate, SQLite/MySQL через gorm.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/opendist/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// connectTimeout ограничивает первичный ping при старте.
const connectTimeout = 10 * time.Second

// Connect открывает pgxpool к базе метаданных артефактов и проверяет
// её доступность.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("некорректный DSN PostgreSQL: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "open-dist"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("пул PostgreSQL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("PostgreSQL недоступен (%s:%d/%s): %w", cfg.DBHost, cfg.DBPort, cfg.DBName, err)
	}

	logger.Info("Хранилище метаданных: PostgreSQL",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
	)
	return pool, nil
}

// Migrate накатывает схему artifacts/projects из встроенных SQL-файлов.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("источник миграций: %w", err)
	}

	// драйвер golang-migrate для pgx/v5 регистрируется под схемой pgx5://
	dbURL := "pgx5://" + strings.TrimPrefix(cfg.DatabaseDSN(), "postgres://")

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("инициализация миграций: %w", err)
	}
	defer m.Close()

	applied := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("применение миграций: %w", err)
		}
		applied = false
	}

	version, dirty, _ := m.Version()
	logger.Info("Схема хранилища метаданных актуальна",
		slog.Uint64("version", uint64(version)),
		slog.Bool("applied", applied),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// Pinger — источник проверки доступности базы.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessChecker — проверка готовности базы для health endpoint.
type ReadinessChecker struct {
	name string
	db   Pinger
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{name: "PostgreSQL", db: pool}
}

// CheckReady пингует базу с таймаутом 3s: "ok" или "fail".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("%s недоступен: %v", c.name, err)
	}
	return "ok", c.name + " доступен"
}
