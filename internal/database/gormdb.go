package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bigkaa/opendist/internal/config"
)

// OpenGorm открывает SQLite или MySQL через gorm согласно OD_STORE_BACKEND.
func OpenGorm(cfg *config.Config, log *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.StoreBackend {
	case config.StoreSQLite:
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("путь к файлу SQLite не задан")
		}
		if err := ensureDir(filepath.Dir(cfg.SQLitePath)); err != nil {
			return nil, err
		}
		dialector = sqlite.Open(cfg.SQLitePath)
	case config.StoreMySQL:
		if cfg.MySQLDSN == "" {
			return nil, fmt.Errorf("DSN MySQL не задан")
		}
		dialector = mysql.Open(cfg.MySQLDSN)
	default:
		return nil, fmt.Errorf("бэкенд %q не поддерживается gorm", cfg.StoreBackend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к %s: %w", cfg.StoreBackend, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if cfg.StoreBackend == config.StoreSQLite {
		// SQLite допускает одного писателя
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	log.Info("Подключение к хранилищу метаданных установлено",
		slog.String("backend", cfg.StoreBackend),
	)
	return db, nil
}

// NewGormReadinessChecker создаёт проверку готовности базы, открытой через gorm.
func NewGormReadinessChecker(db *gorm.DB, name string) (*ReadinessChecker, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &ReadinessChecker{name: name, db: sqlPinger{sqlDB}}, nil
}

// sqlPinger адаптирует *sql.DB к Pinger.
type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func ensureDir(dir string) error {
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}
