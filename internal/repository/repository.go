// Пакет repository — слой доступа к метаданным артефактов и проектов.
// Реализации: PostgreSQL (чистый SQL через pgx), SQLite/MySQL (gorm),
// in-memory. Бэкенд выбирается один раз при старте.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким id уже существует.
	ErrConflict = errors.New("запись уже существует")
	// ErrEmptyQRCode — попытка записать пустой QR-код.
	ErrEmptyQRCode = errors.New("пустой QR-код")
)

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ArtifactStore — хранилище записей артефактов.
type ArtifactStore interface {
	// Create сохраняет запись как есть (qrcode может быть nil) и возвращает её.
	Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error)
	// Get возвращает артефакт по id.
	Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error)
	// GetAll возвращает все артефакты, новые первыми.
	GetAll(ctx context.Context) ([]*model.Artifact, error)
	// GetByProject возвращает артефакты проекта, сгруппированные по ветке.
	GetByProject(ctx context.Context, projectID string) ([]model.BranchGroup, error)
	// GetWithProject возвращает артефакт вместе с проектом.
	// ErrNotFound, если отсутствует артефакт или проект.
	GetWithProject(ctx context.Context, id uuid.UUID) (*model.Artifact, *model.Project, error)
	// UpdateQRCode изменяет только поле qrcode.
	UpdateQRCode(ctx context.Context, id uuid.UUID, qrcode string) error
}

// ProjectStore — чтение внешних проектов.
type ProjectStore interface {
	Get(ctx context.Context, id string) (*model.Project, error)
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
