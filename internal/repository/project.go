package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// projectRepo — чтение проектов из PostgreSQL.
// Таблица projects заполняется внешней системой управления проектами.
type projectRepo struct {
	db DBTX
}

// NewProjectRepository создаёт PostgreSQL-репозиторий проектов.
func NewProjectRepository(db DBTX) ProjectStore {
	return &projectRepo{db: db}
}

func (r *projectRepo) Get(ctx context.Context, id string) (*model.Project, error) {
	p := &model.Project{}
	err := r.db.QueryRow(ctx, `SELECT id, name FROM projects WHERE id = $1`, id).Scan(&p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return p, nil
}
