package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// artifactRepo — реализация ArtifactStore поверх PostgreSQL.
type artifactRepo struct {
	db DBTX
}

// NewArtifactRepository создаёт PostgreSQL-репозиторий артефактов.
func NewArtifactRepository(db DBTX) ArtifactStore {
	return &artifactRepo{db: db}
}

const artifactColumns = `
	a.id, a.project_id, a.branch, a.identifier, a.extension, a.original_filename,
	a.mime_type, a.size, a.path, a.ios_metadata, a.qrcode, a.uploaded_by, a.created_at`

func (r *artifactRepo) Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error) {
	ios, err := marshalIOS(a.IOSMetadata)
	if err != nil {
		return nil, err
	}
	createdAt := model.Timestamp(a.CreatedAt)

	query := `
		INSERT INTO artifacts (id, project_id, branch, identifier, extension,
			original_filename, mime_type, size, path, ios_metadata, qrcode,
			uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = r.db.Exec(ctx, query,
		a.ID, a.ProjectID, a.Branch, a.Identifier, a.Extension.String(),
		a.OriginalFilename, a.MimeType, a.Size, a.Path, ios, a.QRCode,
		a.UploadedBy, createdAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: артефакт %s", ErrConflict, a.ID)
		}
		return nil, fmt.Errorf("ошибка создания артефакта: %w", err)
	}

	created := *a
	created.CreatedAt = createdAt
	return &created, nil
}

func (r *artifactRepo) Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts a WHERE a.id = $1`

	a, err := scanArtifact(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения артефакта: %w", err)
	}
	return a, nil
}

func (r *artifactRepo) GetAll(ctx context.Context) ([]*model.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts a ORDER BY a.created_at DESC, a.id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка артефактов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования артефакта: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *artifactRepo) GetByProject(ctx context.Context, projectID string) ([]model.BranchGroup, error) {
	// Проекция без path, size и mime_type
	query := `
		SELECT id, extension, created_at, branch, original_filename,
			identifier, ios_metadata, qrcode
		FROM artifacts
		WHERE project_id = $1
		ORDER BY branch, created_at, id`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения артефактов проекта: %w", err)
	}
	defer rows.Close()

	var items []model.Summary
	for rows.Next() {
		var (
			s   model.Summary
			ext string
			ios []byte
		)
		if err := rows.Scan(&s.ID, &ext, &s.CreatedAt, &s.Branch,
			&s.OriginalFilename, &s.Identifier, &ios, &s.QRCode); err != nil {
			return nil, fmt.Errorf("ошибка сканирования артефакта: %w", err)
		}
		s.Extension = model.Extension(ext)
		s.CreatedAt = s.CreatedAt.UTC()
		if s.IOSMetadata, err = unmarshalIOS(ios); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения артефактов проекта: %w", err)
	}
	return model.GroupByBranch(items), nil
}

func (r *artifactRepo) GetWithProject(ctx context.Context, id uuid.UUID) (*model.Artifact, *model.Project, error) {
	// INNER JOIN: артефакт без проекта считается отсутствующим
	query := `SELECT ` + artifactColumns + `, p.id, p.name
		FROM artifacts a
		JOIN projects p ON p.id = a.project_id
		WHERE a.id = $1`

	var p model.Project
	a, err := scanArtifact(r.db.QueryRow(ctx, query, id), &p.ID, &p.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("ошибка получения артефакта с проектом: %w", err)
	}
	return a, &p, nil
}

func (r *artifactRepo) UpdateQRCode(ctx context.Context, id uuid.UUID, qrcode string) error {
	if qrcode == "" {
		return ErrEmptyQRCode
	}

	tag, err := r.db.Exec(ctx, `UPDATE artifacts SET qrcode = $2 WHERE id = $1`, id, qrcode)
	if err != nil {
		return fmt.Errorf("ошибка обновления QR-кода: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanArtifact читает полную запись артефакта; extra — дополнительные
// колонки после artifactColumns.
func scanArtifact(row pgx.Row, extra ...any) (*model.Artifact, error) {
	var (
		a   model.Artifact
		ext string
		ios []byte
	)
	dest := append([]any{
		&a.ID, &a.ProjectID, &a.Branch, &a.Identifier, &ext, &a.OriginalFilename,
		&a.MimeType, &a.Size, &a.Path, &ios, &a.QRCode, &a.UploadedBy, &a.CreatedAt,
	}, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	a.Extension = model.Extension(ext)
	a.CreatedAt = a.CreatedAt.UTC()
	meta, err := unmarshalIOS(ios)
	if err != nil {
		return nil, err
	}
	a.IOSMetadata = meta
	return &a, nil
}

// marshalIOS сериализует ios_metadata в JSON (nil → NULL).
func marshalIOS(m *model.IOSMetadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации ios_metadata: %w", err)
	}
	return data, nil
}

// unmarshalIOS восстанавливает ios_metadata из JSON (NULL → nil).
func unmarshalIOS(data []byte) (*model.IOSMetadata, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m model.IOSMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ошибка разбора ios_metadata: %w", err)
	}
	return &m, nil
}
