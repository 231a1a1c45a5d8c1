package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// artifactRow — строка таблицы artifacts для gorm (SQLite, MySQL).
// ios_metadata хранится двумя nullable-колонками вместо JSON.
type artifactRow struct {
	ID               string    `gorm:"column:id;primaryKey;size:36"`
	ProjectID        string    `gorm:"column:project_id;size:255;not null;index:idx_artifacts_project_branch,priority:1"`
	Branch           string    `gorm:"column:branch;size:255;not null;index:idx_artifacts_project_branch,priority:2"`
	Identifier       string    `gorm:"column:identifier;size:255;not null"`
	Extension        string    `gorm:"column:extension;size:3;not null"`
	OriginalFilename string    `gorm:"column:original_filename;size:1024;not null"`
	MimeType         string    `gorm:"column:mime_type;size:255;not null"`
	Size             int64     `gorm:"column:size;not null"`
	Path             string    `gorm:"column:path;size:2048;not null"`
	BundleIdentifier *string   `gorm:"column:bundle_identifier;size:255"`
	BundleVersion    *string   `gorm:"column:bundle_version;size:255"`
	QRCode           *string   `gorm:"column:qrcode"`
	UploadedBy       string    `gorm:"column:uploaded_by;size:255;not null;default:''"`
	CreatedAt        time.Time `gorm:"column:created_at;precision:3;not null;index:idx_artifacts_project_branch,priority:3"`
}

func (artifactRow) TableName() string { return "artifacts" }

// projectRow — строка таблицы projects.
type projectRow struct {
	ID   string `gorm:"column:id;primaryKey;size:255"`
	Name string `gorm:"column:name;size:255;not null"`
}

func (projectRow) TableName() string { return "projects" }

// GormStore — реализация ArtifactStore и ProjectStore поверх gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore создаёт хранилище поверх открытого gorm.DB.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate создаёт или обновляет таблицы projects и artifacts.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&projectRow{}, &artifactRow{}); err != nil {
		return fmt.Errorf("ошибка миграции схемы: %w", err)
	}
	return nil
}

// PutProject добавляет или заменяет проект.
func (s *GormStore) PutProject(ctx context.Context, p model.Project) error {
	row := projectRow{ID: p.ID, Name: p.Name}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("ошибка сохранения проекта: %w", err)
	}
	return nil
}

// Projects возвращает ProjectStore поверх той же базы.
func (s *GormStore) Projects() ProjectStore {
	return gormProjects{s.db}
}

func (s *GormStore) Create(ctx context.Context, a *model.Artifact) (*model.Artifact, error) {
	row := toRow(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: артефакт %s", ErrConflict, a.ID)
		}
		return nil, fmt.Errorf("ошибка создания артефакта: %w", err)
	}
	return fromRow(&row)
}

func (s *GormStore) Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	var row artifactRow
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения артефакта: %w", err)
	}
	return fromRow(&row)
}

func (s *GormStore) GetAll(ctx context.Context) ([]*model.Artifact, error) {
	var rows []artifactRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения списка артефактов: %w", err)
	}

	result := make([]*model.Artifact, 0, len(rows))
	for i := range rows {
		a, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func (s *GormStore) GetByProject(ctx context.Context, projectID string) ([]model.BranchGroup, error) {
	var rows []artifactRow
	err := s.db.WithContext(ctx).
		Select("id", "extension", "created_at", "branch", "original_filename",
			"identifier", "bundle_identifier", "bundle_version", "qrcode").
		Where("project_id = ?", projectID).
		Order("branch").Order("created_at").Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка получения артефактов проекта: %w", err)
	}

	items := make([]model.Summary, 0, len(rows))
	for i := range rows {
		a, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		items = append(items, a.Summary())
	}
	return model.GroupByBranch(items), nil
}

func (s *GormStore) GetWithProject(ctx context.Context, id uuid.UUID) (*model.Artifact, *model.Project, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	p, err := gormProjects{s.db}.Get(ctx, a.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	return a, p, nil
}

func (s *GormStore) UpdateQRCode(ctx context.Context, id uuid.UUID, qrcode string) error {
	if qrcode == "" {
		return ErrEmptyQRCode
	}

	res := s.db.WithContext(ctx).Model(&artifactRow{}).
		Where("id = ?", id.String()).
		Update("qrcode", qrcode)
	if res.Error != nil {
		return fmt.Errorf("ошибка обновления QR-кода: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// gormProjects — ProjectStore поверх gorm.
type gormProjects struct {
	db *gorm.DB
}

func (g gormProjects) Get(ctx context.Context, id string) (*model.Project, error) {
	var row projectRow
	if err := g.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения проекта: %w", err)
	}
	return &model.Project{ID: row.ID, Name: row.Name}, nil
}

func toRow(a *model.Artifact) artifactRow {
	row := artifactRow{
		ID:               a.ID.String(),
		ProjectID:        a.ProjectID,
		Branch:           a.Branch,
		Identifier:       a.Identifier,
		Extension:        a.Extension.String(),
		OriginalFilename: a.OriginalFilename,
		MimeType:         a.MimeType,
		Size:             a.Size,
		Path:             a.Path,
		QRCode:           a.QRCode,
		UploadedBy:       a.UploadedBy,
		CreatedAt:        model.Timestamp(a.CreatedAt),
	}
	if a.IOSMetadata != nil {
		bi, bv := a.IOSMetadata.BundleIdentifier, a.IOSMetadata.BundleVersion
		row.BundleIdentifier = &bi
		row.BundleVersion = &bv
	}
	return row
}

func fromRow(row *artifactRow) (*model.Artifact, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("некорректный id артефакта %q: %w", row.ID, err)
	}

	a := &model.Artifact{
		ID:               id,
		ProjectID:        row.ProjectID,
		Branch:           row.Branch,
		Identifier:       row.Identifier,
		Extension:        model.Extension(row.Extension),
		OriginalFilename: row.OriginalFilename,
		MimeType:         row.MimeType,
		Size:             row.Size,
		Path:             row.Path,
		QRCode:           row.QRCode,
		UploadedBy:       row.UploadedBy,
		CreatedAt:        row.CreatedAt.UTC(),
	}
	if row.BundleIdentifier != nil && row.BundleVersion != nil {
		a.IOSMetadata = &model.IOSMetadata{
			BundleIdentifier: *row.BundleIdentifier,
			BundleVersion:    *row.BundleVersion,
		}
	}
	return a, nil
}

var (
	_ ArtifactStore = (*GormStore)(nil)
	_ ProjectStore  = gormProjects{}
)
