// artifacts.go — сервис загрузки и чтения артефактов.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/events"
	"github.com/bigkaa/opendist/internal/repository"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

var tracer = otel.Tracer("github.com/bigkaa/opendist/internal/service")

// Prometheus-метрики загрузок.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "od_artifact_uploads_total",
		Help: "Общее количество загрузок артефактов (по типу и результату).",
	}, []string{"extension", "result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "od_artifact_upload_bytes_total",
		Help: "Общее количество байт загруженных артефактов.",
	})

	eventPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "od_event_publish_failures_total",
		Help: "Количество неудачных публикаций событий artifact.created.",
	})
)

// UploadParams — параметры загрузки артефакта.
type UploadParams struct {
	ProjectID string
	Form      *UploadForm
	// UploadedBy — идентификатор пользователя из JWT (пусто без аутентификации)
	UploadedBy string
}

// ArtifactService — загрузка, листинг и чтение артефактов.
type ArtifactService struct {
	store    repository.ArtifactStore
	projects *ProjectLookup
	blobs    blob.Store
	links    *LinkGenerator
	events   events.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewArtifactService создаёт сервис артефактов.
func NewArtifactService(
	store repository.ArtifactStore,
	projects *ProjectLookup,
	blobs blob.Store,
	links *LinkGenerator,
	publisher events.Publisher,
	logger *slog.Logger,
) *ArtifactService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ArtifactService{
		store:    store,
		projects: projects,
		blobs:    blobs,
		links:    links,
		events:   publisher,
		logger:   logger.With(slog.String("component", "artifact_service")),
		now:      time.Now,
	}
}

// Upload сохраняет артефакт.
//
// Поток:
//  1. Проверка полей (до любых изменений)
//  2. Проверка существования проекта
//  3. Генерация id, вычисление пути
//  4. Ссылка установки и QR-код (до записи)
//  5. Запись файла
//  6. Создание записи с уже заполненным qrcode
//  7. Публикация события (ошибка не прерывает загрузку)
func (s *ArtifactService) Upload(ctx context.Context, p UploadParams) (*model.Artifact, error) {
	ctx, span := tracer.Start(ctx, "ArtifactService.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("artifact.project_id", p.ProjectID))

	a, err := s.upload(ctx, p)
	ext := "unknown"
	if p.Form != nil && p.Form.File != nil {
		ext = p.Form.File.Extension.String()
	}
	if err != nil {
		uploadsTotal.WithLabelValues(ext, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	uploadsTotal.WithLabelValues(ext, "success").Inc()
	uploadBytesTotal.Add(float64(a.Size))
	span.SetAttributes(attribute.String("artifact.id", a.ID.String()))
	return a, nil
}

func (s *ArtifactService) upload(ctx context.Context, p UploadParams) (*model.Artifact, error) {
	// 1. Проверяем поля формы
	v, err := ValidateUpload(p.ProjectID, p.Form)
	if err != nil {
		return nil, err
	}

	// 2. Проект должен существовать
	project, err := s.projects.Get(ctx, v.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError(fmt.Sprintf("Проект %s не найден", v.ProjectID))
		}
		s.logger.Error("Ошибка получения проекта",
			slog.String("project_id", v.ProjectID),
			slog.String("error", err.Error()),
		)
		return nil, storageError(err)
	}

	// 3. id и путь
	id := uuid.New()
	ext := v.File.Extension
	location, err := s.blobs.Resolve(project.ID, v.Branch, v.Identifier, ext)
	if err != nil {
		if errors.Is(err, blob.ErrInvalidSegment) {
			return nil, validationError(apierrors.CodeInvalidPathSegment, err.Error())
		}
		s.logger.Error("Ошибка вычисления пути артефакта", slog.String("error", err.Error()))
		return nil, storageError(err)
	}

	// 4. Ссылка установки и QR-код
	installURL := s.links.InstallURL(id, ext)
	qr, err := s.links.QRCode(installURL)
	if err != nil {
		return nil, encodingError("Не удалось построить QR-код ссылки установки", err)
	}

	// 5. Файл
	size := int64(len(v.File.Data))
	if err := s.blobs.Put(ctx, location, bytes.NewReader(v.File.Data), size, v.File.ContentType); err != nil {
		s.logger.Error("Ошибка записи файла артефакта",
			slog.String("artifact_id", id.String()),
			slog.String("path", location),
			slog.String("error", err.Error()),
		)
		return nil, storageError(err)
	}

	// 6. Запись
	artifact := &model.Artifact{
		ID:               id,
		ProjectID:        project.ID,
		Branch:           v.Branch,
		Identifier:       v.Identifier,
		Extension:        ext,
		OriginalFilename: v.File.Filename,
		MimeType:         v.File.ContentType,
		Size:             size,
		Path:             location,
		IOSMetadata:      v.IOSMetadata,
		QRCode:           &qr,
		UploadedBy:       p.UploadedBy,
		CreatedAt:        model.Timestamp(s.now()),
	}
	created, err := s.store.Create(ctx, artifact)
	if err != nil {
		s.logger.Error("Ошибка создания записи артефакта",
			slog.String("artifact_id", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, storageError(err)
	}

	s.logger.Info("Артефакт загружен",
		slog.String("artifact_id", created.ID.String()),
		slog.String("project_id", created.ProjectID),
		slog.String("branch", created.Branch),
		slog.String("identifier", created.Identifier),
		slog.String("extension", created.Extension.String()),
		slog.Int64("size", created.Size),
	)

	// 7. Событие
	ev := events.ArtifactCreated{
		ID:         created.ID,
		ProjectID:  created.ProjectID,
		Branch:     created.Branch,
		Identifier: created.Identifier,
		Extension:  created.Extension.String(),
		Size:       created.Size,
		CreatedAt:  created.CreatedAt,
		InstallURL: installURL,
	}
	if err := s.events.PublishArtifactCreated(ctx, ev); err != nil {
		eventPublishFailuresTotal.Inc()
		s.logger.Warn("Не удалось опубликовать событие artifact.created",
			slog.String("artifact_id", created.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	return created, nil
}

// Get возвращает артефакт по id.
func (s *ArtifactService) Get(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.lookupError(id, err)
	}
	return a, nil
}

// List возвращает все артефакты.
func (s *ArtifactService) List(ctx context.Context) ([]*model.Artifact, error) {
	items, err := s.store.GetAll(ctx)
	if err != nil {
		s.logger.Error("Ошибка получения списка артефактов", slog.String("error", err.Error()))
		return nil, storageError(err)
	}
	return items, nil
}

// ListByProject возвращает артефакты проекта, сгруппированные по веткам.
// Для проекта без артефактов — пустой список.
func (s *ArtifactService) ListByProject(ctx context.Context, projectID string) ([]model.BranchGroup, error) {
	groups, err := s.store.GetByProject(ctx, projectID)
	if err != nil {
		s.logger.Error("Ошибка получения артефактов проекта",
			slog.String("project_id", projectID),
			slog.String("error", err.Error()),
		)
		return nil, storageError(err)
	}
	return groups, nil
}

// lookupError преобразует ошибку чтения записи по id.
func (s *ArtifactService) lookupError(id uuid.UUID, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundError(fmt.Sprintf("Артефакт %s не найден", id))
	}
	s.logger.Error("Ошибка получения артефакта",
		slog.String("artifact_id", id.String()),
		slog.String("error", err.Error()),
	)
	return storageError(err)
}
