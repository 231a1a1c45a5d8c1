// download.go — отдача бинарных файлов и OTA-манифеста iOS.
// Локальные файлы отдаются через http.ServeContent (поддержка Range),
// объекты S3 копируются потоком.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/repository"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

// manifestFilename — имя файла OTA-манифеста в Content-Disposition.
const manifestFilename = "ios.plist"

// Prometheus-метрики download.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "od_downloads_total",
		Help: "Общее количество запросов на скачивание (по статусу).",
	}, []string{"status"})

	downloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "od_download_duration_seconds",
		Help:    "Длительность отдачи бинарного файла.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "od_download_bytes_total",
		Help: "Общее количество переданных байт при скачивании.",
	})

	activeDownloads = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "od_active_downloads",
		Help: "Количество активных скачиваний.",
	})
)

// DownloadService — отдача файлов артефактов и манифестов.
type DownloadService struct {
	store  repository.ArtifactStore
	blobs  blob.Store
	links  *LinkGenerator
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания.
func NewDownloadService(
	store repository.ArtifactStore,
	blobs blob.Store,
	links *LinkGenerator,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:  store,
		blobs:  blobs,
		links:  links,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Serve отдаёт бинарный файл артефакта. Для HEAD — только заголовки (через Stat).
// Ошибка возвращается, только если ответ ещё не начат; сбои во время
// передачи логируются.
func (ds *DownloadService) Serve(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
	start := time.Now()
	activeDownloads.Inc()
	defer activeDownloads.Dec()

	ctx := r.Context()
	a, err := ds.store.Get(ctx, id)
	if err != nil {
		downloadsTotal.WithLabelValues("not_found").Inc()
		return ds.lookupError(id, err)
	}

	if r.Method == http.MethodHead {
		info, err := ds.blobs.Stat(ctx, a.Path)
		if err != nil {
			return ds.blobError(a, err)
		}
		setDownloadHeaders(w, a)
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.WriteHeader(http.StatusOK)
		downloadsTotal.WithLabelValues("head").Inc()
		return nil
	}

	obj, err := ds.blobs.Open(ctx, a.Path)
	if err != nil {
		return ds.blobError(a, err)
	}
	defer obj.Body.Close()

	setDownloadHeaders(w, a)

	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		// ServeContent выставляет Content-Length и обрабатывает Range
		cw := &countingWriter{ResponseWriter: w}
		http.ServeContent(cw, r, "", obj.ModTime, rs)
		downloadBytesTotal.Add(float64(cw.n))
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
		w.WriteHeader(http.StatusOK)
		n, err := io.Copy(w, obj.Body)
		downloadBytesTotal.Add(float64(n))
		if err != nil {
			downloadsTotal.WithLabelValues("interrupted").Inc()
			ds.logger.Warn("Передача файла прервана",
				slog.String("artifact_id", a.ID.String()),
				slog.Int64("bytes_sent", n),
				slog.String("error", err.Error()),
			)
			return nil
		}
	}

	downloadsTotal.WithLabelValues("success").Inc()
	downloadDuration.Observe(time.Since(start).Seconds())
	return nil
}

// Manifest строит OTA-манифест для ipa-артефакта.
// NotFound — нет артефакта или проекта; INVALID_PLATFORM_METADATA — нет ios_metadata.
func (ds *DownloadService) Manifest(ctx context.Context, id uuid.UUID) ([]byte, error) {
	a, project, err := ds.store.GetWithProject(ctx, id)
	if err != nil {
		return nil, ds.lookupError(id, err)
	}
	if a.IOSMetadata == nil {
		return nil, validationError(apierrors.CodeInvalidPlatformMetadata,
			fmt.Sprintf("У артефакта %s нет метаданных iOS", id))
	}

	data, err := RenderManifest(ds.links.DownloadURL(a.ID), *a.IOSMetadata, project.Name)
	if err != nil {
		return nil, encodingError("Не удалось построить манифест", err)
	}
	return data, nil
}

// ManifestDisposition — значение Content-Disposition для манифеста.
func ManifestDisposition() string {
	return attachment(manifestFilename)
}

func setDownloadHeaders(w http.ResponseWriter, a *model.Artifact) {
	h := w.Header()
	contentType := a.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Disposition", attachment(a.OriginalFilename))
	h.Set("Accept-Ranges", "bytes")
}

// attachment формирует "attachment; filename=..." с экранированием по RFC 2231.
func attachment(filename string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
		return v
	}
	return "attachment"
}

func (ds *DownloadService) lookupError(id uuid.UUID, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFoundError(fmt.Sprintf("Артефакт %s не найден", id))
	}
	ds.logger.Error("Ошибка получения артефакта",
		slog.String("artifact_id", id.String()),
		slog.String("error", err.Error()),
	)
	return storageError(err)
}

// blobError: запись есть, а файла нет — 404 с предупреждением в логе.
func (ds *DownloadService) blobError(a *model.Artifact, err error) error {
	if errors.Is(err, blob.ErrNotFound) {
		downloadsTotal.WithLabelValues("blob_missing").Inc()
		ds.logger.Warn("Файл артефакта отсутствует в хранилище",
			slog.String("artifact_id", a.ID.String()),
			slog.String("path", a.Path),
		)
		return notFoundError(fmt.Sprintf("Файл артефакта %s не найден", a.ID))
	}
	downloadsTotal.WithLabelValues("error").Inc()
	ds.logger.Error("Ошибка чтения файла артефакта",
		slog.String("artifact_id", a.ID.String()),
		slog.String("error", err.Error()),
	)
	return storageError(err)
}

// countingWriter считает переданные байты тела ответа.
type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.n += int64(n)
	return n, err
}
