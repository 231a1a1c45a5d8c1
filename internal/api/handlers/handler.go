// handler.go — основной обработчик API, реализующий router.ServerInterface.
// Объединяет health, OpenAPI и обработчики артефактов.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/api/router"
	"github.com/bigkaa/opendist/internal/service"
)

// APIHandler — основной обработчик API open-dist.
type APIHandler struct {
	artifacts *service.ArtifactService
	downloads *service.DownloadService
	health    *HealthHandler
	openapi   http.Handler
	logger    *slog.Logger
}

var _ router.ServerInterface = (*APIHandler)(nil)

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	artifacts *service.ArtifactService,
	downloads *service.DownloadService,
	health *HealthHandler,
	openapi http.Handler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		artifacts: artifacts,
		downloads: downloads,
		health:    health,
		openapi:   openapi,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness-проверка.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness-проверка.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// GetOpenAPI — описание API.
func (h *APIHandler) GetOpenAPI(w http.ResponseWriter, r *http.Request) {
	h.openapi.ServeHTTP(w, r)
}

// ParamErrorHandler отвечает на некорректный path-параметр.
// Идентификатор артефакта не в формате UUID не может указывать на
// существующую запись, поэтому ответ 404, как и для неизвестного id.
// Остальные параметры — 400.
func ParamErrorHandler(w http.ResponseWriter, _ *http.Request, err error) {
	var pe *router.InvalidParamFormatError
	if errors.As(err, &pe) {
		if pe.ParamName == "id" {
			apierrors.NotFound(w, "Артефакт не найден")
			return
		}
		apierrors.ValidationError(w, "Некорректный идентификатор "+pe.ParamName)
		return
	}
	apierrors.ValidationError(w, err.Error())
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError пишет конверт ошибки. Причина сбоя хранилища только в лог.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := service.AsError(err)
	if se.Kind == service.KindStorage || se.Kind == service.KindEncoding {
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", se.Code),
			slog.Any("error", se.Err),
		)
	}
	apierrors.WriteError(w, se.StatusCode(), se.Code, se.Message)
}
