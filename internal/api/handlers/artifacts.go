// artifacts.go — HTTP handlers артефактов: загрузка, списки, скачивание, манифест.
package handlers

import (
	"net/http"

	"github.com/bigkaa/opendist/internal/api/middleware"
	"github.com/bigkaa/opendist/internal/api/router"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/service"
)

// UploadArtifact обрабатывает POST /projects/{project_id}/artifacts.
// Multipart form: file (обязательно), branch, identifier, bundle_identifier, bundle_version.
func (h *APIHandler) UploadArtifact(w http.ResponseWriter, r *http.Request, projectID router.ProjectID) {
	form, err := service.ParseUploadForm(r)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	a, err := h.artifacts.Upload(r.Context(), service.UploadParams{
		ProjectID:  projectID,
		Form:       form,
		UploadedBy: middleware.UserIDFromContext(r.Context()),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, a)
}

// ListProjectArtifacts обрабатывает GET /projects/{project_id}/artifacts.
// Неизвестный проект — пустой список.
func (h *APIHandler) ListProjectArtifacts(w http.ResponseWriter, r *http.Request, projectID router.ProjectID) {
	groups, err := h.artifacts.ListByProject(r.Context(), projectID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if groups == nil {
		groups = []model.BranchGroup{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// ListArtifacts обрабатывает GET /artifacts.
func (h *APIHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	items, err := h.artifacts.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if items == nil {
		items = []*model.Artifact{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetArtifact обрабатывает GET /artifacts/{id}.
func (h *APIHandler) GetArtifact(w http.ResponseWriter, r *http.Request, id router.ArtifactID) {
	a, err := h.artifacts.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// DownloadArtifact обрабатывает GET и HEAD /artifacts/{id}/download.
// Ошибка пишется, только если ответ ещё не начат.
func (h *APIHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request, id router.ArtifactID) {
	if err := h.downloads.Serve(w, r, id); err != nil {
		h.writeServiceError(w, r, err)
	}
}

// GetArtifactManifest обрабатывает GET /artifacts/{id}/ios-plist.
func (h *APIHandler) GetArtifactManifest(w http.ResponseWriter, r *http.Request, id router.ArtifactID) {
	data, err := h.downloads.Manifest(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", service.ManifestDisposition())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
