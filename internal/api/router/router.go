// Пакет router — маршруты HTTP API open-dist в стиле oapi-codegen chi-server:
// ServerInterface + обёртка, связывающая path-параметры через oapi-codegen/runtime.
// Лимит тела задаётся на уровне маршрута (RequestSize).
package router

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
)

// ProjectID — идентификатор проекта в пути.
type ProjectID = string

// ArtifactID — идентификатор артефакта в пути.
type ArtifactID = openapi_types.UUID

// ServerInterface — обработчики всех маршрутов API.
type ServerInterface interface {
	// (POST /projects/{project_id}/artifacts)
	UploadArtifact(w http.ResponseWriter, r *http.Request, projectID ProjectID)
	// (GET /projects/{project_id}/artifacts)
	ListProjectArtifacts(w http.ResponseWriter, r *http.Request, projectID ProjectID)
	// (GET /artifacts)
	ListArtifacts(w http.ResponseWriter, r *http.Request)
	// (GET /artifacts/{id})
	GetArtifact(w http.ResponseWriter, r *http.Request, id ArtifactID)
	// (GET, HEAD /artifacts/{id}/download)
	DownloadArtifact(w http.ResponseWriter, r *http.Request, id ArtifactID)
	// (GET /artifacts/{id}/ios-plist)
	GetArtifactManifest(w http.ResponseWriter, r *http.Request, id ArtifactID)
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)
	// (GET /openapi.json)
	GetOpenAPI(w http.ResponseWriter, r *http.Request)
}

// MiddlewareFunc — middleware отдельного маршрута.
type MiddlewareFunc func(http.Handler) http.Handler

// InvalidParamFormatError — path-параметр не удалось разобрать.
type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Некорректный формат параметра %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

// Options — параметры монтирования маршрутов.
type Options struct {
	// ArtifactMaxBodySize — лимит тела загрузки артефакта.
	ArtifactMaxBodySize int64
	// MaxBodySize — лимит тела для остальных маршрутов.
	MaxBodySize int64
	// UploadMiddlewares — JWT, rate limit и т.п., только для загрузки.
	UploadMiddlewares []MiddlewareFunc
	// ErrorHandlerFunc вызывается при ошибке разбора параметров.
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// ServerInterfaceWrapper разбирает параметры и вызывает ServerInterface.
type ServerInterfaceWrapper struct {
	Handler          ServerInterface
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// UploadArtifact operation middleware
func (siw *ServerInterfaceWrapper) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	siw.Handler.UploadArtifact(w, r, chi.URLParam(r, "project_id"))
}

// ListProjectArtifacts operation middleware
func (siw *ServerInterfaceWrapper) ListProjectArtifacts(w http.ResponseWriter, r *http.Request) {
	siw.Handler.ListProjectArtifacts(w, r, chi.URLParam(r, "project_id"))
}

// ListArtifacts operation middleware
func (siw *ServerInterfaceWrapper) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	siw.Handler.ListArtifacts(w, r)
}

// GetArtifact operation middleware
func (siw *ServerInterfaceWrapper) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.GetArtifact(w, r, id)
}

// DownloadArtifact operation middleware
func (siw *ServerInterfaceWrapper) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.DownloadArtifact(w, r, id)
}

// GetArtifactManifest operation middleware
func (siw *ServerInterfaceWrapper) GetArtifactManifest(w http.ResponseWriter, r *http.Request) {
	id, ok := siw.bindID(w, r)
	if !ok {
		return
	}
	siw.Handler.GetArtifactManifest(w, r, id)
}

// bindID разбирает {id} как UUID.
func (siw *ServerInterfaceWrapper) bindID(w http.ResponseWriter, r *http.Request) (ArtifactID, bool) {
	var id ArtifactID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "id", Err: err})
		return id, false
	}
	return id, true
}

// HandlerWithOptions монтирует маршруты ServerInterface на router.
func HandlerWithOptions(si ServerInterface, r chi.Router, opts Options) http.Handler {
	if opts.ErrorHandlerFunc == nil {
		opts.ErrorHandlerFunc = func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:          si,
		ErrorHandlerFunc: opts.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.RequestSize(opts.ArtifactMaxBodySize))
		for _, mw := range opts.UploadMiddlewares {
			r.Use(mw)
		}
		r.Post("/projects/{project_id}/artifacts", wrapper.UploadArtifact)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimw.RequestSize(opts.MaxBodySize))
		r.Get("/projects/{project_id}/artifacts", wrapper.ListProjectArtifacts)
		r.Get("/artifacts", wrapper.ListArtifacts)
		r.Get("/artifacts/{id}", wrapper.GetArtifact)
		r.Get("/artifacts/{id}/download", wrapper.DownloadArtifact)
		r.Head("/artifacts/{id}/download", wrapper.DownloadArtifact)
		r.Get("/artifacts/{id}/ios-plist", wrapper.GetArtifactManifest)
		r.Get("/health/live", si.HealthLive)
		r.Get("/health/ready", si.HealthReady)
		r.Get("/metrics", si.GetMetrics)
		r.Get("/openapi.json", si.GetOpenAPI)
	})

	return r
}
