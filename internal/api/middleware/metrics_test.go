package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsMiddleware_RoutePattern проверяет шаблон маршрута в лейбле path.
func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/artifacts/{id}/download", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/artifacts/{id}/download", "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/artifacts/"+id+"/download", nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 3 {
		t.Errorf("прирост счётчика = %v, хотели 3", got)
	}
}

// TestMetricsMiddleware_Unmatched проверяет лейбл для неизвестных путей.
func TestMetricsMiddleware_Unmatched(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/artifacts", func(w http.ResponseWriter, _ *http.Request) {})

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")
	before := testutil.ToFloat64(counter)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Errorf("прирост счётчика = %v, хотели 1", got)
	}
}
