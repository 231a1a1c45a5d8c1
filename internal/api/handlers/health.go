// health.go — обработчики health endpoints open-dist.
// /health/live — liveness-проверка (процесс жив)
// /health/ready — readiness-проверка (хранилище метаданных и файлов доступны)
// /metrics — Prometheus метрики
package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/opendist/internal/config"
)

const serviceName = "open-dist"

// Статусы health check.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	statusFail     = "fail"
)

// ReadinessChecker — интерфейс проверки готовности зависимости.
type ReadinessChecker interface {
	// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
	CheckReady() (status, message string)
}

// CheckerFunc адаптирует функцию проверки (nil — ok) к ReadinessChecker.
type CheckerFunc func() error

// CheckReady реализует ReadinessChecker.
func (f CheckerFunc) CheckReady() (string, string) {
	if err := f(); err != nil {
		return statusFail, err.Error()
	}
	return statusOK, "доступно"
}

// NamedChecker — проверка с именем ключа в ответе readiness.
type NamedChecker struct {
	Name    string
	Checker ReadinessChecker
}

// HealthHandler — обработчик health endpoints.
type HealthHandler struct {
	checkers    []NamedChecker
	promHandler http.Handler
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(checkers ...NamedChecker) *HealthHandler {
	return &HealthHandler{
		checkers:    checkers,
		promHandler: promhttp.Handler(),
	}
}

// healthCheckResult — результат проверки одной зависимости.
type healthCheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// healthLiveResponse — ответ liveness-проверки.
type healthLiveResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
}

// healthReadyResponse — ответ readiness-проверки.
type healthReadyResponse struct {
	Status    string                       `json:"status"`
	Timestamp string                       `json:"timestamp"`
	Version   string                       `json:"version"`
	Service   string                       `json:"service"`
	Checks    map[string]healthCheckResult `json:"checks"`
}

// HealthLive — liveness-проверка. Возвращает 200, если процесс жив.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthLiveResponse{
		Status:    statusOK,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
	})
}

// HealthReady — readiness-проверка. Возвращает 200 (ok/degraded) или 503 (fail).
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	resp := healthReadyResponse{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   config.Version,
		Service:   serviceName,
		Checks:    make(map[string]healthCheckResult, len(h.checkers)),
	}

	statuses := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		status, msg := c.Checker.CheckReady()
		resp.Checks[c.Name] = healthCheckResult{Status: status, Message: msg}
		statuses = append(statuses, status)
	}
	resp.Status = overallStatus(statuses...)

	code := http.StatusOK
	if resp.Status == statusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics — Prometheus метрики.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.promHandler.ServeHTTP(w, r)
}

// overallStatus возвращает худший из статусов проверок.
func overallStatus(statuses ...string) string {
	hasDegraded := false
	for _, s := range statuses {
		if s == statusFail {
			return statusFail
		}
		if s == statusDegraded {
			hasDegraded = true
		}
	}
	if hasDegraded {
		return statusDegraded
	}
	return statusOK
}
