// Пакет openapi — встроенное описание HTTP API (OpenAPI 3).
// Документ разбирается и валидируется kin-openapi при первом обращении.
package openapi

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var spec []byte

var (
	loadOnce sync.Once
	loaded   *openapi3.T
	loadErr  error
)

// Load возвращает разобранный и проверенный документ.
func Load() (*openapi3.T, error) {
	loadOnce.Do(func() {
		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromData(spec)
		if err != nil {
			loadErr = fmt.Errorf("разбор openapi.yaml: %w", err)
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			loadErr = fmt.Errorf("валидация openapi.yaml: %w", err)
			return
		}
		loaded = doc
	})
	return loaded, loadErr
}

// Handler отдаёт документ в JSON.
func Handler() (http.Handler, error) {
	doc, err := Load()
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("сериализация OpenAPI: %w", err)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}), nil
}
