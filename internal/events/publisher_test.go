package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestNopPublisher проверяет, что заглушка не возвращает ошибок.
func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	if err := p.PublishArtifactCreated(context.Background(), ArtifactCreated{ID: uuid.New()}); err != nil {
		t.Errorf("PublishArtifactCreated() ошибка: %v", err)
	}
	p.Close()
}

// TestNewNATSPublisher_Errors проверяет ошибки конфигурации и подключения.
func TestNewNATSPublisher_Errors(t *testing.T) {
	if _, err := NewNATSPublisher("nats://127.0.0.1:4222", "", discardLogger()); err == nil {
		t.Error("ожидалась ошибка при пустом subject")
	}

	_, err := NewNATSPublisher("nats://127.0.0.1:1", "artifacts.created", discardLogger(),
		nats.Timeout(500*time.Millisecond))
	if err == nil {
		t.Error("ожидалась ошибка подключения к недоступному NATS")
	}
}

// TestArtifactCreated_JSON проверяет имена полей события.
func TestArtifactCreated_JSON(t *testing.T) {
	ev := ArtifactCreated{
		ID:         uuid.MustParse("7f0c7a52-3d43-4a4e-9b7e-0d2b1c2a9f10"),
		ProjectID:  "p1",
		Branch:     "main",
		Identifier: "1.0.0",
		Extension:  "apk",
		Size:       10,
		CreatedAt:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		InstallURL: "https://dist.example.com/artifacts/7f0c7a52-3d43-4a4e-9b7e-0d2b1c2a9f10/download",
	}

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("ошибка сериализации: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("ошибка разбора: %v", err)
	}
	for _, key := range []string{"id", "project_id", "branch", "identifier", "extension", "size", "created_at", "install_url"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("в событии нет поля %s", key)
		}
	}
}
