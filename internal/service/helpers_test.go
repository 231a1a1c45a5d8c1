package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/events"
	"github.com/bigkaa/opendist/internal/repository"
	"github.com/bigkaa/opendist/internal/storage/blob"
	"github.com/bigkaa/opendist/internal/storage/filestore"
)

const testBaseURL = "https://dist.example.com"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testEnv — сервисы поверх in-memory хранилища и FileStore во временной директории.
type testEnv struct {
	store     *repository.MemoryStore
	files     *filestore.FileStore
	publisher *recordingPublisher
	artifacts *ArtifactService
	downloads *DownloadService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	files, err := filestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return newTestEnvWithBlobs(t, files, files)
}

func newTestEnvWithBlobs(t *testing.T, files *filestore.FileStore, blobs blob.Store) *testEnv {
	t.Helper()

	store := repository.NewMemoryStore()
	store.PutProject(model.Project{ID: "p1", Name: "Demo App"})

	links := NewLinkGenerator(testBaseURL)
	pub := &recordingPublisher{}
	logger := discardLogger()

	artifacts := NewArtifactService(store, NewProjectLookup(store.Projects(), 16, time.Minute), blobs, links, pub, logger)
	artifacts.now = func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }

	return &testEnv{
		store:     store,
		files:     files,
		publisher: pub,
		artifacts: artifacts,
		downloads: NewDownloadService(store, blobs, links, logger),
	}
}

// recordingPublisher запоминает опубликованные события.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ArtifactCreated
	err    error
}

func (p *recordingPublisher) PublishArtifactCreated(_ context.Context, ev events.ArtifactCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() {}

// formPart — часть multipart-тела для тестов.
type formPart struct {
	name        string
	filename    string
	contentType string
	body        string
}

func textPart(name, value string) formPart {
	return formPart{name: name, body: value}
}

func filePart(filename, contentType, body string) formPart {
	return formPart{name: "file", filename: filename, contentType: contentType, body: body}
}

// newUploadRequest собирает POST-запрос с multipart-телом.
func newUploadRequest(t *testing.T, parts ...formPart) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		disposition := `form-data; name="` + p.name + `"`
		if p.filename != "" {
			disposition += `; filename="` + p.filename + `"`
		}
		h.Set("Content-Disposition", disposition)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("ошибка создания части формы: %v", err)
		}
		_, _ = io.WriteString(w, p.body)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("ошибка закрытия формы: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/projects/p1/artifacts", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// parseForm разбирает запрос и завершает тест при ошибке.
func parseForm(t *testing.T, parts ...formPart) *UploadForm {
	t.Helper()
	form, err := ParseUploadForm(newUploadRequest(t, parts...))
	if err != nil {
		t.Fatalf("ParseUploadForm() ошибка: %v", err)
	}
	return form
}

// assertKind проверяет категорию и код ошибки сервиса.
func assertKind(t *testing.T, err error, kind Kind, code string) {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("ожидалась *service.Error, получено %T: %v", err, err)
	}
	if se.Kind != kind {
		t.Errorf("Kind = %d, хотели %d (%v)", se.Kind, kind, err)
	}
	if code != "" && se.Code != code {
		t.Errorf("Code = %s, хотели %s", se.Code, code)
	}
}
