package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"howett.net/plist"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

func uploadTestArtifact(t *testing.T, env *testEnv, parts ...formPart) *model.Artifact {
	t.Helper()
	a, err := env.artifacts.Upload(context.Background(), UploadParams{ProjectID: "p1", Form: parseForm(t, parts...)})
	if err != nil {
		t.Fatalf("Upload() ошибка: %v", err)
	}
	return a
}

// TestServe_GET проверяет отдачу файла с заголовками.
func TestServe_GET(t *testing.T) {
	env := newTestEnv(t)
	a := uploadTestArtifact(t, env, filePart("app-release.apk", "application/vnd.android.package-archive", "apk-bytes"))

	req := httptest.NewRequest(http.MethodGet, "/artifacts/"+a.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	if err := env.downloads.Serve(rec, req, a.ID); err != nil {
		t.Fatalf("Serve() ошибка: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, хотели 200", rec.Code)
	}
	if rec.Body.String() != "apk-bytes" {
		t.Errorf("тело = %q", rec.Body.String())
	}
	h := rec.Header()
	if h.Get("Content-Type") != "application/vnd.android.package-archive" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}
	if h.Get("Content-Length") != "9" {
		t.Errorf("Content-Length = %q", h.Get("Content-Length"))
	}
	if h.Get("Content-Disposition") != "attachment; filename=app-release.apk" {
		t.Errorf("Content-Disposition = %q", h.Get("Content-Disposition"))
	}
}

// TestServe_Range проверяет частичную отдачу локального файла.
func TestServe_Range(t *testing.T) {
	env := newTestEnv(t)
	a := uploadTestArtifact(t, env, filePart("app.apk", "application/octet-stream", "0123456789"))

	req := httptest.NewRequest(http.MethodGet, "/artifacts/"+a.ID.String()+"/download", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	if err := env.downloads.Serve(rec, req, a.ID); err != nil {
		t.Fatalf("Serve() ошибка: %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("статус = %d, хотели 206", rec.Code)
	}
	if rec.Body.String() != "234" {
		t.Errorf("тело = %q, хотели 234", rec.Body.String())
	}
}

// TestServe_HEAD проверяет заголовки без тела.
func TestServe_HEAD(t *testing.T) {
	env := newTestEnv(t)
	a := uploadTestArtifact(t, env, filePart("app.aab", "application/octet-stream", "aab-bytes"))

	req := httptest.NewRequest(http.MethodHead, "/artifacts/"+a.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	if err := env.downloads.Serve(rec, req, a.ID); err != nil {
		t.Fatalf("Serve() ошибка: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Error("HEAD не должен возвращать тело")
	}
	if rec.Header().Get("Content-Length") != "9" {
		t.Errorf("Content-Length = %q", rec.Header().Get("Content-Length"))
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

// TestServe_NotFound проверяет 404 для неизвестного id и отсутствующего файла.
func TestServe_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/artifacts/x/download", nil)
	err := env.downloads.Serve(httptest.NewRecorder(), req, linkID)
	assertKind(t, err, KindNotFound, apierrors.CodeNotFound)

	a := uploadTestArtifact(t, env, filePart("app.apk", "application/octet-stream", "x"))
	if err := os.Remove(a.Path); err != nil {
		t.Fatalf("ошибка удаления файла: %v", err)
	}
	err = env.downloads.Serve(httptest.NewRecorder(), req, a.ID)
	assertKind(t, err, KindNotFound, apierrors.CodeNotFound)
}

// streamingBlobs отдаёт тело без поддержки Seek (как S3).
type streamingBlobs struct {
	blob.Store
}

func (s streamingBlobs) Open(ctx context.Context, location string) (*blob.Object, error) {
	obj, err := s.Store.Open(ctx, location)
	if err != nil {
		return nil, err
	}
	return &blob.Object{Body: io.NopCloser(obj.Body), Info: obj.Info}, nil
}

// TestServe_Streaming проверяет потоковую отдачу тела без Seek.
func TestServe_Streaming(t *testing.T) {
	base := newTestEnv(t)
	env := newTestEnvWithBlobs(t, base.files, streamingBlobs{Store: base.files})
	a := uploadTestArtifact(t, env, filePart("app.apk", "application/octet-stream", "stream-bytes"))

	req := httptest.NewRequest(http.MethodGet, "/artifacts/"+a.ID.String()+"/download", nil)
	rec := httptest.NewRecorder()
	if err := env.downloads.Serve(rec, req, a.ID); err != nil {
		t.Fatalf("Serve() ошибка: %v", err)
	}
	if rec.Body.String() != "stream-bytes" || rec.Header().Get("Content-Length") != "12" {
		t.Errorf("тело = %q, Content-Length = %q", rec.Body.String(), rec.Header().Get("Content-Length"))
	}
}

// TestManifest проверяет OTA-манифест ipa-артефакта.
func TestManifest(t *testing.T) {
	env := newTestEnv(t)
	a := uploadTestArtifact(t, env,
		textPart("bundle_identifier", "com.demo.app"),
		textPart("bundle_version", "7"),
		filePart("Demo.ipa", "application/octet-stream", "ipa"),
	)

	data, err := env.downloads.Manifest(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Manifest() ошибка: %v", err)
	}

	var m otaManifest
	if _, err := plist.Unmarshal(data, &m); err != nil {
		t.Fatalf("ошибка разбора plist: %v", err)
	}
	wantURL := testBaseURL + "/artifacts/" + a.ID.String() + "/download"
	if m.Items[0].Assets[0].URL != wantURL {
		t.Errorf("url = %q, хотели %q", m.Items[0].Assets[0].URL, wantURL)
	}
	if m.Items[0].Metadata.Title != "Demo App" || m.Items[0].Metadata.BundleVersion != "7" {
		t.Errorf("metadata = %+v", m.Items[0].Metadata)
	}
	if ManifestDisposition() != "attachment; filename=ios.plist" {
		t.Errorf("ManifestDisposition() = %q", ManifestDisposition())
	}
}

// TestManifest_Errors проверяет ошибки построения манифеста.
func TestManifest_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.downloads.Manifest(ctx, linkID)
	assertKind(t, err, KindNotFound, apierrors.CodeNotFound)

	apk := uploadTestArtifact(t, env, filePart("app.apk", "application/octet-stream", "x"))
	_, err = env.downloads.Manifest(ctx, apk.ID)
	assertKind(t, err, KindValidation, apierrors.CodeInvalidPlatformMetadata)

	// Проект удалён из внешней системы после загрузки
	orphan := *apk
	orphan.ID = linkID
	orphan.ProjectID = "gone"
	if _, err := env.store.Create(ctx, &orphan); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	_, err = env.downloads.Manifest(ctx, orphan.ID)
	assertKind(t, err, KindNotFound, apierrors.CodeNotFound)
}
