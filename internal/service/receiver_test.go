package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
)

// TestParseUploadForm проверяет разбор полей и классификацию файла.
func TestParseUploadForm(t *testing.T) {
	form := parseForm(t,
		textPart("branch", "  feature/login \n"),
		textPart("identifier", "1.0.0"),
		textPart("unknown", "игнорируется"),
		textPart("bundle_identifier", "com.demo.app"),
		textPart("bundle_version", "42"),
		filePart("Demo.IPA", "application/octet-stream", "ipa-bytes"),
	)

	if form.Branch != "feature/login" {
		t.Errorf("Branch = %q, хотели feature/login", form.Branch)
	}
	if form.Identifier != "1.0.0" {
		t.Errorf("Identifier = %q", form.Identifier)
	}
	if form.BundleIdentifier != "com.demo.app" || form.BundleVersion != "42" {
		t.Errorf("iOS поля = %q, %q", form.BundleIdentifier, form.BundleVersion)
	}
	if form.File == nil {
		t.Fatal("File = nil")
	}
	if form.File.Extension != model.ExtensionIPA {
		t.Errorf("Extension = %s, хотели ipa", form.File.Extension)
	}
	if form.File.Filename != "Demo.IPA" || form.File.ContentType != "application/octet-stream" {
		t.Errorf("файл = %q (%q)", form.File.Filename, form.File.ContentType)
	}
	if string(form.File.Data) != "ipa-bytes" {
		t.Errorf("Data = %q", form.File.Data)
	}
}

// TestParseUploadForm_ShortFilename проверяет, что короткое имя классифицируется как aab.
func TestParseUploadForm_ShortFilename(t *testing.T) {
	form := parseForm(t, filePart("ab", "application/octet-stream", "x"))
	if form.File.Extension != model.ExtensionAAB {
		t.Errorf("Extension = %s, хотели aab", form.File.Extension)
	}
}

// TestParseUploadForm_NoFile проверяет форму без файла.
func TestParseUploadForm_NoFile(t *testing.T) {
	form := parseForm(t, textPart("branch", "main"))
	if form.File != nil {
		t.Error("File должен быть nil")
	}
}

// TestParseUploadForm_Errors проверяет ошибки разбора.
func TestParseUploadForm_Errors(t *testing.T) {
	tests := []struct {
		name  string
		parts []formPart
	}{
		{"файл без Content-Type", []formPart{filePart("app.apk", "", "x")}},
		{"файл дважды", []formPart{
			filePart("a.apk", "application/octet-stream", "x"),
			filePart("b.apk", "application/octet-stream", "y"),
		}},
		{"слишком длинное текстовое поле", []formPart{textPart("branch", strings.Repeat("b", maxTextFieldSize+1))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUploadForm(newUploadRequest(t, tt.parts...))
			assertKind(t, err, KindValidation, apierrors.CodeValidationError)
		})
	}
}

// TestParseUploadForm_FileWithoutFilename проверяет часть file без имени файла.
func TestParseUploadForm_FileWithoutFilename(t *testing.T) {
	req := newUploadRequest(t, formPart{name: "file", contentType: "application/octet-stream", body: "x"})
	_, err := ParseUploadForm(req)
	assertKind(t, err, KindValidation, apierrors.CodeValidationError)
}

// TestParseUploadForm_NotMultipart проверяет тело не в формате multipart.
func TestParseUploadForm_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/projects/p1/artifacts", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")

	_, err := ParseUploadForm(req)
	assertKind(t, err, KindValidation, apierrors.CodeValidationError)
}

// TestParseUploadForm_TooLarge проверяет превышение лимита http.MaxBytesReader.
func TestParseUploadForm_TooLarge(t *testing.T) {
	req := newUploadRequest(t, filePart("app.apk", "application/octet-stream", strings.Repeat("x", 4096)))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 1024)

	_, err := ParseUploadForm(req)
	assertKind(t, err, KindTooLarge, apierrors.CodeFileTooLarge)
}
