package service

import (
	"testing"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
)

func apkFile() *UploadedFile {
	return &UploadedFile{Filename: "app.apk", ContentType: "application/octet-stream", Extension: model.ExtensionAPK, Data: []byte("x")}
}

func ipaFile() *UploadedFile {
	return &UploadedFile{Filename: "app.ipa", ContentType: "application/octet-stream", Extension: model.ExtensionIPA, Data: []byte("x")}
}

// TestValidateUpload_Defaults проверяет значения по умолчанию branch и identifier.
func TestValidateUpload_Defaults(t *testing.T) {
	v, err := ValidateUpload("p1", &UploadForm{File: apkFile()})
	if err != nil {
		t.Fatalf("ValidateUpload() ошибка: %v", err)
	}
	if v.Branch != DefaultBranch || v.Identifier != DefaultIdentifier {
		t.Errorf("branch/identifier = %q/%q, хотели main/latest", v.Branch, v.Identifier)
	}
}

// TestValidateUpload_IOS проверяет обязательные поля для ipa.
func TestValidateUpload_IOS(t *testing.T) {
	tests := []struct {
		name    string
		form    *UploadForm
		wantErr bool
	}{
		{"оба поля", &UploadForm{File: ipaFile(), BundleIdentifier: "com.demo", BundleVersion: "1"}, false},
		{"нет bundle_version", &UploadForm{File: ipaFile(), BundleIdentifier: "com.demo"}, true},
		{"нет bundle_identifier", &UploadForm{File: ipaFile(), BundleVersion: "1"}, true},
		{"нет обоих", &UploadForm{File: ipaFile()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValidateUpload("p1", tt.form)
			if tt.wantErr {
				assertKind(t, err, KindValidation, apierrors.CodeInvalidPlatformMetadata)
				return
			}
			if err != nil {
				t.Fatalf("ValidateUpload() ошибка: %v", err)
			}
			if v.IOSMetadata == nil || v.IOSMetadata.BundleIdentifier != "com.demo" || v.IOSMetadata.BundleVersion != "1" {
				t.Errorf("IOSMetadata = %+v", v.IOSMetadata)
			}
		})
	}
}

// TestValidateUpload_DiscardsIOSForAndroid проверяет отбрасывание iOS-полей для apk.
func TestValidateUpload_DiscardsIOSForAndroid(t *testing.T) {
	v, err := ValidateUpload("p1", &UploadForm{File: apkFile(), BundleIdentifier: "com.demo", BundleVersion: "1"})
	if err != nil {
		t.Fatalf("ValidateUpload() ошибка: %v", err)
	}
	if v.IOSMetadata != nil {
		t.Error("IOSMetadata должна быть nil для apk")
	}
}

// TestValidateUpload_FileMissing проверяет отсутствие файла.
func TestValidateUpload_FileMissing(t *testing.T) {
	_, err := ValidateUpload("p1", &UploadForm{Branch: "main"})
	assertKind(t, err, KindValidation, apierrors.CodeFileMissing)

	_, err = ValidateUpload("p1", nil)
	assertKind(t, err, KindValidation, apierrors.CodeFileMissing)
}

// TestValidateUpload_PathSegments проверяет небезопасные компоненты пути.
func TestValidateUpload_PathSegments(t *testing.T) {
	tests := []struct {
		name       string
		projectID  string
		branch     string
		identifier string
	}{
		{"project_id ..", "..", "main", "x"},
		{"project_id со слэшем", "a/b", "main", "x"},
		{"branch с ..", "p1", "feature/../../etc", "x"},
		{"identifier со слэшем", "p1", "main", "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := &UploadForm{File: apkFile(), Branch: tt.branch, Identifier: tt.identifier}
			_, err := ValidateUpload(tt.projectID, form)
			assertKind(t, err, KindValidation, apierrors.CodeInvalidPathSegment)
		})
	}
}
