// validator.go — проверка полей загрузки до любых изменений хранилища.
package service

import (
	"strings"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

// Значения по умолчанию для пустых branch и identifier.
const (
	DefaultBranch     = "main"
	DefaultIdentifier = "latest"
)

// ValidatedUpload — загрузка, прошедшая проверку.
type ValidatedUpload struct {
	ProjectID   string
	Branch      string
	Identifier  string
	File        *UploadedFile
	IOSMetadata *model.IOSMetadata
}

// ValidateUpload применяет значения по умолчанию и проверяет:
//   - наличие файла;
//   - bundle_identifier и bundle_version для ipa (для прочих типов отбрасываются);
//   - безопасность project_id, branch и identifier как компонентов пути.
func ValidateUpload(projectID string, form *UploadForm) (*ValidatedUpload, error) {
	if form == nil || form.File == nil {
		return nil, validationError(apierrors.CodeFileMissing, "Отсутствует файл артефакта (поле file)")
	}

	v := &ValidatedUpload{
		ProjectID:  strings.TrimSpace(projectID),
		Branch:     form.Branch,
		Identifier: form.Identifier,
		File:       form.File,
	}
	if v.Branch == "" {
		v.Branch = DefaultBranch
	}
	if v.Identifier == "" {
		v.Identifier = DefaultIdentifier
	}

	if form.File.Extension.IsIOS() {
		if form.BundleIdentifier == "" || form.BundleVersion == "" {
			return nil, validationError(apierrors.CodeInvalidPlatformMetadata,
				"Для ipa обязательны bundle_identifier и bundle_version")
		}
		v.IOSMetadata = &model.IOSMetadata{
			BundleIdentifier: form.BundleIdentifier,
			BundleVersion:    form.BundleVersion,
		}
	}

	checks := []struct {
		field      string
		value      string
		allowSlash bool
	}{
		{"project_id", v.ProjectID, false},
		{"branch", v.Branch, true},
		{"identifier", v.Identifier, false},
	}
	for _, c := range checks {
		if err := blob.ValidateSegment(c.field, c.value, c.allowSlash); err != nil {
			return nil, validationError(apierrors.CodeInvalidPathSegment, err.Error())
		}
	}

	return v, nil
}
