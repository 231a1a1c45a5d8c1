// receiver.go — разбор multipart-запроса загрузки артефакта.
package service

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
	"github.com/bigkaa/opendist/internal/domain/model"
)

// maxTextFieldSize — лимит размера текстового поля формы.
const maxTextFieldSize = 4 << 10

// Имена полей multipart-формы загрузки.
const (
	fieldBranch           = "branch"
	fieldIdentifier       = "identifier"
	fieldBundleIdentifier = "bundle_identifier"
	fieldBundleVersion    = "bundle_version"
	fieldFile             = "file"
)

// UploadedFile — бинарный файл из формы, целиком в памяти.
type UploadedFile struct {
	Filename    string
	ContentType string
	Extension   model.Extension
	Data        []byte
}

// UploadForm — типизированные поля формы загрузки.
// Текстовые поля обрезаны по пробелам; File == nil, если часть file отсутствует.
type UploadForm struct {
	Branch           string
	Identifier       string
	BundleIdentifier string
	BundleVersion    string
	File             *UploadedFile
}

// ParseUploadForm читает multipart-тело запроса потоково.
// Размер тела ограничивается выше по цепочке (http.MaxBytesReader);
// превышение лимита возвращается как KindTooLarge.
func ParseUploadForm(r *http.Request) (*UploadForm, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, validationError(apierrors.CodeValidationError,
			fmt.Sprintf("Ожидается multipart/form-data: %v", err))
	}

	form := &UploadForm{}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, readError(err)
		}

		err = form.readPart(part.FormName(), part.FileName(), part.Header.Get("Content-Type"), part)
		part.Close()
		if err != nil {
			return nil, err
		}
	}
	return form, nil
}

// readPart разбирает одну часть формы. Неизвестные части вычитываются и игнорируются.
func (f *UploadForm) readPart(name, filename, contentType string, body io.Reader) error {
	var dst *string
	switch name {
	case fieldBranch:
		dst = &f.Branch
	case fieldIdentifier:
		dst = &f.Identifier
	case fieldBundleIdentifier:
		dst = &f.BundleIdentifier
	case fieldBundleVersion:
		dst = &f.BundleVersion
	case fieldFile:
		return f.readFile(filename, contentType, body)
	default:
		if _, err := io.Copy(io.Discard, body); err != nil {
			return readError(err)
		}
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(body, maxTextFieldSize+1))
	if err != nil {
		return readError(err)
	}
	if len(data) > maxTextFieldSize {
		return validationError(apierrors.CodeValidationError,
			fmt.Sprintf("Поле %s превышает %d байт", name, maxTextFieldSize))
	}
	*dst = strings.TrimSpace(string(data))
	return nil
}

func (f *UploadForm) readFile(filename, contentType string, body io.Reader) error {
	if f.File != nil {
		return validationError(apierrors.CodeValidationError, "Поле file передано более одного раза")
	}
	if filename == "" {
		return validationError(apierrors.CodeValidationError, "У поля file отсутствует имя файла")
	}
	if contentType == "" {
		return validationError(apierrors.CodeValidationError, "У поля file отсутствует Content-Type")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return readError(err)
	}

	f.File = &UploadedFile{
		Filename:    filename,
		ContentType: contentType,
		Extension:   model.ClassifyFilename(filename),
		Data:        data,
	}
	return nil
}

// readError различает превышение лимита тела и повреждённый multipart.
func readError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return tooLargeError(err)
	}
	return validationError(apierrors.CodeValidationError,
		fmt.Sprintf("Некорректное multipart-тело: %v", err))
}
