// Пакет model — доменные модели open-dist.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Extension — тип бинарного файла артефакта.
type Extension string

const (
	// ExtensionAPK — Android package.
	ExtensionAPK Extension = "apk"
	// ExtensionAAB — Android app bundle.
	ExtensionAAB Extension = "aab"
	// ExtensionIPA — iOS package.
	ExtensionIPA Extension = "ipa"
)

// TimestampPrecision — точность created_at во всех хранилищах
// (MySQL datetime(3) хранит миллисекунды).
const TimestampPrecision = time.Millisecond

// Timestamp приводит момент времени к UTC и точности хранилищ.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// ClassifyFilename определяет тип артефакта по трём последним символам
// имени файла без учёта регистра. Всё, что не apk и не ipa (включая имена
// короче трёх символов), считается aab.
func ClassifyFilename(filename string) Extension {
	if len(filename) < 3 {
		return ExtensionAAB
	}
	switch strings.ToLower(filename[len(filename)-3:]) {
	case "apk":
		return ExtensionAPK
	case "ipa":
		return ExtensionIPA
	default:
		return ExtensionAAB
	}
}

// ParseExtension проверяет строковое значение из хранилища.
func ParseExtension(s string) (Extension, bool) {
	switch e := Extension(strings.ToLower(s)); e {
	case ExtensionAPK, ExtensionAAB, ExtensionIPA:
		return e, true
	default:
		return "", false
	}
}

// IsIOS возвращает true для iOS package.
func (e Extension) IsIOS() bool {
	return e == ExtensionIPA
}

// String возвращает расширение в нижнем регистре.
func (e Extension) String() string {
	return string(e)
}

// IOSMetadata — обязательные для ipa поля OTA-манифеста.
type IOSMetadata struct {
	BundleIdentifier string `json:"bundle_identifier"`
	BundleVersion    string `json:"bundle_version"`
}

// Artifact — загруженный бинарный файл и его метаданные.
type Artifact struct {
	ID               uuid.UUID    `json:"id"`
	ProjectID        string       `json:"project_id"`
	Branch           string       `json:"branch"`
	Identifier       string       `json:"identifier"`
	Extension        Extension    `json:"extension"`
	OriginalFilename string       `json:"original_filename"`
	MimeType         string       `json:"mime_type"`
	Size             int64        `json:"size"`
	Path             string       `json:"path"`
	IOSMetadata      *IOSMetadata `json:"ios_metadata"`
	// QRCode — data URI с SVG-изображением QR-кода ссылки установки.
	QRCode     *string   `json:"qrcode"`
	UploadedBy string    `json:"uploaded_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary — сокращённое представление артефакта для списка по проекту
// (без path, size и mime_type).
type Summary struct {
	ID               uuid.UUID    `json:"id"`
	Extension        Extension    `json:"extension"`
	CreatedAt        time.Time    `json:"created_at"`
	Branch           string       `json:"branch"`
	OriginalFilename string       `json:"original_filename"`
	Identifier       string       `json:"identifier"`
	IOSMetadata      *IOSMetadata `json:"ios_metadata"`
	QRCode           *string      `json:"qrcode"`
}

// Summary возвращает сокращённое представление артефакта.
func (a *Artifact) Summary() Summary {
	return Summary{
		ID:               a.ID,
		Extension:        a.Extension,
		CreatedAt:        a.CreatedAt,
		Branch:           a.Branch,
		OriginalFilename: a.OriginalFilename,
		Identifier:       a.Identifier,
		IOSMetadata:      a.IOSMetadata,
		QRCode:           a.QRCode,
	}
}

// BranchGroup — артефакты одной ветки, упорядоченные по created_at.
type BranchGroup struct {
	Branch    string    `json:"branch"`
	Artifacts []Summary `json:"artifacts"`
}

// Project — внешний проект (только чтение).
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
