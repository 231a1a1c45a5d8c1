// errors.go — типизированные ошибки сервисного слоя.
// Handlers отображают Kind в HTTP-статус и пишут конверт apierrors.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/opendist/internal/api/errors"
)

// Kind — категория ошибки.
type Kind int

const (
	// KindValidation — некорректные входные данные (400).
	KindValidation Kind = iota + 1
	// KindTooLarge — тело запроса превышает лимит (413).
	KindTooLarge
	// KindNotFound — артефакт, проект или файл не найден (404).
	KindNotFound
	// KindStorage — сбой хранилища метаданных или файлов (500).
	KindStorage
	// KindEncoding — не удалось построить QR-код или манифест (422).
	KindEncoding
)

// Error — ошибка бизнес-логики с машиночитаемым кодом.
// Message показывается клиенту, Err — внутренняя причина (только в лог).
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode возвращает HTTP-статус для категории ошибки.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindNotFound:
		return http.StatusNotFound
	case KindEncoding:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// AsError извлекает *Error из цепочки. Прочие ошибки считаются сбоем хранилища.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return storageError(err)
}

func validationError(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func tooLargeError(err error) *Error {
	return &Error{
		Kind:    KindTooLarge,
		Code:    apierrors.CodeFileTooLarge,
		Message: "Размер запроса превышает допустимый лимит",
		Err:     err,
	}
}

func notFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Code: apierrors.CodeNotFound, Message: message}
}

// storageError скрывает причину от клиента: сообщение всегда общее.
func storageError(err error) *Error {
	return &Error{
		Kind:    KindStorage,
		Code:    apierrors.CodeInternalError,
		Message: "Внутренняя ошибка хранилища",
		Err:     err,
	}
}

func encodingError(message string, err error) *Error {
	return &Error{Kind: KindEncoding, Code: apierrors.CodeEncodingError, Message: message, Err: err}
}
