// Пакет blob — общий контракт хранилищ бинарных файлов артефактов
// и правила построения пути root/project_id/branch/identifier.ext.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// ErrNotFound — объект отсутствует в хранилище.
var ErrNotFound = errors.New("объект не найден")

// ErrInvalidSegment — недопустимый компонент пути (project_id, branch, identifier).
var ErrInvalidSegment = errors.New("недопустимый компонент пути")

// Info — атрибуты сохранённого объекта.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Object — открытый на чтение объект. Вызывающий код обязан закрыть его.
// Если Body реализует io.ReadSeeker, объект можно отдавать с поддержкой Range.
type Object struct {
	Body io.ReadCloser
	Info
}

// Store — хранилище бинарных файлов.
type Store interface {
	// Resolve вычисляет место хранения для кортежа артефакта.
	// Локальная реализация создаёт недостающие директории. Вызов идемпотентен.
	Resolve(projectID, branch, identifier string, ext model.Extension) (string, error)
	// Put записывает size байт из r по пути, полученному от Resolve.
	// Существующий объект молча перезаписывается.
	Put(ctx context.Context, location string, r io.Reader, size int64, contentType string) error
	// Open открывает объект на чтение. ErrNotFound, если объекта нет.
	Open(ctx context.Context, location string) (*Object, error)
	// Stat возвращает атрибуты объекта. ErrNotFound, если объекта нет.
	Stat(ctx context.Context, location string) (*Info, error)
}

// RelativePath строит относительный путь project_id/branch/identifier.ext
// (разделитель "/"). Ветка может содержать "/" (feature/login), остальные
// компоненты не могут.
func RelativePath(projectID, branch, identifier string, ext model.Extension) (string, error) {
	if err := ValidateSegment("project_id", projectID, false); err != nil {
		return "", err
	}
	if err := ValidateSegment("branch", branch, true); err != nil {
		return "", err
	}
	if err := ValidateSegment("identifier", identifier, false); err != nil {
		return "", err
	}
	if _, ok := model.ParseExtension(string(ext)); !ok {
		return "", fmt.Errorf("%w: неизвестное расширение %q", ErrInvalidSegment, ext)
	}

	name := identifier + "." + strings.ToLower(ext.String())
	return path.Join(projectID, branch, name), nil
}

// ValidateSegment проверяет, что значение безопасно использовать как часть пути.
// allowSlash разрешает вложенность через "/", каждая часть проверяется отдельно.
func ValidateSegment(field, value string, allowSlash bool) error {
	if value == "" {
		return fmt.Errorf("%w: %s не может быть пустым", ErrInvalidSegment, field)
	}
	if strings.ContainsAny(value, "\\\x00") {
		return fmt.Errorf("%w: %s содержит недопустимые символы", ErrInvalidSegment, field)
	}

	parts := []string{value}
	if allowSlash {
		parts = strings.Split(value, "/")
	} else if strings.Contains(value, "/") {
		return fmt.Errorf("%w: %s не может содержать '/'", ErrInvalidSegment, field)
	}

	for _, p := range parts {
		switch p {
		case "":
			return fmt.Errorf("%w: %s содержит пустой компонент", ErrInvalidSegment, field)
		case ".", "..":
			return fmt.Errorf("%w: %s не может содержать %q", ErrInvalidSegment, field, p)
		}
	}
	return nil
}
