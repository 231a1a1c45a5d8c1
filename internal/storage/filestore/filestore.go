// Пакет filestore — локальное хранилище бинарных файлов артефактов.
// Раскладка: {root}/{project_id}/{branch}/{identifier}.{ext}.
// Запись атомарная: temp файл → fsync → rename.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/storage/blob"
)

// FileStore — управление физическими файлами на диске.
type FileStore struct {
	// root — абсолютный путь корневой директории загрузок (OD_UPLOAD_ROOT)
	root string
}

// New создаёт новый FileStore. Создаёт корневую директорию,
// если она не существует.
func New(root string) (*FileStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("некорректный путь директории загрузок %s: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию загрузок %s: %w", abs, err)
	}
	return &FileStore{root: abs}, nil
}

// Root возвращает путь к корневой директории.
func (fs *FileStore) Root() string {
	return fs.root
}

// Resolve вычисляет путь файла артефакта и создаёт промежуточные директории.
// Повторный вызов для того же кортежа безопасен.
func (fs *FileStore) Resolve(projectID, branch, identifier string, ext model.Extension) (string, error) {
	rel, err := blob.RelativePath(projectID, branch, identifier, ext)
	if err != nil {
		return "", err
	}

	full := filepath.Join(fs.root, filepath.FromSlash(rel))
	if !fs.contains(full) {
		return "", fmt.Errorf("%w: путь %s выходит за пределы директории загрузок", blob.ErrInvalidSegment, rel)
	}

	if err := fs.checkLayout(full); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		// файл мог появиться на месте директории между проверкой и MkdirAll
		if lerr := fs.checkLayout(full); lerr != nil {
			return "", lerr
		}
		return "", fmt.Errorf("ошибка создания директории %s: %w", filepath.Dir(full), err)
	}
	return full, nil
}

// checkLayout отклоняет путь, который пересекается с уже сохранёнными
// артефактами: файл на месте промежуточной директории (ветка a/x.apk
// при существующем a/x.apk) или директория на месте файла.
func (fs *FileStore) checkLayout(full string) error {
	rel, err := filepath.Rel(fs.root, full)
	if err != nil {
		return fmt.Errorf("%w: %s", blob.ErrInvalidSegment, full)
	}

	parts := strings.Split(rel, string(filepath.Separator))
	cur := fs.root
	for i, part := range parts {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("ошибка проверки пути %s: %w", cur, err)
		}
		last := i == len(parts)-1
		if !last && !info.IsDir() {
			return fmt.Errorf("%w: %s уже занят файлом артефакта",
				blob.ErrInvalidSegment, filepath.ToSlash(filepath.Join(parts[:i+1]...)))
		}
		if last && info.IsDir() {
			return fmt.Errorf("%w: %s уже занят директорией ветки",
				blob.ErrInvalidSegment, filepath.ToSlash(rel))
		}
	}
	return nil
}

// Put записывает данные из r в location.
// Паттерн: temp файл в той же директории → запись → fsync → atomic rename.
// Параллельные записи в один location не портят файл: побеждает последний rename.
func (fs *FileStore) Put(ctx context.Context, location string, r io.Reader, size int64, _ string) error {
	if !fs.contains(location) {
		return fmt.Errorf("%w: %s вне директории загрузок", blob.ErrInvalidSegment, location)
	}

	dir := filepath.Dir(location)
	f, err := os.CreateTemp(dir, "."+filepath.Base(location)+".*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	tmpPath := f.Name()

	written, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err == nil && size >= 0 && written != size {
		err = fmt.Errorf("записано %d байт, ожидалось %d", written, size)
	}
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, location); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Open открывает файл на чтение. Body — *os.File (поддерживает Seek).
func (fs *FileStore) Open(_ context.Context, location string) (*blob.Object, error) {
	if !fs.contains(location) {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, location)
	}

	f, err := os.Open(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, location)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", location, err)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения stat файла %s: %w", location, err)
	}

	return &blob.Object{
		Body: f,
		Info: blob.Info{Size: stat.Size(), ModTime: stat.ModTime()},
	}, nil
}

// Stat возвращает размер и время изменения файла.
func (fs *FileStore) Stat(_ context.Context, location string) (*blob.Info, error) {
	if !fs.contains(location) {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, location)
	}

	stat, err := os.Stat(location)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, location)
		}
		return nil, fmt.Errorf("ошибка получения stat файла %s: %w", location, err)
	}
	return &blob.Info{Size: stat.Size(), ModTime: stat.ModTime()}, nil
}

// CheckWritable проверяет, что в корневую директорию можно писать.
// Используется readiness-проверкой.
func (fs *FileStore) CheckWritable() error {
	marker := filepath.Join(fs.root, ".health_check")
	if err := os.WriteFile(marker, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("директория %s недоступна для записи: %w", fs.root, err)
	}
	return os.Remove(marker)
}

// contains проверяет, что путь лежит внутри корневой директории.
func (fs *FileStore) contains(p string) bool {
	rel, err := filepath.Rel(fs.root, filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ctxReader прерывает копирование при отмене контекста запроса.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ blob.Store = (*FileStore)(nil)
