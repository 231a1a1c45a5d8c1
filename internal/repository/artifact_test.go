package repository

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/opendist/internal/config"
	"github.com/bigkaa/opendist/internal/database"
)

// setupTestDB запускает PostgreSQL контейнер и применяет миграции.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("opendist_test"),
		postgres.WithUsername("opendist"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	mapped, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}
	port, _ := strconv.Atoi(mapped.Port())

	cfg := &config.Config{
		DBHost:     host,
		DBPort:     port,
		DBName:     "opendist_test",
		DBUser:     "opendist",
		DBPassword: "test-password",
		DBSSLMode:  "disable",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка применения миграций: %v", err)
	}

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}

// TestPostgresStore проверяет PostgreSQL-реализацию общим контрактом.
// Один контейнер на весь тест, таблицы очищаются перед каждым подтестом.
func TestPostgresStore(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()

	runStoreContract(t, func(t *testing.T) (ArtifactStore, ProjectStore) {
		t.Helper()
		if _, err := pool.Exec(ctx, `TRUNCATE artifacts, projects`); err != nil {
			t.Fatalf("Ошибка очистки таблиц: %v", err)
		}
		if _, err := pool.Exec(ctx,
			`INSERT INTO projects (id, name) VALUES ($1, $2)`, testProjectID, "Demo App"); err != nil {
			t.Fatalf("Ошибка создания проекта: %v", err)
		}
		return NewArtifactRepository(pool), NewProjectRepository(pool)
	})
}

// TestPostgresStore_IOSConstraint проверяет ограничение БД:
// ios_metadata обязательна для ipa и запрещена для остальных.
func TestPostgresStore_IOSConstraint(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewArtifactRepository(pool)

	ipa := newArtifact("main", "x", "ipa", fixedTime)
	ipa.IOSMetadata = nil
	if _, err := repo.Create(ctx, ipa); err == nil {
		t.Error("ожидалась ошибка для ipa без ios_metadata")
	}

	apk := newArtifact("main", "y", "apk", fixedTime)
	apk.IOSMetadata = newArtifact("main", "z", "ipa", fixedTime).IOSMetadata
	if _, err := repo.Create(ctx, apk); err == nil {
		t.Error("ожидалась ошибка для apk с ios_metadata")
	}
}
