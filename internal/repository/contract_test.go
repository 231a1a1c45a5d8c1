package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// testProjectID — проект, который каждая фабрика хранилища обязана создать.
const testProjectID = "p1"

// storeFactory создаёт пустое хранилище с проектом testProjectID ("Demo App").
type storeFactory func(t *testing.T) (ArtifactStore, ProjectStore)

func strPtr(s string) *string { return &s }

func newArtifact(branch, identifier string, ext model.Extension, createdAt time.Time) *model.Artifact {
	a := &model.Artifact{
		ID:               uuid.New(),
		ProjectID:        testProjectID,
		Branch:           branch,
		Identifier:       identifier,
		Extension:        ext,
		OriginalFilename: identifier + "." + ext.String(),
		MimeType:         "application/octet-stream",
		Size:             42,
		Path:             "/data/" + testProjectID + "/" + branch + "/" + identifier + "." + ext.String(),
		QRCode:           strPtr("data:image/svg+xml;base64,AAAA"),
		CreatedAt:        createdAt,
	}
	if ext.IsIOS() {
		a.IOSMetadata = &model.IOSMetadata{BundleIdentifier: "com.demo.app", BundleVersion: "1.2.3"}
	}
	return a
}

// runStoreContract проверяет общее поведение всех реализаций ArtifactStore.
func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create и get", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "1.0.0", model.ExtensionIPA, base)

		created, err := store.Create(ctx, a)
		if err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
		if created.ID != a.ID {
			t.Errorf("Create() вернул id %s, хотели %s", created.ID, a.ID)
		}

		got, err := store.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
		assertArtifactEqual(t, got, a)
	})

	t.Run("create возвращает сохранённый created_at", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "precise", model.ExtensionAPK,
			time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC))

		created, err := store.Create(ctx, a)
		if err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
		got, err := store.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
		if !created.CreatedAt.Equal(got.CreatedAt) {
			t.Errorf("Create() вернул %v, Get() вернул %v", created.CreatedAt, got.CreatedAt)
		}
		if want := model.Timestamp(a.CreatedAt); !got.CreatedAt.Equal(want) {
			t.Errorf("created_at = %v, хотели %v", got.CreatedAt, want)
		}
	})

	t.Run("get неизвестного id", func(t *testing.T) {
		store, _ := factory(t)
		if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() ошибка = %v, хотели ErrNotFound", err)
		}
	})

	t.Run("create дубликата id", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "x", model.ExtensionAPK, base)
		if _, err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
		if _, err := store.Create(ctx, a); !errors.Is(err, ErrConflict) {
			t.Errorf("повторный Create() ошибка = %v, хотели ErrConflict", err)
		}
	})

	t.Run("get all", func(t *testing.T) {
		store, _ := factory(t)
		older := newArtifact("main", "a", model.ExtensionAPK, base)
		newer := newArtifact("develop", "b", model.ExtensionAAB, base.Add(time.Hour))
		for _, a := range []*model.Artifact{older, newer} {
			if _, err := store.Create(ctx, a); err != nil {
				t.Fatalf("Create() ошибка: %v", err)
			}
		}

		all, err := store.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll() ошибка: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("GetAll() вернул %d записей, хотели 2", len(all))
		}
		if all[0].ID != newer.ID {
			t.Error("GetAll() должен возвращать новые записи первыми")
		}
	})

	t.Run("get all пустого хранилища", func(t *testing.T) {
		store, _ := factory(t)
		all, err := store.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll() ошибка: %v", err)
		}
		if all == nil || len(all) != 0 {
			t.Errorf("GetAll() = %v, хотели пустой срез", all)
		}
	})

	t.Run("get by project", func(t *testing.T) {
		store, _ := factory(t)
		m2 := newArtifact("main", "m2", model.ExtensionAPK, base.Add(2*time.Minute))
		d1 := newArtifact("develop", "d1", model.ExtensionIPA, base.Add(time.Minute))
		m1 := newArtifact("main", "m1", model.ExtensionAAB, base)
		other := newArtifact("main", "o", model.ExtensionAPK, base)
		other.ProjectID = "p2"
		for _, a := range []*model.Artifact{m2, d1, m1, other} {
			if _, err := store.Create(ctx, a); err != nil {
				t.Fatalf("Create() ошибка: %v", err)
			}
		}

		groups, err := store.GetByProject(ctx, testProjectID)
		if err != nil {
			t.Fatalf("GetByProject() ошибка: %v", err)
		}
		if len(groups) != 2 {
			t.Fatalf("групп %d, хотели 2", len(groups))
		}
		if groups[0].Branch != "develop" || groups[1].Branch != "main" {
			t.Errorf("порядок групп: %s, %s", groups[0].Branch, groups[1].Branch)
		}
		if len(groups[0].Artifacts) != 1 || groups[0].Artifacts[0].IOSMetadata == nil {
			t.Error("группа develop должна содержать ipa с ios_metadata")
		}
		mainItems := groups[1].Artifacts
		if len(mainItems) != 2 || mainItems[0].ID != m1.ID || mainItems[1].ID != m2.ID {
			t.Error("артефакты main должны идти по возрастанию created_at")
		}
		if mainItems[0].QRCode == nil {
			t.Error("проекция должна содержать qrcode")
		}
	})

	t.Run("get by project без артефактов", func(t *testing.T) {
		store, _ := factory(t)
		groups, err := store.GetByProject(ctx, "empty")
		if err != nil {
			t.Fatalf("GetByProject() ошибка: %v", err)
		}
		if groups == nil || len(groups) != 0 {
			t.Errorf("GetByProject() = %v, хотели пустой срез", groups)
		}
	})

	t.Run("get with project", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "ios", model.ExtensionIPA, base)
		if _, err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}

		got, project, err := store.GetWithProject(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetWithProject() ошибка: %v", err)
		}
		if got.ID != a.ID {
			t.Errorf("id = %s, хотели %s", got.ID, a.ID)
		}
		if project.ID != testProjectID || project.Name != "Demo App" {
			t.Errorf("проект = %+v", project)
		}
	})

	t.Run("get with project без проекта", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "orphan", model.ExtensionAPK, base)
		a.ProjectID = "missing"
		if _, err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}

		if _, _, err := store.GetWithProject(ctx, a.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("ошибка = %v, хотели ErrNotFound", err)
		}
		if _, _, err := store.GetWithProject(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
			t.Errorf("ошибка = %v, хотели ErrNotFound", err)
		}
	})

	t.Run("update qrcode", func(t *testing.T) {
		store, _ := factory(t)
		a := newArtifact("main", "qr", model.ExtensionAPK, base)
		a.QRCode = nil
		if _, err := store.Create(ctx, a); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}

		if err := store.UpdateQRCode(ctx, a.ID, "data:image/svg+xml;base64,QQ=="); err != nil {
			t.Fatalf("UpdateQRCode() ошибка: %v", err)
		}
		got, _ := store.Get(ctx, a.ID)
		if got.QRCode == nil || *got.QRCode != "data:image/svg+xml;base64,QQ==" {
			t.Errorf("qrcode = %v", got.QRCode)
		}
		// Остальные поля не меняются
		got.QRCode = a.QRCode
		assertArtifactEqual(t, got, a)

		if err := store.UpdateQRCode(ctx, uuid.New(), "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("неизвестный id: ошибка = %v, хотели ErrNotFound", err)
		}
		if err := store.UpdateQRCode(ctx, a.ID, ""); !errors.Is(err, ErrEmptyQRCode) {
			t.Errorf("пустой qrcode: ошибка = %v, хотели ErrEmptyQRCode", err)
		}
	})

	t.Run("project store", func(t *testing.T) {
		_, projects := factory(t)
		p, err := projects.Get(ctx, testProjectID)
		if err != nil {
			t.Fatalf("Get() ошибка: %v", err)
		}
		if p.Name != "Demo App" {
			t.Errorf("name = %q", p.Name)
		}
		if _, err := projects.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("ошибка = %v, хотели ErrNotFound", err)
		}
	})
}

func assertArtifactEqual(t *testing.T, got, want *model.Artifact) {
	t.Helper()

	if got.ID != want.ID || got.ProjectID != want.ProjectID || got.Branch != want.Branch ||
		got.Identifier != want.Identifier || got.Extension != want.Extension ||
		got.OriginalFilename != want.OriginalFilename || got.MimeType != want.MimeType ||
		got.Size != want.Size || got.Path != want.Path || got.UploadedBy != want.UploadedBy {
		t.Errorf("артефакт отличается:\n got  %+v\n want %+v", got, want)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("created_at = %v, хотели %v", got.CreatedAt, want.CreatedAt)
	}
	if (got.IOSMetadata == nil) != (want.IOSMetadata == nil) ||
		(got.IOSMetadata != nil && *got.IOSMetadata != *want.IOSMetadata) {
		t.Errorf("ios_metadata = %+v, хотели %+v", got.IOSMetadata, want.IOSMetadata)
	}
	if (got.QRCode == nil) != (want.QRCode == nil) ||
		(got.QRCode != nil && *got.QRCode != *want.QRCode) {
		t.Errorf("qrcode отличается")
	}
}
