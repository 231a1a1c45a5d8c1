package repository

import (
	"context"
	"testing"

	"github.com/bigkaa/opendist/internal/domain/model"
)

func newMemoryFactory(t *testing.T) (ArtifactStore, ProjectStore) {
	t.Helper()
	s := NewMemoryStore()
	s.PutProject(model.Project{ID: testProjectID, Name: "Demo App"})
	return s, s.Projects()
}

// TestMemoryStore проверяет in-memory реализацию общим контрактом.
func TestMemoryStore(t *testing.T) {
	runStoreContract(t, newMemoryFactory)
}

// TestMemoryStore_Isolation проверяет, что изменение возвращённой записи
// не влияет на сохранённую.
func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	store, _ := newMemoryFactory(t)

	a := newArtifact("main", "x", model.ExtensionIPA, fixedTime)
	if _, err := store.Create(ctx, a); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	a.IOSMetadata.BundleVersion = "изменено"

	got, _ := store.Get(ctx, a.ID)
	got.Branch = "other"
	*got.QRCode = "изменено"

	again, _ := store.Get(ctx, a.ID)
	if again.Branch != "main" || *again.QRCode == "изменено" || again.IOSMetadata.BundleVersion == "изменено" {
		t.Error("сохранённая запись изменена через внешний указатель")
	}
}
