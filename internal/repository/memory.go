package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bigkaa/opendist/internal/domain/model"
)

// MemoryStore — in-memory реализация ArtifactStore и ProjectStore.
// Используется для локального запуска и тестов. Данные теряются при рестарте.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[uuid.UUID]*model.Artifact
	projects  map[string]*model.Project
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		artifacts: make(map[uuid.UUID]*model.Artifact),
		projects:  make(map[string]*model.Project),
	}
}

// PutProject добавляет или заменяет проект.
func (s *MemoryStore) PutProject(p model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = &p
}

// Projects возвращает ProjectStore поверх тех же данных.
func (s *MemoryStore) Projects() ProjectStore {
	return memoryProjects{s}
}

func (s *MemoryStore) Create(_ context.Context, a *model.Artifact) (*model.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.artifacts[a.ID]; ok {
		return nil, fmt.Errorf("%w: артефакт %s", ErrConflict, a.ID)
	}
	stored := cloneArtifact(a)
	stored.CreatedAt = model.Timestamp(a.CreatedAt)
	s.artifacts[a.ID] = stored
	return cloneArtifact(stored), nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*model.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneArtifact(a), nil
}

func (s *MemoryStore) GetAll(_ context.Context) ([]*model.Artifact, error) {
	s.mu.RLock()
	result := make([]*model.Artifact, 0, len(s.artifacts))
	for _, a := range s.artifacts {
		result = append(result, cloneArtifact(a))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *MemoryStore) GetByProject(_ context.Context, projectID string) ([]model.BranchGroup, error) {
	s.mu.RLock()
	var items []model.Summary
	for _, a := range s.artifacts {
		if a.ProjectID == projectID {
			items = append(items, cloneArtifact(a).Summary())
		}
	}
	s.mu.RUnlock()

	return model.GroupByBranch(items), nil
}

func (s *MemoryStore) GetWithProject(_ context.Context, id uuid.UUID) (*model.Artifact, *model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.artifacts[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	p, ok := s.projects[a.ProjectID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	project := *p
	return cloneArtifact(a), &project, nil
}

func (s *MemoryStore) UpdateQRCode(_ context.Context, id uuid.UUID, qrcode string) error {
	if qrcode == "" {
		return ErrEmptyQRCode
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.artifacts[id]
	if !ok {
		return ErrNotFound
	}
	a.QRCode = &qrcode
	return nil
}

// memoryProjects — ProjectStore поверх MemoryStore.
type memoryProjects struct {
	s *MemoryStore
}

func (m memoryProjects) Get(_ context.Context, id string) (*model.Project, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()

	p, ok := m.s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	project := *p
	return &project, nil
}

// cloneArtifact возвращает глубокую копию, чтобы вызывающий код
// не мог изменить сохранённую запись.
func cloneArtifact(a *model.Artifact) *model.Artifact {
	c := *a
	if a.IOSMetadata != nil {
		meta := *a.IOSMetadata
		c.IOSMetadata = &meta
	}
	if a.QRCode != nil {
		qr := *a.QRCode
		c.QRCode = &qr
	}
	return &c
}

var (
	_ ArtifactStore = (*MemoryStore)(nil)
	_ ProjectStore  = memoryProjects{}
)
