// projects.go — чтение проектов через LRU-кэш с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/opendist/internal/domain/model"
	"github.com/bigkaa/opendist/internal/repository"
)

// Prometheus-метрики кэша проектов.
var (
	projectCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "od_project_cache_hits_total",
		Help: "Общее количество попаданий в кэш проектов.",
	})
	projectCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "od_project_cache_misses_total",
		Help: "Общее количество промахов кэша проектов.",
	})
)

// ProjectLookup — ProjectStore с кэшированием найденных проектов.
// Отсутствующие проекты не кэшируются: проект может появиться позже.
type ProjectLookup struct {
	store repository.ProjectStore
	cache *expirable.LRU[string, *model.Project]
}

// NewProjectLookup создаёт кэш на maxSize записей с временем жизни ttl.
func NewProjectLookup(store repository.ProjectStore, maxSize int, ttl time.Duration) *ProjectLookup {
	return &ProjectLookup{
		store: store,
		cache: expirable.NewLRU[string, *model.Project](maxSize, nil, ttl),
	}
}

// Get возвращает проект из кэша или хранилища.
// repository.ErrNotFound, если проекта нет.
func (l *ProjectLookup) Get(ctx context.Context, id string) (*model.Project, error) {
	if p, ok := l.cache.Get(id); ok {
		projectCacheHitsTotal.Inc()
		copied := *p
		return &copied, nil
	}
	projectCacheMissesTotal.Inc()

	p, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	copied := *p
	l.cache.Add(id, &copied)
	return p, nil
}

// Invalidate удаляет проект из кэша.
func (l *ProjectLookup) Invalidate(id string) {
	l.cache.Remove(id)
}
