package store

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/capitalize-ai/field-ops-assistant/internal/model"
)

// DefaultDirectoryTTL bounds how stale the cached entity list may get.
const DefaultDirectoryTTL = 30 * time.Second

// EntitySource loads the current entity list.
type EntitySource interface {
	ReadEntities(ctx context.Context) ([]model.CanonicalEntity, error)
}

// Directory caches the entity list briefly and coalesces concurrent loads.
type Directory struct {
	source EntitySource
	group  singleflight.Group
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	entities []model.CanonicalEntity
	loadedAt time.Time
}

// NewDirectory creates a Directory over source.
func NewDirectory(source EntitySource, ttl time.Duration) *Directory {
	if ttl <= 0 {
		ttl = DefaultDirectoryTTL
	}
	return &Directory{source: source, ttl: ttl, now: time.Now}
}

// Entities returns the cached list, reloading it when expired.
func (d *Directory) Entities(ctx context.Context) ([]model.CanonicalEntity, error) {
	d.mu.RLock()
	if d.entities != nil && d.now().Sub(d.loadedAt) < d.ttl {
		out := d.entities
		d.mu.RUnlock()
		return out, nil
	}
	d.mu.RUnlock()

	v, err, _ := d.group.Do("entities", func() (any, error) {
		entities, err := d.source.ReadEntities(ctx)
		if err != nil {
			return nil, err
		}
		if entities == nil {
			entities = []model.CanonicalEntity{}
		}
		d.mu.Lock()
		d.entities = entities
		d.loadedAt = d.now()
		d.mu.Unlock()
		return entities, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.CanonicalEntity), nil
}

// Invalidate forces the next call to reload.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	d.entities = nil
	d.mu.Unlock()
}
