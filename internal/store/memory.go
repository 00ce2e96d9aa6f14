package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lukman83/kidkazz-catalog/internal/models"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	records map[models.ProductKey]models.ProductRecord
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{records: make(map[models.ProductKey]models.ProductRecord), now: time.Now}
}

func (m *Memory) Save(_ context.Context, rec models.ProductRecord) (models.ProductRecord, error) {
	if err := validate(rec); err != nil {
		return models.ProductRecord{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.records[rec.Key()]
	rec = stamp(rec, existing.CreatedAt, m.now())
	m.records[rec.Key()] = rec
	return rec, nil
}

func (m *Memory) FindByKey(_ context.Context, key models.ProductKey) (models.ProductRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return models.ProductRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]models.ProductRecord, error) {
	m.mu.RLock()
	out := make([]models.ProductRecord, 0, len(m.records))
	for _, r := range m.records {
		if f.matches(r) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].ProductID < out[j].ProductID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
