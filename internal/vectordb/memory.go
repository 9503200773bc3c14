package vectordb

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps records in process. Search is a linear cosine scan.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		records:   make(map[string]Record),
	}
}

func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	for _, rec := range records {
		if err := checkDimension(m.dimension, rec.Embedding); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		rec.Metadata = cloneMetadata(rec.Metadata)
		m.records[rec.ID] = rec
	}
	return nil
}

func (m *MemoryStore) Search(_ context.Context, query []float32, opts SearchOptions) ([]Match, error) {
	if err := checkDimension(m.dimension, query); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	matches := make([]Match, 0, len(m.records))
	for _, rec := range m.records {
		if !metadataMatches(rec.Metadata, opts.Filters) {
			continue
		}
		matches = append(matches, Match{
			ID:       rec.ID,
			Score:    cosine(query, rec.Embedding),
			Text:     rec.Text,
			Metadata: cloneMetadata(rec.Metadata),
		})
	}
	return rankMatches(matches, searchLimit(opts.TopK)), nil
}

func (m *MemoryStore) Delete(_ context.Context, filter Filter) error {
	if filter.Empty() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range filter.IDs {
		delete(m.records, id)
	}
	if filter.IDPrefix != "" {
		for id := range m.records {
			if strings.HasPrefix(id, filter.IDPrefix) {
				delete(m.records, id)
			}
		}
	}
	if len(filter.Metadata) > 0 {
		for id, rec := range m.records {
			if metadataMatches(rec.Metadata, filter.Metadata) {
				delete(m.records, id)
			}
		}
	}
	return nil
}

func (m *MemoryStore) Close(context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Get returns the record stored under id.
func (m *MemoryStore) Get(id string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}
