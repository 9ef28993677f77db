package store

import (
	"fmt"
	"sync"

	"github.com/i474232898/city-weather/internal/cities"
	"github.com/i474232898/city-weather/internal/common"
)

var _ cities.Store = (*MemoryStore)(nil)

// MemoryStore is a concurrency-safe in-memory implementation of cities.Store.
// It keeps insertion order for listing and hands out copies only.
type MemoryStore struct {
	mu sync.RWMutex

	// key: normalized city name
	data  map[string]*cities.Record
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*cities.Record),
	}
}

// ReplaceAll swaps the whole collection. Names are normalized; an empty or
// duplicated name rejects the batch and leaves the current data untouched.
func (s *MemoryStore) ReplaceAll(records []cities.Record) error {
	data := make(map[string]*cities.Record, len(records))
	order := make([]string, 0, len(records))

	for i, rec := range records {
		name := common.NormalizeName(rec.Name)
		if name == "" {
			return fmt.Errorf("%w: empty city name at row %d", cities.ErrValidation, i+1)
		}
		if _, dup := data[name]; dup {
			return fmt.Errorf("%w: duplicate city name %q", cities.ErrValidation, name)
		}
		c := rec.Clone()
		c.Name = name
		data[name] = &c
		order = append(order, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = data
	s.order = order
	return nil
}

// Add inserts a bare record unless the normalized name already exists, in
// which case the existing record is returned untouched with created=false.
func (s *MemoryStore) Add(name string) (cities.Record, bool, error) {
	key := common.NormalizeName(name)
	if key == "" {
		return cities.Record{}, false, fmt.Errorf("%w: city name is required", cities.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok {
		return existing.Clone(), false, nil
	}

	rec := cities.NewRecord(key)
	s.data[key] = &rec
	s.order = append(s.order, key)
	return rec.Clone(), true, nil
}

// Delete removes the named city and reports whether it was present.
func (s *MemoryStore) Delete(name string) bool {
	key := common.NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[key]; !ok {
		return false
	}
	delete(s.data, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the named record.
func (s *MemoryStore) Get(name string) (cities.Record, bool) {
	key := common.NormalizeName(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[key]
	if !ok {
		return cities.Record{}, false
	}
	return rec.Clone(), true
}

// List returns copies of all records in insertion order.
func (s *MemoryStore) List() []cities.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]cities.Record, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.data[key].Clone())
	}
	return out
}

// Update applies mutations to the named record. A record deleted in the
// meantime makes this a no-op and returns false.
func (s *MemoryStore) Update(name string, mutations ...cities.Mutation) bool {
	key := common.NormalizeName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data[key]
	if !ok {
		return false
	}
	for _, m := range mutations {
		m(rec)
	}
	rec.Name = key
	return true
}

// IsEmpty reports whether the store holds no records.
func (s *MemoryStore) IsEmpty() bool {
	return s.Len() == 0
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
