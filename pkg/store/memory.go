package store

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore implements Store for tests and lightweight deployments.
// Select returns records in insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]Record
	order  map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]Record),
		order:  make(map[string][]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, table string, record Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneRecord(record)
	id, _ := stored["id"].(string)
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}

	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]Record)
		s.tables[table] = rows
	}
	if _, exists := rows[id]; !exists {
		s.order[table] = append(s.order[table], id)
	}
	rows[id] = stored
	return cloneRecord(stored), nil
}

func (s *MemoryStore) Get(_ context.Context, table, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][id]
	if !ok {
		return nil, notFound(table, id)
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Select(_ context.Context, table string, filter Record) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Record
	for _, id := range s.order[table] {
		rec := s.tables[table][id]
		if matchesFilter(rec, filter) {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, table, id string, changes Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tables[table][id]
	if !ok {
		return nil, notFound(table, id)
	}
	for k, v := range changes {
		if k == "id" {
			continue
		}
		rec[k] = v
	}
	return cloneRecord(rec), nil
}

func (s *MemoryStore) Delete(_ context.Context, table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[table][id]; !ok {
		return notFound(table, id)
	}
	delete(s.tables[table], id)
	ids := s.order[table]
	for i, existing := range ids {
		if existing == id {
			s.order[table] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func matchesFilter(rec, filter Record) bool {
	for k, want := range filter {
		got, ok := rec[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}
