package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store used by tests and local development. It
// mirrors the adapter contract including its lack of cross-document atomicity:
// every call locks, applies one document change, and unlocks.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
	order       map[string]map[string]int
	seq         int
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]json.RawMessage),
		order:       make(map[string]map[string]int),
	}
}

// Get fetches one document by id.
func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: cloneRaw(raw)}, nil
}

// Query returns documents matching every equality filter in insertion order.
func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type entry struct {
		doc Document
		seq int
	}
	var matched []entry
	for id, raw := range s.collections[collection] {
		ok, err := matches(raw, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, entry{
				doc: Document{ID: id, Data: cloneRaw(raw)},
				seq: s.order[collection][id],
			})
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })

	docs := make([]Document, 0, len(matched))
	for _, e := range matched {
		docs = append(docs, e.doc)
	}
	return docs, nil
}

// Count returns the number of matching documents.
func (s *MemoryStore) Count(ctx context.Context, collection string, filters ...Filter) (int, error) {
	docs, err := s.Query(ctx, collection, filters...)
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

// Add inserts value under a generated id.
func (s *MemoryStore) Add(ctx context.Context, collection string, value interface{}) (string, error) {
	id := uuid.NewString()
	if err := s.Set(ctx, collection, id, value); err != nil {
		return "", err
	}
	return id, nil
}

// Set creates or replaces the document with the given id.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, value interface{}) error {
	raw, err := encode(value, id)
	if err != nil {
		return fmt.Errorf("encode %s document: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]json.RawMessage)
		s.order[collection] = make(map[string]int)
	}
	if _, exists := s.collections[collection][id]; !exists {
		s.seq++
		s.order[collection][id] = s.seq
	}
	s.collections[collection][id] = raw
	return nil
}

// Update merges non-nil patch fields and removes fields patched to nil.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, patch map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	for field, value := range patch {
		if value == nil {
			delete(fields, field)
			continue
		}
		fields[field] = value
	}
	updated, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	s.collections[collection][id] = updated
	return nil
}

// Delete removes the document.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.collections[collection], id)
	delete(s.order[collection], id)
	return nil
}

func matches(raw json.RawMessage, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return false, fmt.Errorf("decode document: %w", err)
	}
	for _, f := range filters {
		value, ok := fields[f.Field]
		if !ok {
			return false, nil
		}
		if fmt.Sprint(value) != fmt.Sprint(f.Value) {
			return false, nil
		}
	}
	return true, nil
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
