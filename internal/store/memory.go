package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// InMemoryStore implements NetworkStore for testing and development.
// Records are deep-copied on the way in and out.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
}

// Save stores a copy of rec.
func (s *InMemoryStore) Save(ctx context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.records[rec.ID]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = old.CreatedAt
	}
	if err := prepare(&rec, s.now()); err != nil {
		return "", err
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return "", err
	}
	s.records[rec.ID] = cp
	return rec.ID, nil
}

// Get returns a copy of the record, or nil if not found.
func (s *InMemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp, err := copyRecord(rec)
	if err != nil {
		return nil, err
	}
	return &cp, nil
}

// List returns all summaries, oldest first.
func (s *InMemoryStore) List(ctx context.Context) ([]Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Summary, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, Summarize(rec))
	}
	sortSummaries(out)
	return out, nil
}

// Delete removes a record.
func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error {
	return nil
}

// copyRecord deep-copies through JSON so callers never share slices with
// the store.
func copyRecord(rec Record) (Record, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("copying record: %w", err)
	}
	var out Record
	if err := json.Unmarshal(data, &out); err != nil {
		return Record{}, fmt.Errorf("copying record: %w", err)
	}
	return out, nil
}
