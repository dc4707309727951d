package records

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	order   map[string][]string
	records map[string]map[string]Record
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		order:   make(map[string][]string),
		records: make(map[string]map[string]Record),
		now:     time.Now,
	}
	for _, e := range Entities {
		s.records[e] = make(map[string]Record)
	}
	return s
}

// Seed inserts records verbatim, keeping their ids when set.
func (s *MemoryStore) Seed(entity string, recs ...Record) error {
	for _, r := range recs {
		if _, err := s.Insert(context.Background(), entity, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) table(entity string) (map[string]Record, error) {
	t, ok := s.records[entity]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entity)
	}
	return t, nil
}

// Query implements Store.
func (s *MemoryStore) Query(ctx context.Context, entity string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(entity)
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0)
	for _, id := range s.order[entity] {
		r := t[id]
		if !q.Matches(r) {
			continue
		}
		out = append(out, maps.Clone(r))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, entity, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	r, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, entity, id)
	}
	return maps.Clone(r), nil
}

// Insert implements Store.
func (s *MemoryStore) Insert(ctx context.Context, entity string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(entity)
	if err != nil {
		return nil, err
	}

	r := maps.Clone(rec)
	if r == nil {
		r = Record{}
	}
	id := r.ID()
	if id == "" {
		id = uuid.NewString()
		r["id"] = id
	}
	if _, exists := t[id]; exists {
		return nil, fmt.Errorf("insert %s/%s: duplicate id", entity, id)
	}
	now := s.now().UTC().Format(time.RFC3339)
	if _, ok := r["created_at"]; !ok {
		r["created_at"] = now
	}
	r["updated_at"] = now

	t[id] = r
	s.order[entity] = append(s.order[entity], id)
	return maps.Clone(r), nil
}

// Update implements Store.
func (s *MemoryStore) Update(ctx context.Context, entity, id string, fields Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(entity)
	if err != nil {
		return nil, err
	}
	r, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, entity, id)
	}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		r[k] = v
	}
	r["updated_at"] = s.now().UTC().Format(time.RFC3339)
	return maps.Clone(r), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, entity, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.table(entity)
	if err != nil {
		return err
	}
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, entity, id)
	}
	delete(t, id)

	ids := s.order[entity]
	for i, v := range ids {
		if v == id {
			s.order[entity] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}
