package checkpoint

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// MemoryStore is an in-process Store with the same contract as SQLiteStore.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*memThread
	now     func() time.Time
}

type memThread struct {
	order []string // insertion order
	byID  map[string]*Checkpoint
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*memThread), now: time.Now}
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, threadID string, cp Checkpoint, metadata map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if threadID == "" {
		return "", apperrors.Validation(apperrors.CodeInvalidInput, "thread id is required")
	}
	if cp.ID == "" {
		cp.ID = NewID()
	}
	if cp.ParentID == cp.ID {
		return "", apperrors.Validation(apperrors.CodeInvalidInput, "checkpoint cannot be its own parent")
	}
	if metadata == nil {
		metadata = cp.Metadata
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		t = &memThread{byID: make(map[string]*Checkpoint)}
	}

	if prev, exists := t.byID[cp.ID]; exists && prev.ParentID != cp.ParentID {
		return "", conflictError(threadID, cp.ID, fmt.Sprintf("checkpoint already extends %q", prev.ParentID))
	}
	if cp.ParentID != "" {
		if _, ok := t.byID[cp.ParentID]; !ok {
			return "", conflictError(threadID, cp.ID, fmt.Sprintf("parent %s is not in the thread", cp.ParentID))
		}
	}
	for _, other := range t.byID {
		if other.ID != cp.ID && other.ParentID == cp.ParentID {
			return "", conflictError(threadID, cp.ID, "another checkpoint already extends this parent")
		}
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	stored := &Checkpoint{
		ThreadID:  threadID,
		ID:        cp.ID,
		ParentID:  cp.ParentID,
		State:     slices.Clone(cp.State),
		Metadata:  maps.Clone(metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, exists := t.byID[cp.ID]; exists {
		stored.CreatedAt = prev.CreatedAt
	} else {
		t.order = append(t.order, cp.ID)
	}
	t.byID[cp.ID] = stored
	s.threads[threadID] = t
	return cp.ID, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	if checkpointID == "" {
		checkpointID = t.head()
	}
	cp, ok := t.byID[checkpointID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(cp), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, threadID string, opts ListOptions) ([]Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Checkpoint, 0)
	t, ok := s.threads[threadID]
	if !ok {
		if opts.Before != "" {
			return nil, ErrNotFound
		}
		return out, nil
	}

	cur := t.head()
	if opts.Before != "" {
		before, ok := t.byID[opts.Before]
		if !ok {
			return nil, ErrNotFound
		}
		cur = before.ParentID
	}

	limit := maxChainDepth
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	for cur != "" && len(out) < limit {
		cp, ok := t.byID[cur]
		if !ok {
			break
		}
		out = append(out, *clone(cp))
		cur = cp.ParentID
	}
	return out, nil
}

// DeleteThread implements Store.
func (s *MemoryStore) DeleteThread(ctx context.Context, threadID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, threadID)
	return nil
}

// ListThreads implements Store.
func (s *MemoryStore) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ThreadSummary, 0, len(s.threads))
	for id, t := range s.threads {
		ts := ThreadSummary{ThreadID: id, Checkpoints: len(t.byID)}
		for _, cp := range t.byID {
			if cp.UpdatedAt.After(ts.UpdatedAt) {
				ts.UpdatedAt = cp.UpdatedAt
			}
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ThreadID < out[j].ThreadID
	})
	return out, nil
}

// head is the most recently inserted checkpoint that no other checkpoint extends.
func (t *memThread) head() string {
	parents := make(map[string]bool, len(t.byID))
	for _, cp := range t.byID {
		if cp.ParentID != "" {
			parents[cp.ParentID] = true
		}
	}
	for i := len(t.order) - 1; i >= 0; i-- {
		if !parents[t.order[i]] {
			return t.order[i]
		}
	}
	return ""
}

func clone(cp *Checkpoint) *Checkpoint {
	c := *cp
	c.State = slices.Clone(cp.State)
	c.Metadata = maps.Clone(cp.Metadata)
	return &c
}
