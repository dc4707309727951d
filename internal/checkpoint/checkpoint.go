// Package checkpoint persists conversation state as a chain of checkpoints per thread.
//
// A thread's history is a singly linked list: each checkpoint points at its
// parent. Writes are upserts keyed by (thread, checkpoint id), so retrying a
// write never duplicates it. Two different checkpoints claiming the same
// parent is a fork and is rejected with ErrConflict.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("checkpoint not found")
	ErrConflict = errors.New("checkpoint conflict")
)

// Checkpoint is one durable snapshot of a thread.
type Checkpoint struct {
	ThreadID  string          `json:"thread_id"`
	ID        string          `json:"checkpoint_id"`
	ParentID  string          `json:"parent_checkpoint_id,omitempty"`
	State     json.RawMessage `json:"state"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListOptions bounds a history walk.
type ListOptions struct {
	// Limit caps the number of checkpoints returned. Zero means all.
	Limit int

	// Before starts the walk at this checkpoint's parent.
	Before string
}

// ThreadSummary describes one stored thread.
type ThreadSummary struct {
	ThreadID    string    `json:"thread_id"`
	Checkpoints int       `json:"checkpoints"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store is a durable checkpoint store.
type Store interface {
	// Put upserts cp into the thread and returns its id. An empty cp.ID gets
	// a fresh time-ordered id. metadata replaces cp.Metadata when non-nil.
	Put(ctx context.Context, threadID string, cp Checkpoint, metadata map[string]any) (string, error)

	// Get returns the named checkpoint, or the thread's head when checkpointID is empty.
	Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error)

	// List walks the parent chain newest first.
	List(ctx context.Context, threadID string, opts ListOptions) ([]Checkpoint, error)

	// DeleteThread removes every checkpoint of the thread.
	DeleteThread(ctx context.Context, threadID string) error

	// ListThreads returns stored threads, most recently updated first.
	ListThreads(ctx context.Context) ([]ThreadSummary, error)

	Close() error
}

// NewID returns a fresh time-ordered checkpoint id.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
