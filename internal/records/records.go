// Package records defines the record store the agent's tools read and write.
//
// The orchestration core never depends on a business schema: tools see
// records as loosely typed maps grouped by entity name.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Entity names used by the built-in tools.
const (
	EntityStudents  = "students"
	EntityTasks     = "tasks"
	EntityEssays    = "essays"
	EntityLetters   = "letters"
	EntityDeadlines = "deadlines"
	EntityReminders = "reminders"
)

// Entities lists every entity a tool may touch.
var Entities = []string{
	EntityStudents,
	EntityTasks,
	EntityEssays,
	EntityLetters,
	EntityDeadlines,
	EntityReminders,
}

// Sentinel errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrUnknownEntity = errors.New("unknown entity")
)

// Record is one stored entity. The "id" field is always present once stored.
type Record map[string]any

// ID returns the record identifier.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// String returns a string field, or "" when absent.
func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// Query narrows a read.
type Query struct {
	// Where holds exact-match field filters.
	Where map[string]any

	// Contains holds case-insensitive substring filters on string fields.
	Contains map[string]string

	// Limit caps the result count. Zero means no limit.
	Limit int
}

// Matches reports whether a record satisfies the query filters.
func (q Query) Matches(r Record) bool {
	for field, want := range q.Where {
		if fmt.Sprint(r[field]) != fmt.Sprint(want) {
			return false
		}
	}
	for field, sub := range q.Contains {
		s, ok := r[field].(string)
		if !ok || !strings.Contains(strings.ToLower(s), strings.ToLower(sub)) {
			return false
		}
	}
	return true
}

// Store is the narrow interface tools use to reach business records.
type Store interface {
	// Query returns records of an entity matching q, in insertion order.
	Query(ctx context.Context, entity string, q Query) ([]Record, error)

	// Get returns a single record by id.
	Get(ctx context.Context, entity, id string) (Record, error)

	// Insert stores a new record and returns it with its assigned id.
	Insert(ctx context.Context, entity string, rec Record) (Record, error)

	// Update merges fields into an existing record and returns the result.
	Update(ctx context.Context, entity, id string, fields Record) (Record, error)

	// Delete removes a record.
	Delete(ctx context.Context, entity, id string) error
}

// ValidEntity reports whether name is a known entity.
func ValidEntity(name string) bool {
	for _, e := range Entities {
		if e == name {
			return true
		}
	}
	return false
}
