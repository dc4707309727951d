package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// DeleteRecord permanently deletes a record.
type DeleteRecord struct {
	Store records.Store
}

func (t *DeleteRecord) Name() string { return "deleteRecord" }

func (t *DeleteRecord) Description() string { return "Permanently delete a record" }

func (t *DeleteRecord) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	entity, err := requireString(input, "entity")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	if !records.ValidEntity(entity) {
		return TimedResult(NewErrorResult(fmt.Errorf("unknown entity %q", entity)), start), nil
	}
	id, err := requireString(input, "id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	if err := t.Store.Delete(ctx, entity, id); err != nil {
		return storeFailure(err, start)
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"deleted": true,
		"entity":  entity,
		"id":      id,
	}), start), nil
}

// ExportStudentData gathers every record held about a student.
type ExportStudentData struct {
	Store records.Store
}

func (t *ExportStudentData) Name() string { return "exportStudentData" }

func (t *ExportStudentData) Description() string {
	return "Export every record held about a student"
}

func (t *ExportStudentData) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	student, err := t.Store.Get(ctx, records.EntityStudents, id)
	if err != nil {
		return storeFailure(err, start)
	}

	export := map[string]any{"student": student}
	for _, entity := range records.Entities {
		if entity == records.EntityStudents {
			continue
		}
		recs, err := t.Store.Query(ctx, entity, records.Query{Where: map[string]any{"student_id": id}})
		if err != nil {
			return storeFailure(err, start)
		}
		export[entity] = recs
	}

	return TimedResult(NewSuccessResult(export), start), nil
}
