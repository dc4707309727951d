package executor

import (
	"context"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// SearchStudents finds students by name, school or graduation year.
type SearchStudents struct {
	Store records.Store
}

func (t *SearchStudents) Name() string { return "searchStudents" }

func (t *SearchStudents) Description() string {
	return "Search students by name, school or graduation year"
}

func (t *SearchStudents) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	q := records.Query{
		Where:    map[string]any{},
		Contains: map[string]string{},
		Limit:    intArg(input, "limit", 20),
	}
	if name := stringArg(input, "query"); name != "" {
		q.Contains["name"] = name
	}
	if school := stringArg(input, "school"); school != "" {
		q.Where["school"] = school
	}
	if year := intArg(input, "graduation_year", 0); year > 0 {
		q.Where["graduation_year"] = year
	}

	students, err := t.Store.Query(ctx, records.EntityStudents, q)
	if err != nil {
		return storeFailure(err, start)
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"students": students,
		"count":    len(students),
	}), start), nil
}

// GetStudentProfile returns a student with their open tasks and essays.
type GetStudentProfile struct {
	Store records.Store
}

func (t *GetStudentProfile) Name() string { return "getStudentProfile" }

func (t *GetStudentProfile) Description() string {
	return "Get a student's profile with open tasks and essays"
}

func (t *GetStudentProfile) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	student, err := t.Store.Get(ctx, records.EntityStudents, id)
	if err != nil {
		return storeFailure(err, start)
	}

	tasks, err := t.Store.Query(ctx, records.EntityTasks, records.Query{Where: map[string]any{"student_id": id}})
	if err != nil {
		return storeFailure(err, start)
	}
	open := make([]records.Record, 0, len(tasks))
	for _, task := range tasks {
		if task.String("status") != "completed" {
			open = append(open, task)
		}
	}

	essays, err := t.Store.Query(ctx, records.EntityEssays, records.Query{Where: map[string]any{"student_id": id}})
	if err != nil {
		return storeFailure(err, start)
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"student":    student,
		"open_tasks": open,
		"essays":     essays,
	}), start), nil
}
