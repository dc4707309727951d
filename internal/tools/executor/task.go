package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// ListTasks lists tasks, optionally for one student and status.
type ListTasks struct {
	Store records.Store
}

func (t *ListTasks) Name() string { return "listTasks" }

func (t *ListTasks) Description() string { return "List tasks, optionally for one student" }

func (t *ListTasks) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	where := map[string]any{}
	if id := stringArg(input, "student_id"); id != "" {
		where["student_id"] = id
	}
	if status := stringArg(input, "status"); status != "" {
		if !oneOf(status, "pending", "in_progress", "completed") {
			return TimedResult(NewErrorResult(fmt.Errorf("invalid status %q", status)), start), nil
		}
		where["status"] = status
	}

	tasks, err := t.Store.Query(ctx, records.EntityTasks, records.Query{Where: where})
	if err != nil {
		return storeFailure(err, start)
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	}), start), nil
}

// ListDeadlines lists deadlines falling due within a window.
type ListDeadlines struct {
	Store records.Store
	Now   func() time.Time
}

func (t *ListDeadlines) Name() string { return "listDeadlines" }

func (t *ListDeadlines) Description() string { return "List upcoming application deadlines" }

func (t *ListDeadlines) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	days := intArg(input, "within_days", 30)
	if days < 0 {
		return TimedResult(NewErrorResult(fmt.Errorf("within_days must not be negative")), start), nil
	}

	where := map[string]any{}
	if id := stringArg(input, "student_id"); id != "" {
		where["student_id"] = id
	}

	all, err := t.Store.Query(ctx, records.EntityDeadlines, records.Query{Where: where})
	if err != nil {
		return storeFailure(err, start)
	}

	from := today(t.Now)
	until := from.AddDate(0, 0, days)
	upcoming := make([]records.Record, 0, len(all))
	for _, d := range all {
		due, err := parseDate(d.String("due_date"))
		if err != nil {
			continue
		}
		if !due.Before(from) && !due.After(until) {
			upcoming = append(upcoming, d)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].String("due_date") < upcoming[j].String("due_date")
	})

	return TimedResult(NewSuccessResult(map[string]any{
		"deadlines":   upcoming,
		"count":       len(upcoming),
		"within_days": days,
	}), start), nil
}

// CreateTask creates a task for a student.
type CreateTask struct {
	Store records.Store
}

func (t *CreateTask) Name() string { return "createTask" }

func (t *CreateTask) Description() string { return "Create a task for a student" }

func (t *CreateTask) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	studentID, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	title, err := requireString(input, "title")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	priority := stringArg(input, "priority")
	if priority == "" {
		priority = "medium"
	}
	if !oneOf(priority, "low", "medium", "high") {
		return TimedResult(NewErrorResult(fmt.Errorf("invalid priority %q", priority)), start), nil
	}

	task := records.Record{
		"student_id":  studentID,
		"title":       title,
		"description": stringArg(input, "description"),
		"status":      "pending",
		"priority":    priority,
	}
	if due := stringArg(input, "due_date"); due != "" {
		if _, err := parseDate(due); err != nil {
			return TimedResult(NewErrorResult(err), start), nil
		}
		task["due_date"] = due
	}

	if _, err := t.Store.Get(ctx, records.EntityStudents, studentID); err != nil {
		return storeFailure(err, start)
	}

	created, err := t.Store.Insert(ctx, records.EntityTasks, task)
	if err != nil {
		return storeFailure(err, start)
	}
	return TimedResult(NewSuccessResult(created), start), nil
}

// UpdateTask updates a task's title, status or due date.
type UpdateTask struct {
	Store records.Store
}

func (t *UpdateTask) Name() string { return "updateTask" }

func (t *UpdateTask) Description() string { return "Update a task's title, status or due date" }

func (t *UpdateTask) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "task_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	fields := records.Record{}
	if title := stringArg(input, "title"); title != "" {
		fields["title"] = title
	}
	if status := stringArg(input, "status"); status != "" {
		if !oneOf(status, "pending", "in_progress", "completed") {
			return TimedResult(NewErrorResult(fmt.Errorf("invalid status %q", status)), start), nil
		}
		fields["status"] = status
	}
	if due := stringArg(input, "due_date"); due != "" {
		if _, err := parseDate(due); err != nil {
			return TimedResult(NewErrorResult(err), start), nil
		}
		fields["due_date"] = due
	}
	if len(fields) == 0 {
		return TimedResult(NewErrorResult(fmt.Errorf("nothing to update")), start), nil
	}

	updated, err := t.Store.Update(ctx, records.EntityTasks, id, fields)
	if err != nil {
		return storeFailure(err, start)
	}
	return TimedResult(NewSuccessResult(updated), start), nil
}

// SendReminder records a reminder sent to a student.
type SendReminder struct {
	Store records.Store
	Now   func() time.Time
}

func (t *SendReminder) Name() string { return "sendReminder" }

func (t *SendReminder) Description() string { return "Send a reminder message to a student" }

func (t *SendReminder) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	studentID, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	message, err := requireString(input, "message")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	if _, err := t.Store.Get(ctx, records.EntityStudents, studentID); err != nil {
		return storeFailure(err, start)
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	reminder, err := t.Store.Insert(ctx, records.EntityReminders, records.Record{
		"student_id": studentID,
		"message":    message,
		"status":     "sent",
		"sent_at":    now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return storeFailure(err, start)
	}
	return TimedResult(NewSuccessResult(reminder), start), nil
}
