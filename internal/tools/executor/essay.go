package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// GetEssay reads an essay.
type GetEssay struct {
	Store records.Store
}

func (t *GetEssay) Name() string { return "getEssay" }

func (t *GetEssay) Description() string { return "Read an essay" }

func (t *GetEssay) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "essay_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	essay, err := t.Store.Get(ctx, records.EntityEssays, id)
	if err != nil {
		return storeFailure(err, start)
	}
	essay["word_count"] = len(strings.Fields(essay.String("body")))
	return TimedResult(NewSuccessResult(essay), start), nil
}

// UpdateEssayStatus moves an essay through review.
type UpdateEssayStatus struct {
	Store records.Store
}

func (t *UpdateEssayStatus) Name() string { return "updateEssayStatus" }

func (t *UpdateEssayStatus) Description() string { return "Move an essay to a new review status" }

func (t *UpdateEssayStatus) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "essay_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	status, err := requireString(input, "status")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	if !oneOf(status, "draft", "review", "final", "submitted") {
		return TimedResult(NewErrorResult(fmt.Errorf("invalid status %q", status)), start), nil
	}

	fields := records.Record{"status": status}
	if fb := stringArg(input, "feedback"); fb != "" {
		fields["feedback"] = fb
	}

	updated, err := t.Store.Update(ctx, records.EntityEssays, id, fields)
	if err != nil {
		return storeFailure(err, start)
	}
	return TimedResult(NewSuccessResult(updated), start), nil
}

// DraftLetter stores a draft recommendation letter for a student.
type DraftLetter struct {
	Store records.Store
}

func (t *DraftLetter) Name() string { return "draftLetter" }

func (t *DraftLetter) Description() string {
	return "Draft a recommendation letter for a student"
}

func (t *DraftLetter) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	studentID, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	recipient, err := requireString(input, "recipient")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}

	student, err := t.Store.Get(ctx, records.EntityStudents, studentID)
	if err != nil {
		return storeFailure(err, start)
	}

	name := student.String("name")
	if name == "" {
		name = "this student"
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\n", recipient)
	fmt.Fprintf(&body, "I am writing to recommend %s.", name)
	if h := stringArg(input, "highlights"); h != "" {
		fmt.Fprintf(&body, " %s", h)
	}
	body.WriteString("\n\nSincerely,\n")

	letter, err := t.Store.Insert(ctx, records.EntityLetters, records.Record{
		"student_id": studentID,
		"recipient":  recipient,
		"body":       body.String(),
		"status":     "draft",
	})
	if err != nil {
		return storeFailure(err, start)
	}
	return TimedResult(NewSuccessResult(letter), start), nil
}
