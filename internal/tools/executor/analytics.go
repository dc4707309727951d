package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// Risk thresholds on the weighted score.
const (
	riskHighScore   = 5
	riskMediumScore = 2
	urgentDays      = 14
)

// AnalyzeRisk scores a student's risk of missing application work.
type AnalyzeRisk struct {
	Store records.Store
	Now   func() time.Time
}

func (t *AnalyzeRisk) Name() string { return "analyzeRisk" }

func (t *AnalyzeRisk) Description() string {
	return "Assess a student's risk of missing deadlines"
}

func (t *AnalyzeRisk) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	id, err := requireString(input, "student_id")
	if err != nil {
		return TimedResult(NewErrorResult(err), start), nil
	}
	if _, err := t.Store.Get(ctx, records.EntityStudents, id); err != nil {
		return storeFailure(err, start)
	}

	byStudent := records.Query{Where: map[string]any{"student_id": id}}
	tasks, err := t.Store.Query(ctx, records.EntityTasks, byStudent)
	if err != nil {
		return storeFailure(err, start)
	}
	essays, err := t.Store.Query(ctx, records.EntityEssays, byStudent)
	if err != nil {
		return storeFailure(err, start)
	}
	deadlines, err := t.Store.Query(ctx, records.EntityDeadlines, byStudent)
	if err != nil {
		return storeFailure(err, start)
	}

	now := today(t.Now)
	var factors []string

	overdue := 0
	for _, task := range tasks {
		if task.String("status") == "completed" {
			continue
		}
		due, err := parseDate(task.String("due_date"))
		if err == nil && due.Before(now) {
			overdue++
		}
	}
	if overdue > 0 {
		factors = append(factors, fmt.Sprintf("%d overdue task(s)", overdue))
	}

	unfinished := 0
	for _, e := range essays {
		if !oneOf(e.String("status"), "final", "submitted") {
			unfinished++
		}
	}
	if unfinished > 0 {
		factors = append(factors, fmt.Sprintf("%d essay(s) not final", unfinished))
	}

	urgent := 0
	horizon := now.AddDate(0, 0, urgentDays)
	for _, d := range deadlines {
		due, err := parseDate(d.String("due_date"))
		if err == nil && !due.Before(now) && !due.After(horizon) {
			urgent++
		}
	}
	if urgent > 0 {
		factors = append(factors, fmt.Sprintf("%d deadline(s) within %d days", urgent, urgentDays))
	}

	score := overdue*2 + unfinished + urgent
	level := "low"
	switch {
	case score >= riskHighScore:
		level = "high"
	case score >= riskMediumScore:
		level = "medium"
	}

	return TimedResult(NewSuccessResult(map[string]any{
		"student_id": id,
		"risk_level": level,
		"score":      score,
		"factors":    factors,
	}), start), nil
}
