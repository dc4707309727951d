package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/internal/records"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }

func seededStore(t *testing.T) *records.MemoryStore {
	t.Helper()
	s := records.NewMemoryStore()
	require.NoError(t, s.Seed(records.EntityStudents,
		records.Record{"id": "s1", "name": "Ada Lovelace", "school": "North High", "graduation_year": 2026},
		records.Record{"id": "s2", "name": "Alan Turing", "school": "South High", "graduation_year": 2027},
	))
	require.NoError(t, s.Seed(records.EntityTasks,
		records.Record{"id": "t1", "student_id": "s1", "title": "Request transcript", "status": "pending", "due_date": "2026-02-20"},
		records.Record{"id": "t2", "student_id": "s1", "title": "Finish essay", "status": "completed", "due_date": "2026-02-01"},
		records.Record{"id": "t3", "student_id": "s2", "title": "Sign up for SAT", "status": "pending", "due_date": "2026-04-01"},
	))
	require.NoError(t, s.Seed(records.EntityEssays,
		records.Record{"id": "e1", "student_id": "s1", "title": "Personal statement", "status": "draft", "body": "one two three"},
	))
	require.NoError(t, s.Seed(records.EntityDeadlines,
		records.Record{"id": "d1", "student_id": "s1", "school": "MIT", "due_date": "2026-03-10"},
		records.Record{"id": "d2", "student_id": "s1", "school": "CMU", "due_date": "2026-03-05"},
		records.Record{"id": "d3", "student_id": "s1", "school": "Caltech", "due_date": "2026-06-01"},
		records.Record{"id": "d4", "student_id": "s1", "school": "Old", "due_date": "2026-01-01"},
	))
	return s
}

func run(t *testing.T, tool Tool, input map[string]any) *Result {
	t.Helper()
	res, err := tool.Execute(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func TestSearchStudents(t *testing.T) {
	s := seededStore(t)
	tool := &SearchStudents{Store: s}

	res := run(t, tool, map[string]any{"query": "ada"})
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data.(map[string]any)["count"])

	res = run(t, tool, map[string]any{"graduation_year": float64(2027)})
	require.True(t, res.Success)
	students := res.Data.(map[string]any)["students"].([]records.Record)
	require.Len(t, students, 1)
	assert.Equal(t, "s2", students[0].ID())
}

func TestGetStudentProfile(t *testing.T) {
	s := seededStore(t)
	tool := &GetStudentProfile{Store: s}

	res := run(t, tool, map[string]any{"student_id": "s1"})
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	assert.Len(t, data["open_tasks"], 1)
	assert.Len(t, data["essays"], 1)

	res = run(t, tool, map[string]any{"student_id": "missing"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not found")

	res = run(t, tool, map[string]any{})
	assert.False(t, res.Success)
	assert.Equal(t, "student_id is required", res.Error)
}

func TestListDeadlinesWindow(t *testing.T) {
	s := seededStore(t)
	tool := &ListDeadlines{Store: s, Now: fixedNow}

	res := run(t, tool, map[string]any{"student_id": "s1", "within_days": 30})
	require.True(t, res.Success)
	deadlines := res.Data.(map[string]any)["deadlines"].([]records.Record)
	require.Len(t, deadlines, 2)
	assert.Equal(t, "d2", deadlines[0].ID())
	assert.Equal(t, "d1", deadlines[1].ID())
}

func TestAnalyzeRisk(t *testing.T) {
	s := seededStore(t)
	tool := &AnalyzeRisk{Store: s, Now: fixedNow}

	res := run(t, tool, map[string]any{"student_id": "s1"})
	require.True(t, res.Success)
	data := res.Data.(map[string]any)
	// one overdue task (2) + one draft essay (1) + two deadlines within 14 days (2)
	assert.Equal(t, 5, data["score"])
	assert.Equal(t, "high", data["risk_level"])
	assert.Len(t, data["factors"], 3)

	res = run(t, tool, map[string]any{"student_id": "s2"})
	require.True(t, res.Success)
	assert.Equal(t, "low", res.Data.(map[string]any)["risk_level"])
}

func TestCreateAndUpdateTask(t *testing.T) {
	s := seededStore(t)
	create := &CreateTask{Store: s}

	res := run(t, create, map[string]any{"student_id": "s2", "title": "Visit campus", "due_date": "2026-05-01"})
	require.True(t, res.Success)
	task := res.Data.(records.Record)
	assert.Equal(t, "pending", task["status"])
	assert.Equal(t, "medium", task["priority"])

	res = run(t, create, map[string]any{"student_id": "s2", "title": "x", "due_date": "May 1"})
	assert.False(t, res.Success)

	res = run(t, create, map[string]any{"student_id": "nobody", "title": "x"})
	assert.False(t, res.Success)

	update := &UpdateTask{Store: s}
	res = run(t, update, map[string]any{"task_id": task.ID(), "status": "completed"})
	require.True(t, res.Success)
	assert.Equal(t, "completed", res.Data.(records.Record)["status"])

	res = run(t, update, map[string]any{"task_id": task.ID(), "status": "done"})
	assert.False(t, res.Success)

	res = run(t, update, map[string]any{"task_id": task.ID()})
	assert.False(t, res.Success)
	assert.Equal(t, "nothing to update", res.Error)
}

func TestEssayAndLetterTools(t *testing.T) {
	s := seededStore(t)

	res := run(t, &GetEssay{Store: s}, map[string]any{"essay_id": "e1"})
	require.True(t, res.Success)
	assert.Equal(t, 3, res.Data.(records.Record)["word_count"])

	res = run(t, &UpdateEssayStatus{Store: s}, map[string]any{"essay_id": "e1", "status": "review", "feedback": "tighten intro"})
	require.True(t, res.Success)
	assert.Equal(t, "review", res.Data.(records.Record)["status"])

	res = run(t, &DraftLetter{Store: s}, map[string]any{"student_id": "s1", "recipient": "Admissions Office"})
	require.True(t, res.Success)
	letter := res.Data.(records.Record)
	assert.Equal(t, "draft", letter["status"])
	assert.Contains(t, letter.String("body"), "Ada Lovelace")
}

func TestAdminTools(t *testing.T) {
	s := seededStore(t)

	res := run(t, &ExportStudentData{Store: s}, map[string]any{"student_id": "s1"})
	require.True(t, res.Success)
	export := res.Data.(map[string]any)
	assert.Len(t, export[records.EntityTasks], 2)
	assert.Len(t, export[records.EntityDeadlines], 4)

	res = run(t, &DeleteRecord{Store: s}, map[string]any{"entity": "tasks", "id": "t1"})
	require.True(t, res.Success)
	_, err := s.Get(context.Background(), records.EntityTasks, "t1")
	assert.ErrorIs(t, err, records.ErrNotFound)

	res = run(t, &DeleteRecord{Store: s}, map[string]any{"entity": "invoices", "id": "x"})
	assert.False(t, res.Success)
}

type failingStore struct{ records.Store }

func (failingStore) Get(context.Context, string, string) (records.Record, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsAHardError(t *testing.T) {
	_, err := (&GetEssay{Store: failingStore{}}).Execute(context.Background(), map[string]any{"essay_id": "e1"})
	assert.EqualError(t, err, "disk on fire")
}

func TestResultJSON(t *testing.T) {
	r := NewCodedErrorResult("CONFIRMATION_REQUIRED", errors.New("confirm first"))
	assert.JSONEq(t, `{"success":false,"error":"confirm first","code":"CONFIRMATION_REQUIRED","duration_ms":0}`, r.JSON())
}
