package runlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynn-ai/agentcore/pkg/protocol"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	id, err := s.StartRun(ctx, "u1", "t1", "review")
	require.NoError(t, err)

	run, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Empty(t, run.ToolsUsed)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, s.FinishRun(ctx, id, Outcome{
		Status:          StatusPartial,
		ToolsUsed:       []string{"listTasks", "getEssay"},
		InsightsCount:   2,
		ExecutionTimeMs: 1200,
		ErrorMessage:    "iteration limit",
	}))

	run, err = s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, run.Status)
	assert.Equal(t, []string{"listTasks", "getEssay"}, run.ToolsUsed)
	assert.Equal(t, 2, run.InsightsCount)
	assert.Equal(t, int64(1200), run.ExecutionTimeMs)
	assert.Equal(t, "iteration limit", run.ErrorMessage)
	assert.NotNil(t, run.CompletedAt)

	// a finished run cannot be finished again
	assert.ErrorIs(t, s.FinishRun(ctx, id, Outcome{Status: StatusCompleted}), ErrNotFound)
	assert.Error(t, s.FinishRun(ctx, id, Outcome{Status: StatusRunning}))

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.StartRun(ctx, "", "t1", "chat")
	assert.Error(t, err)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i, caller := range []string{"u1", "u2", "u1"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		id, err := s.StartRun(ctx, caller, "t-"+caller, "")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	runs, err := s.ListRuns(ctx, RunFilter{CallerID: "u1"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[1].ID)
	assert.Equal(t, "chat", runs[0].RunType)

	runs, err = s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, ids[2], runs[0].ID)

	runs, err = s.ListRuns(ctx, RunFilter{ThreadID: "t-u2"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "u2", runs[0].CallerID)
}

func TestSaveInsightsCapsAndSkipsInvalid(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	runID, err := s.StartRun(ctx, "u1", "t1", "autonomous")
	require.NoError(t, err)

	n, err := s.SaveInsights(ctx, runID, "u1", []protocol.Insight{
		{Category: "deadline", Priority: "low", Finding: "Scholarship form due soon"},
		{Category: "essay", Priority: "urgent", Finding: "bad priority"},
		{Category: "essay", Priority: "high", Finding: ""},
		{Category: "task", Priority: "high", Finding: "Three tasks overdue", Recommendation: "Follow up today"},
		{Category: "task", Priority: "medium", Finding: "over the cap"},
	}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := s.ListInsights(ctx, InsightFilter{CallerID: "u1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "high", list[0].Priority)
	assert.Equal(t, "Follow up today", list[0].Recommendation)
	assert.Equal(t, runID, list[0].RunID)
	assert.Equal(t, InsightStatusActive, list[0].Status)
	assert.Equal(t, "low", list[1].Priority)

	require.NoError(t, s.DismissInsight(ctx, list[0].ID))
	list, err = s.ListInsights(ctx, InsightFilter{CallerID: "u1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = s.ListInsights(ctx, InsightFilter{CallerID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, s.DismissInsight(ctx, "nope"), ErrNotFound)
}
