package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Run is one turn executed for a caller.
type Run struct {
	ID              string     `json:"id"`
	CallerID        string     `json:"caller_id"`
	ThreadID        string     `json:"thread_id"`
	RunType         string     `json:"run_type"`
	Status          string     `json:"status"`
	ToolsUsed       []string   `json:"tools_used"`
	InsightsCount   int        `json:"insights_count"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Outcome closes a run.
type Outcome struct {
	Status          string
	ToolsUsed       []string
	InsightsCount   int
	ExecutionTimeMs int64
	ErrorMessage    string
}

// RunFilter selects runs.
type RunFilter struct {
	CallerID string
	ThreadID string
	Limit    int
}

// StartRun records a new running run and returns its id.
func (s *Store) StartRun(ctx context.Context, callerID, threadID, runType string) (string, error) {
	if callerID == "" || threadID == "" {
		return "", fmt.Errorf("caller and thread required")
	}
	if runType == "" {
		runType = "chat"
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, caller_id, thread_id, run_type, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, callerID, threadID, runType, StatusRunning, s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun moves a running run to its final status.
func (s *Store) FinishRun(ctx context.Context, id string, out Outcome) error {
	switch out.Status {
	case StatusCompleted, StatusPartial, StatusFailed, StatusCancelled:
	default:
		return fmt.Errorf("invalid final status %q", out.Status)
	}
	tools := out.ToolsUsed
	if tools == nil {
		tools = []string{}
	}
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return fmt.Errorf("encode tools: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET
			status = ?,
			tools_used_json = ?,
			insights_count = ?,
			execution_time_ms = ?,
			error_message = NULLIF(?, ''),
			completed_at = ?
		WHERE id = ? AND status = 'running'
	`, out.Status, string(toolsJSON), out.InsightsCount, out.ExecutionTimeMs, out.ErrorMessage, s.now().Unix(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun returns a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, caller_id, thread_id, run_type, status, tools_used_json, insights_count,
			execution_time_ms, error_message, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, caller_id, thread_id, run_type, status, tools_used_json, insights_count,
			execution_time_ms, error_message, started_at, completed_at
		FROM runs
		WHERE (?1 = '' OR caller_id = ?1) AND (?2 = '' OR thread_id = ?2)
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?3
	`, f.CallerID, f.ThreadID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r         Run
		toolsJSON string
		errMsg    sql.NullString
		started   int64
		completed sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.CallerID, &r.ThreadID, &r.RunType, &r.Status, &toolsJSON,
		&r.InsightsCount, &r.ExecutionTimeMs, &errMsg, &started, &completed); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(toolsJSON), &r.ToolsUsed); err != nil {
		return nil, fmt.Errorf("decode tools: %w", err)
	}
	r.ErrorMessage = errMsg.String
	r.StartedAt = time.Unix(started, 0).UTC()
	if completed.Valid {
		t := time.Unix(completed.Int64, 0).UTC()
		r.CompletedAt = &t
	}
	return &r, nil
}
