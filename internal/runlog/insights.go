package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// InsightStatusActive marks an insight that has not been dismissed.
const InsightStatusActive = "active"

// InsightRecord is a persisted insight.
type InsightRecord struct {
	protocol.Insight
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	CallerID  string    `json:"caller_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// InsightFilter selects insights.
type InsightFilter struct {
	CallerID string
	Status   string
	Limit    int
}

// SaveInsights stores up to limit insights for a run and returns how many
// were written. Insights with an unknown priority or no finding are skipped.
func (s *Store) SaveInsights(ctx context.Context, runID, callerID string, insights []protocol.Insight, limit int) (int, error) {
	if len(insights) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO insights (id, run_id, caller_id, category, priority, finding, recommendation, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	now := s.now().Unix()
	saved := 0
	for _, in := range insights {
		if limit > 0 && saved >= limit {
			break
		}
		if in.Finding == "" || !protocol.ValidPriority(in.Priority) {
			continue
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), runID, callerID, in.Category, in.Priority,
			in.Finding, in.Recommendation, InsightStatusActive, now); err != nil {
			return 0, fmt.Errorf("save insight: %w", err)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return saved, nil
}

// ListInsights returns insights newest first, high priority first within a run.
func (s *Store) ListInsights(ctx context.Context, f InsightFilter) ([]InsightRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	status := f.Status
	if status == "" {
		status = InsightStatusActive
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, caller_id, category, priority, finding, recommendation, status, created_at
		FROM insights
		WHERE (?1 = '' OR caller_id = ?1) AND status = ?2
		ORDER BY created_at DESC,
			CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END,
			rowid
		LIMIT ?3
	`, f.CallerID, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	out := make([]InsightRecord, 0)
	for rows.Next() {
		var (
			rec     InsightRecord
			rec2    sql.NullString
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.CallerID, &rec.Category, &rec.Priority,
			&rec.Finding, &rec2, &rec.Status, &created); err != nil {
			return nil, err
		}
		rec.Recommendation = rec2.String
		rec.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DismissInsight marks an insight as dismissed.
func (s *Store) DismissInsight(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE insights SET status = 'dismissed' WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("dismiss insight: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("insight %s: %w", id, ErrNotFound)
	}
	return nil
}
