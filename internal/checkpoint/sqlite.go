package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// maxChainDepth bounds a history walk.
const maxChainDepth = 100000

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id            TEXT NOT NULL,
	checkpoint_id        TEXT NOT NULL,
	parent_checkpoint_id TEXT,
	state                BLOB NOT NULL,
	metadata             TEXT,
	created_at           INTEGER NOT NULL,
	updated_at           INTEGER NOT NULL,
	PRIMARY KEY (thread_id, checkpoint_id)
);

-- one child per parent: a second child is a fork
CREATE UNIQUE INDEX IF NOT EXISTS idx_checkpoints_parent
	ON checkpoints(thread_id, IFNULL(parent_checkpoint_id, ''));

CREATE INDEX IF NOT EXISTS idx_checkpoints_updated ON checkpoints(thread_id, updated_at DESC);
`

// SQLiteStore is a Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	retry  *apperrors.Policy
	now    func() time.Time
}

// OpenSQLite opens (or creates) the checkpoint database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	retry := apperrors.FastPolicy()
	retry.RetryIf = isBusy

	return &SQLiteStore{db: db, logger: logger, retry: retry, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, threadID string, cp Checkpoint, metadata map[string]any) (string, error) {
	if threadID == "" {
		return "", apperrors.Validation(apperrors.CodeInvalidInput, "thread id is required")
	}
	if cp.ID == "" {
		cp.ID = NewID()
	}
	if cp.ParentID == cp.ID {
		return "", apperrors.Validation(apperrors.CodeInvalidInput, "checkpoint cannot be its own parent")
	}
	if metadata == nil {
		metadata = cp.Metadata
	}

	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshal checkpoint metadata: %w", err)
	}
	state := []byte(cp.State)
	if state == nil {
		state = []byte("null")
	}

	err = apperrors.Do(ctx, s.retry, func() error {
		return s.put(ctx, threadID, cp, state, metaJSON)
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("checkpoint stored", "thread_id", threadID, "checkpoint_id", cp.ID, "parent", cp.ParentID)
	return cp.ID, nil
}

func (s *SQLiteStore) put(ctx context.Context, threadID string, cp Checkpoint, state, metaJSON []byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError(err, "begin checkpoint write")
	}
	defer tx.Rollback()

	// An existing checkpoint keeps its parent; only state and metadata change.
	var prevParent sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT parent_checkpoint_id FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`,
		threadID, cp.ID).Scan(&prevParent)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return storageError(err, "check existing checkpoint")
	case prevParent.String != cp.ParentID:
		return conflictError(threadID, cp.ID, fmt.Sprintf("checkpoint already extends %q", prevParent.String))
	}

	if cp.ParentID != "" {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM checkpoints WHERE thread_id = ? AND checkpoint_id = ?`,
			threadID, cp.ParentID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return conflictError(threadID, cp.ID, fmt.Sprintf("parent %s is not in the thread", cp.ParentID))
		}
		if err != nil {
			return storageError(err, "check checkpoint parent")
		}
	}

	now := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, checkpoint_id, parent_checkpoint_id, state, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, checkpoint_id) DO UPDATE SET
			state = excluded.state,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		threadID, cp.ID, nullString(cp.ParentID), state, string(metaJSON), now, now)
	if err != nil {
		if isUnique(err) {
			return conflictError(threadID, cp.ID, "another checkpoint already extends this parent")
		}
		return storageError(err, "write checkpoint")
	}

	if err := tx.Commit(); err != nil {
		return storageError(err, "commit checkpoint")
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, threadID, checkpointID string) (*Checkpoint, error) {
	var row *sql.Row
	if checkpointID == "" {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, checkpoint_id, parent_checkpoint_id, state, metadata, created_at, updated_at
			FROM checkpoints c
			WHERE thread_id = ?
			  AND NOT EXISTS (
				SELECT 1 FROM checkpoints x
				WHERE x.thread_id = c.thread_id AND x.parent_checkpoint_id = c.checkpoint_id)
			ORDER BY rowid DESC
			LIMIT 1`, threadID)
	} else {
		row = s.db.QueryRowContext(ctx, `
			SELECT thread_id, checkpoint_id, parent_checkpoint_id, state, metadata, created_at, updated_at
			FROM checkpoints
			WHERE thread_id = ? AND checkpoint_id = ?`, threadID, checkpointID)
	}

	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint: %w", err)
	}
	return cp, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, threadID string, opts ListOptions) ([]Checkpoint, error) {
	var start string
	if opts.Before != "" {
		before, err := s.Get(ctx, threadID, opts.Before)
		if err != nil {
			return nil, err
		}
		if before.ParentID == "" {
			return []Checkpoint{}, nil
		}
		start = before.ParentID
	} else {
		head, err := s.Get(ctx, threadID, "")
		if errors.Is(err, ErrNotFound) {
			return []Checkpoint{}, nil
		}
		if err != nil {
			return nil, err
		}
		start = head.ID
	}

	depth := maxChainDepth
	if opts.Limit > 0 {
		depth = opts.Limit
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(checkpoint_id, parent_checkpoint_id, depth) AS (
			SELECT checkpoint_id, parent_checkpoint_id, 0
			FROM checkpoints WHERE thread_id = ?1 AND checkpoint_id = ?2
			UNION ALL
			SELECT c.checkpoint_id, c.parent_checkpoint_id, chain.depth + 1
			FROM checkpoints c
			JOIN chain ON c.thread_id = ?1 AND c.checkpoint_id = chain.parent_checkpoint_id
			WHERE chain.depth + 1 < ?3
		)
		SELECT c.thread_id, c.checkpoint_id, c.parent_checkpoint_id, c.state, c.metadata, c.created_at, c.updated_at
		FROM chain
		JOIN checkpoints c ON c.thread_id = ?1 AND c.checkpoint_id = chain.checkpoint_id
		ORDER BY chain.depth`, threadID, start, depth)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	out := make([]Checkpoint, 0)
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, *cp)
	}
	return out, rows.Err()
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) error {
	return apperrors.Do(ctx, s.retry, func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
			return storageError(err, "delete thread")
		}
		return nil
	})
}

// ListThreads implements Store.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]ThreadSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, COUNT(*), MAX(updated_at)
		FROM checkpoints
		GROUP BY thread_id
		ORDER BY MAX(updated_at) DESC, thread_id`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	out := make([]ThreadSummary, 0)
	for rows.Next() {
		var ts ThreadSummary
		var updated int64
		if err := rows.Scan(&ts.ThreadID, &ts.Checkpoints, &updated); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		ts.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, ts)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (*Checkpoint, error) {
	var (
		cp               Checkpoint
		parent, metadata sql.NullString
		state            []byte
		created, updated int64
	)
	if err := row.Scan(&cp.ThreadID, &cp.ID, &parent, &state, &metadata, &created, &updated); err != nil {
		return nil, err
	}
	cp.ParentID = parent.String
	cp.State = json.RawMessage(state)
	cp.CreatedAt = time.UnixMilli(created).UTC()
	cp.UpdatedAt = time.UnixMilli(updated).UTC()
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &cp, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isBusy(err error) bool {
	return apperrors.GetCode(err) == apperrors.CodeStorageBusy
}

// storageError marks SQLITE_BUSY and SQLITE_LOCKED as locally retryable.
func storageError(err error, op string) error {
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return apperrors.Wrap(err, apperrors.CodeStorageBusy, op+": database busy", apperrors.CategoryPersistenceConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func conflictError(threadID, checkpointID, detail string) error {
	return &apperrors.AppError{
		Code:      apperrors.CodeCheckpointConflict,
		Message:   fmt.Sprintf("thread %s advanced concurrently: %s", threadID, detail),
		Category:  apperrors.CategoryPersistenceConflict,
		Inner:     ErrConflict,
		Retryable: true,
		Context:   map[string]interface{}{"thread_id": threadID, "checkpoint_id": checkpointID},
		Suggestions: []string{
			"Reload the conversation and send the message again",
		},
	}
}
