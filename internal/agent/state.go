package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/flynn-ai/agentcore/internal/checkpoint"
	"github.com/flynn-ai/agentcore/internal/model"
)

// TurnState is what a checkpoint stores.
type TurnState struct {
	Messages []model.Message `json:"messages"`

	// PendingToolCalls were requested by the model but never run, because the
	// turn hit its iteration ceiling or was cancelled first. They are kept out
	// of Messages so the history stays well formed.
	PendingToolCalls []model.ToolCall `json:"pending_tool_calls,omitempty"`

	Iteration int    `json:"iteration"`
	Status    string `json:"status"`
}

// loadThread returns the head state of a thread and its checkpoint id. A
// thread without checkpoints yields an empty state and no parent.
func (o *Orchestrator) loadThread(ctx context.Context, threadID string) (*TurnState, string, error) {
	head, err := o.checkpoints.Get(ctx, threadID, "")
	if errors.Is(err, checkpoint.ErrNotFound) {
		return &TurnState{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load thread %s: %w", threadID, err)
	}

	var st TurnState
	if err := json.Unmarshal(head.State, &st); err != nil {
		// The chain stays intact; only the unreadable history is dropped.
		o.logger.Warn("checkpoint state unreadable, starting fresh",
			"thread", threadID, "checkpoint", head.ID, "error", err)
		return &TurnState{}, head.ID, nil
	}
	st.PendingToolCalls = nil
	return &st, head.ID, nil
}

// saveThread upserts the turn's checkpoint.
func (o *Orchestrator) saveThread(ctx context.Context, t *turn, status string) (string, error) {
	state := TurnState{
		Messages:         t.messages,
		PendingToolCalls: t.pending,
		Iteration:        t.iterations,
		Status:           status,
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode state: %w", err)
	}
	meta := map[string]any{
		"status":     status,
		"iterations": t.iterations,
		"role":       string(t.req.Role),
		"mode":       string(t.req.Mode),
		"model":      t.decision.Configuration.Model,
	}
	return o.checkpoints.Put(ctx, t.req.ThreadID, checkpoint.Checkpoint{
		ID:       t.checkpointID,
		ParentID: t.parentID,
		State:    raw,
	}, meta)
}
