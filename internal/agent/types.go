package agent

import (
	"fmt"
	"strings"

	"github.com/flynn-ai/agentcore/internal/classifier"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// StopReason says why a turn ended.
type StopReason string

const (
	StopComplete      StopReason = "complete"
	StopMaxIterations StopReason = "max_iterations"
	StopSalvaged      StopReason = "salvaged"
	StopPersistFailed StopReason = "persist_failed"
)

// Checkpoint state statuses.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusCancelled = "cancelled"
)

// TurnRequest is one caller message.
type TurnRequest struct {
	Message  string
	ThreadID string // empty starts a new thread
	Role     tools.Role
	Mode     tools.Mode
	CallerID string // quota and run-log owner; defaults to the thread id

	// Confirmed allows tools that require confirmation.
	Confirmed bool

	Constraints *protocol.Constraints
}

// RequestFromWire converts and validates an API request.
func RequestFromWire(w protocol.TurnRequest) (TurnRequest, error) {
	req := TurnRequest{
		Message:     w.Message,
		ThreadID:    w.ThreadID,
		Role:        tools.Role(strings.ToLower(w.Role)),
		Mode:        tools.Mode(strings.ToLower(w.Mode)),
		CallerID:    w.CallerID,
		Confirmed:   w.Confirmed,
		Constraints: w.Constraints,
	}
	return req, req.Validate()
}

// Validate checks the request before any work is done.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return invalidInput("message is required")
	}
	if !r.Role.Valid() {
		return invalidInput(fmt.Sprintf("unknown role %q", r.Role))
	}
	if !r.Mode.Valid() {
		return invalidInput(fmt.Sprintf("unknown mode %q", r.Mode))
	}
	return nil
}

// TurnResult is the outcome of a turn that produced an answer.
type TurnResult struct {
	ThreadID     string
	CheckpointID string // empty when the checkpoint could not be written
	RunID        string
	Response     string
	Partial      bool
	StopReason   StopReason
	Fault        *classifier.FaultContext
	Insights     []protocol.Insight
	ToolCalls    []protocol.ToolCallRecord
	Rejected     []protocol.Rejection
	Iterations   int
	Model        model.Configuration
	TokensUsed   int
	DurationMs   int64
}

// Wire converts the result for the API.
func (r *TurnResult) Wire() *protocol.TurnResponse {
	resp := &protocol.TurnResponse{
		ThreadID:     r.ThreadID,
		CheckpointID: r.CheckpointID,
		RunID:        r.RunID,
		Response:     r.Response,
		Partial:      r.Partial,
		StopReason:   string(r.StopReason),
		Insights:     r.Insights,
		ToolCalls:    r.ToolCalls,
		Rejected:     r.Rejected,
		Iterations:   r.Iterations,
		Metadata: protocol.ResponseMeta{
			Tier:       string(r.Model.Tier),
			Provider:   r.Model.Provider,
			Model:      r.Model.Model,
			TokensUsed: r.TokensUsed,
			Cost:       r.Model.EstimatedCost * float64(r.Iterations),
			DurationMs: r.DurationMs,
		},
	}
	if r.Fault != nil {
		resp.Fault = r.Fault.Wire()
	}
	return resp
}

// TurnError is returned when a turn produced no usable answer.
type TurnError struct {
	Fault    classifier.FaultContext
	ThreadID string

	// CheckpointID is set when a cancelled turn's partial state was saved.
	CheckpointID string
	Cancelled    bool

	Err error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed (%s): %v", e.Fault.Category, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}
