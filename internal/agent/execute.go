package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/metrics"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/internal/tools/executor"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// toolOutcome is the settled result of one requested call.
type toolOutcome struct {
	call     model.ToolCall
	result   *executor.Result
	rejected *protocol.Rejection
}

// message renders the outcome as the tool message the model sees next.
func (t toolOutcome) message() model.Message {
	return model.Message{
		Role:       model.RoleTool,
		ToolCallID: t.call.ID,
		Name:       t.call.Name,
		Content:    t.result.JSON(),
	}
}

func (t toolOutcome) record() protocol.ToolCallRecord {
	return protocol.ToolCallRecord{
		ID:    t.call.ID,
		Name:  t.call.Name,
		Input: t.call.Input,
		Result: &protocol.ToolResult{
			Success:    t.result.Success,
			Data:       t.result.Data,
			Error:      t.result.Error,
			Code:       t.result.Code,
			DurationMs: t.result.DurationMs,
		},
	}
}

// authorize decides whether a requested call may run in this turn.
func authorize(call model.ToolCall, visible map[tools.ToolID]bool, confirmed bool) (tools.ToolID, *protocol.Rejection) {
	reject := func(code, reason string) *protocol.Rejection {
		return &protocol.Rejection{
			ToolCallID: call.ID,
			Name:       call.Name,
			Category:   apperrors.CategoryValidation.String(),
			Code:       code,
			Reason:     reason,
		}
	}

	id, ok := tools.Lookup(call.Name)
	if !ok {
		return 0, reject(apperrors.CodeToolNotFound, fmt.Sprintf("no tool named %q", call.Name))
	}
	if !visible[id] {
		return id, reject(apperrors.CodeToolNotAuthorized, fmt.Sprintf("%s is not available to this caller", call.Name))
	}
	if id.Descriptor().RequiresConfirmation && !confirmed {
		return id, reject(apperrors.CodeConfirmationRequired, fmt.Sprintf("%s needs the user's confirmation first", call.Name))
	}
	return id, nil
}

// executeToolCalls runs every call of one model response concurrently and
// returns the outcomes in call-issue order. A failing call never affects its
// siblings: errors, timeouts and panics all become error results.
func (o *Orchestrator) executeToolCalls(ctx context.Context, t *turn, calls []model.ToolCall) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))

	var g errgroup.Group
	g.SetLimit(o.maxParallelTools)

	for i, call := range calls {
		id, rejection := authorize(call, t.visible, t.req.Confirmed)
		if rejection != nil {
			o.logger.Warn("tool call rejected",
				"thread", t.req.ThreadID, "tool", call.Name, "role", t.req.Role, "code", rejection.Code)
			metrics.ObserveToolCall(metricToolName(call.Name), metrics.OutcomeRejected)
			outcomes[i] = toolOutcome{
				call:     call,
				result:   executor.NewCodedErrorResult(rejection.Code, errors.New(rejection.Reason)),
				rejected: rejection,
			}
			continue
		}

		g.Go(func() error {
			outcomes[i] = toolOutcome{call: call, result: o.runTool(ctx, t, id, call)}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// runTool executes one authorized call under the per-call timeout.
func (o *Orchestrator) runTool(ctx context.Context, t *turn, id tools.ToolID, call model.ToolCall) (res *executor.Result) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tool panicked",
				"thread", t.req.ThreadID, "tool", call.Name, "panic", r, "stack", string(debug.Stack()))
			res = executor.TimedResult(executor.NewCodedErrorResult(apperrors.CodeToolExecutionFailed,
				fmt.Errorf("%s failed unexpectedly", call.Name)), start)
		}
		outcome := metrics.OutcomeSuccess
		if !res.Success {
			outcome = metrics.OutcomeError
		}
		metrics.ObserveToolCall(call.Name, outcome)
	}()

	input := call.Input
	if input == nil {
		input = map[string]any{}
	}
	result, err := o.tools.Execute(callCtx, id, input)
	switch {
	case err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		return executor.TimedResult(executor.NewCodedErrorResult(apperrors.CodeToolTimeout,
			fmt.Errorf("%s timed out after %s", call.Name, o.toolTimeout)), start)
	case err != nil:
		o.logger.Warn("tool failed", "thread", t.req.ThreadID, "tool", call.Name, "error", err)
		return executor.TimedResult(executor.NewCodedErrorResult(apperrors.CodeToolExecutionFailed, err), start)
	case result == nil:
		return executor.TimedResult(executor.NewCodedErrorResult(apperrors.CodeToolExecutionFailed,
			fmt.Errorf("%s returned no result", call.Name)), start)
	}
	if result.DurationMs == 0 {
		result = executor.TimedResult(result, start)
	}
	return result
}

// metricToolName keeps label cardinality bounded for made-up tool names.
func metricToolName(name string) string {
	if _, ok := tools.Lookup(name); ok {
		return name
	}
	return "unknown"
}
