// Package agent runs conversation turns: it routes each turn to a model,
// lets the model call the caller's authorized tools, and checkpoints the
// resulting history.
//
// A turn moves through Init, Invoking, ExecutingTools and Responding. Any
// model or storage failure is classified; usable assistant text is salvaged
// as a partial answer before a turn is given up.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flynn-ai/agentcore/internal/checkpoint"
	"github.com/flynn-ai/agentcore/internal/classifier"
	"github.com/flynn-ai/agentcore/internal/cost"
	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/internal/metrics"
	"github.com/flynn-ai/agentcore/internal/model"
	"github.com/flynn-ai/agentcore/internal/prompt"
	"github.com/flynn-ai/agentcore/internal/runlog"
	"github.com/flynn-ai/agentcore/internal/stats"
	"github.com/flynn-ai/agentcore/internal/tools"
	"github.com/flynn-ai/agentcore/internal/tools/executor"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// Defaults used when Config leaves a limit at zero.
const (
	DefaultMaxIterations     = 15
	DefaultMaxParallelTools  = 8
	DefaultModelRetries      = 3
	DefaultToolTimeout       = 30 * time.Second
	DefaultCheckpointTimeout = 5 * time.Second
	DefaultMaxInsights       = 10
)

const incompleteAnswer = "I could not finish this request within the allowed number of steps. " +
	"Please narrow it down or ask again to continue."

// ToolRunner exposes and executes catalog tools. *tools.Registry implements it.
type ToolRunner interface {
	ModelTools(ids []tools.ToolID) []model.Tool
	Execute(ctx context.Context, id tools.ToolID, input map[string]any) (*executor.Result, error)
}

// RunLog records runs and the insights they produce. *runlog.Store implements it.
type RunLog interface {
	StartRun(ctx context.Context, callerID, threadID, runType string) (string, error)
	FinishRun(ctx context.Context, id string, out runlog.Outcome) error
	SaveInsights(ctx context.Context, runID, callerID string, insights []protocol.Insight, limit int) (int, error)
}

// Config wires an Orchestrator. Router, Providers, Tools and Checkpoints are
// required; everything else has a default.
type Config struct {
	Router      *model.Router
	Providers   *model.ProviderSet
	Tools       ToolRunner
	Checkpoints checkpoint.Store

	RunLog     RunLog
	Prompt     *prompt.Builder
	Classifier *classifier.Classifier
	Quota      *Quota
	Cost       *cost.Tracker
	Stats      *stats.Collector
	Logger     *slog.Logger

	MaxIterations     int
	MaxParallelTools  int
	ModelRetries      int
	ToolTimeout       time.Duration
	TurnTimeout       time.Duration // zero leaves the caller's deadline alone
	CheckpointTimeout time.Duration
	MaxInsights       int

	// RetryPolicy overrides the backoff used for model calls. Its RetryIf is
	// always replaced: only transient provider faults are retried.
	RetryPolicy *apperrors.Policy
}

// Orchestrator runs turns. It is safe for concurrent use; turns on the same
// thread are serialized by the checkpoint chain, not by the orchestrator.
type Orchestrator struct {
	router      *model.Router
	providers   *model.ProviderSet
	tools       ToolRunner
	checkpoints checkpoint.Store
	runs        RunLog
	prompts     *prompt.Builder
	classifier  *classifier.Classifier
	quota       *Quota
	cost        *cost.Tracker
	stats       *stats.Collector
	logger      *slog.Logger

	maxIterations     int
	maxParallelTools  int
	toolTimeout       time.Duration
	turnTimeout       time.Duration
	checkpointTimeout time.Duration
	maxInsights       int
	retry             apperrors.Policy
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Router == nil:
		return nil, errors.New("agent: router is required")
	case cfg.Providers == nil:
		return nil, errors.New("agent: provider set is required")
	case cfg.Tools == nil:
		return nil, errors.New("agent: tool runner is required")
	case cfg.Checkpoints == nil:
		return nil, errors.New("agent: checkpoint store is required")
	}

	o := &Orchestrator{
		router:            cfg.Router,
		providers:         cfg.Providers,
		tools:             cfg.Tools,
		checkpoints:       cfg.Checkpoints,
		runs:              cfg.RunLog,
		prompts:           cfg.Prompt,
		classifier:        cfg.Classifier,
		quota:             cfg.Quota,
		cost:              cfg.Cost,
		stats:             cfg.Stats,
		logger:            cfg.Logger,
		maxIterations:     orDefault(cfg.MaxIterations, DefaultMaxIterations),
		maxParallelTools:  orDefault(cfg.MaxParallelTools, DefaultMaxParallelTools),
		toolTimeout:       orDefault(cfg.ToolTimeout, DefaultToolTimeout),
		turnTimeout:       cfg.TurnTimeout,
		checkpointTimeout: orDefault(cfg.CheckpointTimeout, DefaultCheckpointTimeout),
		maxInsights:       orDefault(cfg.MaxInsights, DefaultMaxInsights),
	}
	if o.prompts == nil {
		o.prompts = prompt.NewBuilder()
		o.prompts.MaxInsights = o.maxInsights
	}
	if o.classifier == nil {
		o.classifier = classifier.NewClassifier()
	}
	if o.cost == nil {
		o.cost = cost.NewTracker()
	}
	if o.stats == nil {
		o.stats = stats.NewCollector()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if cfg.RetryPolicy != nil {
		o.retry = *cfg.RetryPolicy
	} else {
		o.retry = *apperrors.DefaultPolicy()
		o.retry.MaxAttempts = 1 + orDefault(cfg.ModelRetries, DefaultModelRetries)
	}
	return o, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Cost returns the tracker that accumulates estimated model spend.
func (o *Orchestrator) Cost() *cost.Tracker { return o.cost }

// Stats returns the turn statistics collector.
func (o *Orchestrator) Stats() *stats.Collector { return o.stats }

// turn is the working state of one RunTurn call.
type turn struct {
	req   TurnRequest
	start time.Time

	toolIDs []tools.ToolID
	visible map[tools.ToolID]bool
	system  string

	messages   []model.Message
	pending    []model.ToolCall
	iterations int
	tokens     int
	decision   model.Decision

	// checkpointID is fixed for the whole turn so every write of it is an upsert.
	checkpointID string
	parentID     string
	runID        string

	records    []protocol.ToolCallRecord
	rejected   []protocol.Rejection
	lastAnswer string
}

// RunTurn runs one turn to completion. A turn that produced any answer
// returns a TurnResult, possibly flagged Partial. A turn that produced
// nothing usable returns a *TurnError.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return o.run(ctx, req, nil)
}

func (o *Orchestrator) run(ctx context.Context, req TurnRequest, sink *streamSink) (res *TurnResult, err error) {
	start := time.Now()
	if err := req.Validate(); err != nil {
		return nil, o.refuse(req, err)
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	if req.CallerID == "" {
		req.CallerID = req.ThreadID
	}
	if err := o.quota.Allow(req.CallerID); err != nil {
		return nil, o.refuse(req, err)
	}

	if o.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.turnTimeout)
		defer cancel()
	}

	t, err := o.begin(ctx, req, start)
	if err != nil {
		return nil, o.refuse(req, err)
	}
	defer func() { o.finish(t, res, err) }()

	return o.loop(ctx, t, sink)
}

// begin is the Init state: resolve tools, load history, route.
func (o *Orchestrator) begin(ctx context.Context, req TurnRequest, start time.Time) (*turn, error) {
	ids, err := tools.FilterTools(tools.All(), req.Role, req.Mode, tools.FilterOptions{
		IncludeAdmin: req.Role == tools.RoleAdmin,
	})
	if err != nil {
		return nil, err
	}

	state, parentID, err := o.loadThread(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		req:          req,
		start:        start,
		toolIDs:      ids,
		visible:      make(map[tools.ToolID]bool, len(ids)),
		messages:     append(state.Messages, model.Message{Role: model.RoleUser, Content: req.Message}),
		checkpointID: checkpoint.NewID(),
		parentID:     parentID,
	}
	anyPII := false
	for _, id := range ids {
		t.visible[id] = true
		anyPII = anyPII || id.Descriptor().HasPII
	}

	tc := model.TaskContext{TaskType: model.TaskInteractive, HasPII: &anyPII}
	if c := req.Constraints; c != nil {
		tc.MaxCost = c.MaxCost
		tc.MaxLatencyMs = c.MaxLatencyMs
		tc.AllowedProviders = c.AllowedProviders
		tc.PreferredProvider = c.PreferredProvider
	}
	t.decision = o.router.SelectModel(tc)
	metrics.ObserveRouting(string(t.decision.Configuration.Tier), t.decision.Configuration.Provider)

	t.system = o.prompts.BuildSystemPrompt(prompt.SystemContext{Role: req.Role, Mode: req.Mode, Tools: ids})

	if o.runs != nil {
		runType := string(req.Mode)
		if runType == "" {
			runType = string(tools.ModeChat)
		}
		runID, err := o.runs.StartRun(ctx, req.CallerID, req.ThreadID, runType)
		if err != nil {
			o.logger.Warn("run log unavailable", "thread", req.ThreadID, "error", err)
		}
		t.runID = runID
	}

	o.logger.Debug("turn started",
		"thread", req.ThreadID,
		"role", req.Role,
		"mode", req.Mode,
		"tools", len(ids),
		"history", len(state.Messages),
		"tier", t.decision.Configuration.Tier,
		"model", t.decision.Configuration.Model)
	return t, nil
}

// loop alternates Invoking and ExecutingTools until the model answers, the
// iteration ceiling is hit, the context ends or the model fails.
func (o *Orchestrator) loop(ctx context.Context, t *turn, sink *streamSink) (*TurnResult, error) {
	for t.iterations < o.maxIterations {
		if err := ctx.Err(); err != nil {
			return o.cancelled(ctx, t, err)
		}

		resp, err := o.invoke(ctx, t, sink)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return o.cancelled(ctx, t, ctxErr)
			}
			return o.faulted(ctx, t, err)
		}
		t.iterations++
		t.tokens += resp.TokensUsed
		o.cost.Record(t.decision.Configuration, resp.TokensUsed)
		if resp.Content != "" {
			t.lastAnswer = resp.Content
		}

		calls := assignCallIDs(resp.ToolCalls)
		if len(calls) == 0 {
			t.messages = append(t.messages, model.Message{Role: model.RoleAssistant, Content: resp.Content})
			return o.respond(ctx, t, resp.Content, StopComplete, nil)
		}

		if t.iterations >= o.maxIterations {
			// Calls requested on the last allowed step are kept, not run.
			if resp.Content != "" {
				t.messages = append(t.messages, model.Message{Role: model.RoleAssistant, Content: resp.Content})
			}
			t.pending = calls
			break
		}

		t.messages = append(t.messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: calls,
		})
		if sink != nil {
			for _, call := range calls {
				sink.toolCall(call)
			}
		}

		for _, out := range o.executeToolCalls(ctx, t, calls) {
			t.messages = append(t.messages, out.message())
			t.records = append(t.records, out.record())
			if out.rejected != nil {
				t.rejected = append(t.rejected, *out.rejected)
			}
		}
	}

	o.logger.Warn("iteration limit reached",
		"thread", t.req.ThreadID, "iterations", t.iterations, "pending_calls", len(t.pending))
	answer := t.lastAnswer
	if answer == "" {
		answer = incompleteAnswer
	}
	return o.respond(ctx, t, answer, StopMaxIterations, nil)
}

// invoke calls the routed model, retrying transient provider faults. Once a
// streamed token reached the caller a retry would duplicate output, so it stops.
func (o *Orchestrator) invoke(ctx context.Context, t *turn, sink *streamSink) (*model.Response, error) {
	req := &model.Request{
		Config:   t.decision.Configuration,
		System:   t.system,
		Messages: t.messages,
		Tools:    o.tools.ModelTools(t.toolIDs),
	}

	emitted := false
	policy := o.retry
	policy.RetryIf = func(err error) bool {
		if emitted {
			return false
		}
		fc := o.classifier.Classify(err)
		return fc.Category == apperrors.CategoryTransientProvider && fc.Retryable
	}

	resp, err := apperrors.DoWithResult(ctx, &policy, func() (*model.Response, error) {
		if sink == nil {
			return o.providers.Invoke(ctx, req)
		}
		return o.providers.Stream(ctx, req, func(d model.Delta) error {
			if d.Content == "" {
				return nil
			}
			emitted = true
			return sink.token(d.Content)
		})
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, apperrors.New(apperrors.CodeModelInvalidResponse, "model returned no response", apperrors.CategoryTransientProvider)
	}
	return resp, nil
}

// respond is the Responding state: extract insights, persist, build the result.
func (o *Orchestrator) respond(ctx context.Context, t *turn, answer string, stop StopReason, fault *classifier.FaultContext) (*TurnResult, error) {
	insights, answer := ExtractInsights(answer)
	if len(insights) > o.maxInsights {
		insights = insights[:o.maxInsights]
	}

	res := &TurnResult{
		ThreadID:   t.req.ThreadID,
		RunID:      t.runID,
		Response:   answer,
		Partial:    stop != StopComplete,
		StopReason: stop,
		Fault:      fault,
		Insights:   insights,
		ToolCalls:  t.records,
		Rejected:   t.rejected,
		Iterations: t.iterations,
		Model:      t.decision.Configuration,
		TokensUsed: t.tokens,
	}

	status := StatusCompleted
	if res.Partial {
		status = StatusPartial
	}
	id, err := o.persist(ctx, t, status)
	if err != nil {
		// The answer stands; only the write is reported. The model is not re-invoked.
		fc := o.classifier.Classify(err)
		res.Partial = true
		res.StopReason = StopPersistFailed
		res.Fault = &fc
	} else {
		res.CheckpointID = id
	}
	res.DurationMs = time.Since(t.start).Milliseconds()
	return res, nil
}

// faulted is the Faulted state for model failures.
func (o *Orchestrator) faulted(ctx context.Context, t *turn, err error) (*TurnResult, error) {
	fc := o.classifier.Classify(err)
	o.logger.Warn("model invocation failed",
		"thread", t.req.ThreadID,
		"category", fc.Category,
		"code", fc.Code,
		"rule", fc.Rule,
		"iterations", t.iterations,
		"error", fc.TechnicalMessage)

	if t.lastAnswer != "" {
		return o.respond(ctx, t, t.lastAnswer, StopSalvaged, &fc)
	}
	return nil, &TurnError{Fault: fc, ThreadID: t.req.ThreadID, Err: err}
}

// cancelled saves whatever the turn has so far and reports the cancellation.
func (o *Orchestrator) cancelled(ctx context.Context, t *turn, cause error) (*TurnResult, error) {
	fc := o.classifier.Classify(cause)
	id, err := o.persist(ctx, t, StatusCancelled)
	if err != nil {
		o.logger.Warn("checkpoint of cancelled turn failed", "thread", t.req.ThreadID, "error", err)
	}
	return nil, &TurnError{Fault: fc, ThreadID: t.req.ThreadID, CheckpointID: id, Cancelled: true, Err: cause}
}

// persist writes the turn's checkpoint on a context detached from the
// caller, bounded by the checkpoint timeout. Busy storage is retried here;
// a fork is not retried at all.
func (o *Orchestrator) persist(ctx context.Context, t *turn, status string) (string, error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.checkpointTimeout)
	defer cancel()

	policy := apperrors.FastPolicy()
	policy.RetryIf = func(err error) bool {
		return o.classifier.Classify(err).Code == apperrors.CodeStorageBusy
	}
	id, err := apperrors.DoWithResult(writeCtx, policy, func() (string, error) {
		return o.saveThread(writeCtx, t, status)
	})

	switch {
	case err == nil:
		metrics.ObserveCheckpointWrite(metrics.OutcomeSuccess)
	case o.classifier.Classify(err).Category == apperrors.CategoryPersistenceConflict:
		metrics.ObserveCheckpointWrite(metrics.OutcomeConflict)
		o.logger.Warn("checkpoint conflict", "thread", t.req.ThreadID, "checkpoint", t.checkpointID, "parent", t.parentID, "error", err)
	default:
		metrics.ObserveCheckpointWrite(metrics.OutcomeError)
		o.logger.Error("checkpoint write failed", "thread", t.req.ThreadID, "checkpoint", t.checkpointID, "error", err)
	}
	return id, err
}

// finish records the turn in the run log, metrics and stats.
func (o *Orchestrator) finish(t *turn, res *TurnResult, err error) {
	elapsed := time.Since(t.start)

	status := runlog.StatusCompleted
	var fault *classifier.FaultContext
	switch {
	case res == nil:
		var te *TurnError
		if errors.As(err, &te) {
			fault = &te.Fault
		}
		status = runlog.StatusFailed
		if te != nil && te.Cancelled {
			status = runlog.StatusCancelled
		}
	case res.Partial:
		status = runlog.StatusPartial
		fault = res.Fault
	}

	metrics.ObserveTurn(status, elapsed)
	o.stats.RecordTurn(t.tokens, elapsed, status == runlog.StatusPartial)
	if fault != nil {
		category := fault.Category.String()
		metrics.ObserveFault(category)
		o.stats.RecordFault(category)
	}

	o.logger.Info("turn finished",
		"thread", t.req.ThreadID,
		"status", status,
		"iterations", t.iterations,
		"tool_calls", len(t.records),
		"rejected", len(t.rejected),
		"tokens", t.tokens,
		"duration_ms", elapsed.Milliseconds())

	if o.runs == nil || t.runID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.checkpointTimeout)
	defer cancel()

	out := runlog.Outcome{
		Status:          status,
		ToolsUsed:       toolsUsed(t.records),
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if res != nil && len(res.Insights) > 0 {
		saved, err := o.runs.SaveInsights(ctx, t.runID, t.req.CallerID, res.Insights, o.maxInsights)
		if err != nil {
			o.logger.Warn("saving insights failed", "run", t.runID, "error", err)
		}
		out.InsightsCount = saved
	}
	if fault != nil {
		out.ErrorMessage = fmt.Sprintf("%s: %s", fault.Code, fault.TechnicalMessage)
	}
	if err := o.runs.FinishRun(ctx, t.runID, out); err != nil {
		o.logger.Warn("finishing run failed", "run", t.runID, "error", err)
	}
}

// refuse reports a turn that was turned away before it started.
func (o *Orchestrator) refuse(req TurnRequest, err error) error {
	fc := o.classifier.Classify(err)
	metrics.ObserveTurn(metrics.OutcomeRejected, 0)
	metrics.ObserveFault(fc.Category.String())
	o.stats.RecordFault(fc.Category.String())
	o.logger.Info("turn refused", "thread", req.ThreadID, "caller", req.CallerID, "code", fc.Code, "error", fc.TechnicalMessage)
	return &TurnError{Fault: fc, ThreadID: req.ThreadID, Err: err}
}

func invalidInput(msg string) error {
	return apperrors.Validation(apperrors.CodeInvalidInput, msg)
}

// assignCallIDs gives every call an id so results can be attributed.
func assignCallIDs(calls []model.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]model.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}

func toolsUsed(records []protocol.ToolCallRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range records {
		if r.Result == nil || r.Result.Code == apperrors.CodeToolNotFound || seen[r.Name] {
			continue
		}
		seen[r.Name] = true
		names = append(names, r.Name)
	}
	return names
}
