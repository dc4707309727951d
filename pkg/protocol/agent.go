// Package protocol provides the wire types shared by the agentcore API,
// its stream events and persisted insights. These types can be imported by
// external clients.
package protocol

// TurnRequest is one caller message routed through the agent.
type TurnRequest struct {
	Message     string       `json:"message"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Role        string       `json:"role"`
	Mode        string       `json:"mode,omitempty"`
	CallerID    string       `json:"caller_id,omitempty"`
	Confirmed   bool         `json:"confirmed,omitempty"` // allows confirmation-gated tools
	Constraints *Constraints `json:"constraints,omitempty"`
}

// Constraints narrows model routing for a turn.
type Constraints struct {
	MaxCost           float64  `json:"max_cost,omitempty"`
	MaxLatencyMs      int      `json:"max_latency_ms,omitempty"`
	AllowedProviders  []string `json:"allowed_providers,omitempty"`
	PreferredProvider string   `json:"preferred_provider,omitempty"`
}

// TurnResponse is the outcome of a turn.
type TurnResponse struct {
	ThreadID     string           `json:"thread_id"`
	CheckpointID string           `json:"checkpoint_id,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	Response     string           `json:"response"`
	Partial      bool             `json:"partial"`
	StopReason   string           `json:"stop_reason"` // complete, max_iterations, salvaged, persist_failed
	Fault        *Fault           `json:"fault,omitempty"`
	Insights     []Insight        `json:"insights,omitempty"`
	ToolCalls    []ToolCallRecord `json:"tool_calls,omitempty"`
	Rejected     []Rejection      `json:"rejected,omitempty"`
	Iterations   int              `json:"iterations"`
	Metadata     ResponseMeta     `json:"metadata"`
}

// ResponseMeta contains metadata about the response.
type ResponseMeta struct {
	Tier       string  `json:"tier"`
	Provider   string  `json:"provider"`
	Model      string  `json:"model"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`
	DurationMs int64   `json:"duration_ms"`
}

// Fault is the user-safe view of a classified failure.
type Fault struct {
	Category          string `json:"category"`
	Severity          string `json:"severity"`
	Retryable         bool   `json:"retryable"`
	Message           string `json:"message"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// RouteRequest asks the router for a decision without running a turn.
type RouteRequest struct {
	Tool        string       `json:"tool,omitempty"`
	TaskType    string       `json:"task_type,omitempty"`
	Complexity  string       `json:"complexity,omitempty"`
	HasPII      *bool        `json:"has_pii,omitempty"`
	Constraints *Constraints `json:"constraints,omitempty"`
}

// RouteResponse describes a routing decision.
type RouteResponse struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	Tier          string  `json:"tier"`
	Compliant     bool    `json:"compliant"`
	EstimatedCost float64 `json:"estimated_cost"`
	HasPII        bool    `json:"has_pii"`
	PIISource     string  `json:"pii_source"`
	Reason        string  `json:"reason"`
}
