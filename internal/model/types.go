// Package model provides types for model routing and provider calls.
package model

import "encoding/json"

// Tier is a named pool of model configurations grouped by cost, latency and reasoning profile.
type Tier string

const (
	TierFastCheap     Tier = "fast-cheap"
	TierLargeContext  Tier = "large-context"
	TierHighReasoning Tier = "high-reasoning"
	TierSecurePrivate Tier = "secure-private" // only tier consulted when PII is present
)

// Tiers lists every tier in routing order.
var Tiers = []Tier{TierFastCheap, TierLargeContext, TierHighReasoning, TierSecurePrivate}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFastCheap, TierLargeContext, TierHighReasoning, TierSecurePrivate:
		return true
	}
	return false
}

// Complexity is the caller's estimate of how hard a task is.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// TaskType describes the kind of work being routed.
type TaskType string

const (
	TaskQuery       TaskType = "query"
	TaskMutation    TaskType = "mutation"
	TaskGeneration  TaskType = "generation"
	TaskAnalysis    TaskType = "analysis"
	TaskInteractive TaskType = "interactive"
)

// Configuration is one concrete model a provider can run.
type Configuration struct {
	Provider           string  `json:"provider"`
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int     `json:"max_tokens"`
	EstimatedCost      float64 `json:"estimated_cost"` // USD per call
	EstimatedLatencyMs int     `json:"estimated_latency_ms"`
	Tier               Tier    `json:"tier"`
	Compliant          bool    `json:"compliant"`
}

// TaskContext describes one unit of work to route. It is built per decision and never stored.
type TaskContext struct {
	Tool       string     `json:"tool,omitempty"`
	TaskType   TaskType   `json:"task_type,omitempty"`
	Complexity Complexity `json:"complexity,omitempty"`

	// HasPII overrides every other sensitivity signal when set.
	HasPII *bool `json:"has_pii,omitempty"`

	MaxCost           float64  `json:"max_cost,omitempty"`
	MaxLatencyMs      int      `json:"max_latency_ms,omitempty"`
	AllowedProviders  []string `json:"allowed_providers,omitempty"`
	PreferredProvider string   `json:"preferred_provider,omitempty"`
}

// Decision is the router's answer plus the path that led to it.
type Decision struct {
	Configuration Configuration `json:"configuration"`
	Reason        string        `json:"reason"`
	HasPII        bool          `json:"has_pii"`
	PIISource     string        `json:"pii_source"` // explicit, catalog, heuristic
}

// ============================================================
// Provider messages
// ============================================================

// Role of a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry of the conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool only
	Name       string     `json:"name,omitempty"`         // tool only
}

// Tool is a tool definition offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Request is one model invocation.
type Request struct {
	Config   Configuration `json:"config"`
	System   string        `json:"system,omitempty"`
	Messages []Message     `json:"messages"`
	Tools    []Tool        `json:"tools,omitempty"`
}

// Response is the model's reply.
type Response struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	TokensUsed int        `json:"tokens_used"`
	Model      string     `json:"model"`
	DurationMs int64      `json:"duration_ms"`
}

// Delta is one incremental piece of a streamed response.
type Delta struct {
	Content  string    `json:"content,omitempty"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// ArgumentsJSON renders tool-call input for providers that expect a JSON string.
func (c ToolCall) ArgumentsJSON() string {
	if len(c.Input) == 0 {
		return "{}"
	}
	b, err := json.Marshal(c.Input)
	if err != nil {
		return "{}"
	}
	return string(b)
}
