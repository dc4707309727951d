package protocol

// ToolCallRecord is one tool call the model issued during a turn.
type ToolCallRecord struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
	Result *ToolResult    `json:"result,omitempty"`
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Rejection records a tool call that was refused without running.
type Rejection struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Category   string `json:"category"` // always validation
	Code       string `json:"code"`
	Reason     string `json:"reason"`
}

// ToolDefinition describes a catalog tool.
type ToolDefinition struct {
	Name                 string         `json:"name"`
	DisplayName          string         `json:"display_name"`
	Description          string         `json:"description"`
	Category             string         `json:"category"`
	Permission           string         `json:"permission"`
	HasPII               bool           `json:"has_pii"`
	RequiresConfirmation bool           `json:"requires_confirmation"`
	Tier                 string         `json:"tier,omitempty"`
	Parameters           map[string]any `json:"parameters"`
}
