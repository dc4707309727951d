package protocol

// EventType identifies a stream event.
type EventType string

// Stream event types. A stream carries any number of token and tool_call
// events followed by exactly one complete or error event.
const (
	EventToken    EventType = "token"
	EventToolCall EventType = "tool_call"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one frame of a streamed turn.
type StreamEvent struct {
	Type     EventType       `json:"type"`
	Content  string          `json:"content,omitempty"`
	ToolCall *ToolCallRecord `json:"tool_call,omitempty"`
	Result   *TurnResponse   `json:"result,omitempty"`
	Fault    *Fault          `json:"fault,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
