package protocol

// Insight priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Insight is a structured finding the model attached to its answer.
type Insight struct {
	Category       string `json:"category"`
	Priority       string `json:"priority"`
	Finding        string `json:"finding"`
	Recommendation string `json:"recommendation,omitempty"`
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}
