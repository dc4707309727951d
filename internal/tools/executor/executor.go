// Package executor provides the tool execution interface, result type and
// the record-store backed tool implementations.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/flynn-ai/agentcore/internal/records"
)

// Tool represents a callable tool.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string

	// Description returns what the tool does.
	Description() string

	// Execute runs the tool with the given input. Bad input and missing
	// records come back as error results; a non-nil error means the tool
	// could not run at all.
	Execute(ctx context.Context, input map[string]any) (*Result, error)
}

// Result represents the result of a tool execution.
type Result struct {
	Success    bool   `json:"success"`
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
	Code       string `json:"code,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// NewSuccessResult creates a successful result.
func NewSuccessResult(data any) *Result {
	return &Result{
		Success: true,
		Data:    data,
	}
}

// NewErrorResult creates an error result.
func NewErrorResult(err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
	}
}

// NewCodedErrorResult creates an error result carrying a machine-readable code.
func NewCodedErrorResult(code string, err error) *Result {
	return &Result{
		Success: false,
		Error:   err.Error(),
		Code:    code,
	}
}

// TimedResult wraps a result with duration.
func TimedResult(result *Result, start time.Time) *Result {
	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// JSON renders the result for the model's tool message.
func (r *Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"error":%q}`, err.Error())
	}
	return string(b)
}

// storeFailure turns a record-store error into a tool result or a hard error.
// Missing records are the model's problem; anything else is ours.
func storeFailure(err error, start time.Time) (*Result, error) {
	if errors.Is(err, records.ErrNotFound) || errors.Is(err, records.ErrUnknownEntity) {
		return TimedResult(NewErrorResult(err), start), nil
	}
	return nil, err
}

// ============================================================
// Input helpers
// ============================================================

func stringArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return s
}

func requireString(input map[string]any, key string) (string, error) {
	s := stringArg(input, key)
	if s == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return s, nil
}

// intArg accepts JSON numbers, Go ints and numeric strings.
func intArg(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func today(now func() time.Time) time.Time {
	if now == nil {
		now = time.Now
	}
	y, m, d := now().UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
