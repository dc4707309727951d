// Package errors provides the error taxonomy shared by every agentcore component.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ============================================================
// Error Categories
// ============================================================

// Category is the closed set of fault kinds the execution loop reacts to.
type Category int

const (
	// CategoryUnknown is anything not recognised below. Never retried.
	CategoryUnknown Category = iota

	// CategoryValidation covers malformed input and stale tool-call references.
	CategoryValidation

	// CategoryTransientProvider covers network failures, timeouts and rate limits from a model provider.
	CategoryTransientProvider

	// CategoryPersistenceConflict is a concurrent writer on the same conversation thread.
	CategoryPersistenceConflict

	// CategoryQuota is a hard caller-side or provider-side limit.
	CategoryQuota
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryTransientProvider:
		return "transient-provider"
	case CategoryPersistenceConflict:
		return "persistence-conflict"
	case CategoryQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	*c = ParseCategory(string(b))
	return nil
}

// ParseCategory maps a category name back to its value. Unrecognised names are CategoryUnknown.
func ParseCategory(s string) Category {
	switch s {
	case "validation":
		return CategoryValidation
	case "transient-provider":
		return CategoryTransientProvider
	case "persistence-conflict":
		return CategoryPersistenceConflict
	case "quota":
		return CategoryQuota
	default:
		return CategoryUnknown
	}
}

// ============================================================
// AppError - Main Error Type
// ============================================================

// AppError is the main error type for all agentcore errors.
type AppError struct {
	// Code is a unique error code for programmatic handling
	Code string

	// Message is a user-friendly error message
	Message string

	// Category determines how the error should be handled
	Category Category

	// Inner is the underlying error
	Inner error

	// Retryable indicates if the operation can be retried
	Retryable bool

	// Suggestions are recovery suggestions for the user
	Suggestions []string

	// Context is additional debugging information
	Context map[string]interface{}

	// RetryAfter is the suggested delay before retry
	RetryAfter time.Duration
}

// Error returns the error message.
func (e *AppError) Error() string {
	var sb strings.Builder

	if e.Code != "" {
		sb.WriteString("[")
		sb.WriteString(e.Code)
		sb.WriteString("] ")
	}

	sb.WriteString(e.Message)

	if e.Inner != nil {
		innerMsg := e.Inner.Error()
		if innerMsg != "" && innerMsg != e.Message {
			sb.WriteString(": ")
			sb.WriteString(innerMsg)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Inner
}

// Is checks if the target error is contained in this error.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Inner, target)
}

// ============================================================
// Error Constructors
// ============================================================

// New creates a new AppError.
func New(code, message string, category Category) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: category,
	}
}

// Wrap wraps an existing error with context.
func Wrap(err error, code, message string, category Category) *AppError {
	if err == nil {
		return nil
	}

	// If it's already an AppError, keep its retry hints
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:        code,
			Message:     message,
			Category:    category,
			Inner:       appErr,
			Retryable:   appErr.Retryable,
			Suggestions: appErr.Suggestions,
			Context:     appErr.Context,
			RetryAfter:  appErr.RetryAfter,
		}
	}

	return &AppError{
		Code:      code,
		Message:   message,
		Category:  category,
		Inner:     err,
		Retryable: category == CategoryTransientProvider || category == CategoryPersistenceConflict,
	}
}

// Validation creates a non-retryable validation error.
func Validation(code, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Category: CategoryValidation,
	}
}

// Transient creates a retryable provider error.
func Transient(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  CategoryTransientProvider,
		Retryable: true,
	}
}

// Conflict creates a retryable persistence conflict.
func Conflict(code, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  CategoryPersistenceConflict,
		Retryable: true,
	}
}

// Quota creates a quota error. It is retryable only when a retry delay is known.
func Quota(code, message string, retryAfter time.Duration) *AppError {
	e := &AppError{
		Code:       code,
		Message:    message,
		Category:   CategoryQuota,
		Retryable:  retryAfter > 0,
		RetryAfter: retryAfter,
	}
	if retryAfter > 0 {
		e.Suggestions = []string{fmt.Sprintf("Wait %s before retrying", retryAfter.Round(time.Second))}
	}
	return e
}

// ============================================================
// Builder Pattern for Fluent Error Construction
// ============================================================

// Builder provides fluent error construction.
type Builder struct {
	err *AppError
}

// NewBuilder starts building a new error. The category defaults to unknown.
func NewBuilder(code, message string) *Builder {
	return &Builder{
		err: &AppError{
			Code:     code,
			Message:  message,
			Category: CategoryUnknown,
			Context:  make(map[string]interface{}),
		},
	}
}

// Validation marks the error as a validation failure.
func (b *Builder) Validation() *Builder {
	b.err.Category = CategoryValidation
	b.err.Retryable = false
	return b
}

// Transient marks the error as a retryable provider failure.
func (b *Builder) Transient() *Builder {
	b.err.Category = CategoryTransientProvider
	b.err.Retryable = true
	return b
}

// Conflict marks the error as a persistence conflict.
func (b *Builder) Conflict() *Builder {
	b.err.Category = CategoryPersistenceConflict
	b.err.Retryable = true
	return b
}

// Quota marks the error as a quota failure.
func (b *Builder) Quota() *Builder {
	b.err.Category = CategoryQuota
	b.err.Retryable = b.err.RetryAfter > 0
	return b
}

// Wrap sets the underlying error.
func (b *Builder) Wrap(err error) *Builder {
	b.err.Inner = err
	return b
}

// WithSuggestion adds a recovery suggestion.
func (b *Builder) WithSuggestion(suggestion string) *Builder {
	b.err.Suggestions = append(b.err.Suggestions, suggestion)
	return b
}

// WithContext adds context information.
func (b *Builder) WithContext(key string, value interface{}) *Builder {
	b.err.Context[key] = value
	return b
}

// WithRetryAfter sets the suggested retry delay.
func (b *Builder) WithRetryAfter(duration time.Duration) *Builder {
	b.err.RetryAfter = duration
	if b.err.Category == CategoryQuota {
		b.err.Retryable = duration > 0
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *AppError {
	return b.err
}

// ============================================================
// Error Codes
// ============================================================

const (
	// Model errors
	CodeModelUnavailable     = "MODEL_UNAVAILABLE"
	CodeModelTimeout         = "MODEL_TIMEOUT"
	CodeModelParseError      = "MODEL_PARSE_ERROR"
	CodeModelRateLimit       = "MODEL_RATE_LIMIT"
	CodeModelInvalidResponse = "MODEL_INVALID_RESPONSE"
	CodeProviderNotFound     = "PROVIDER_NOT_FOUND"
	CodeCircuitOpen          = "CIRCUIT_OPEN"

	// Tool errors
	CodeToolNotFound         = "TOOL_NOT_FOUND"
	CodeToolNotAuthorized    = "TOOL_NOT_AUTHORIZED"
	CodeToolCallMismatch     = "TOOL_CALL_MISMATCH"
	CodeToolExecutionFailed  = "TOOL_EXECUTION_FAILED"
	CodeToolTimeout          = "TOOL_TIMEOUT"
	CodeToolInvalidParams    = "TOOL_INVALID_PARAMS"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"

	// Persistence errors
	CodeCheckpointConflict = "CHECKPOINT_CONFLICT"
	CodeCheckpointFailed   = "CHECKPOINT_FAILED"
	CodeStorageBusy        = "STORAGE_BUSY"

	// Quota errors
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeProviderQuota    = "PROVIDER_QUOTA"
	CodeIterationLimit   = "ITERATION_LIMIT"

	// Config errors
	CodeConfigInvalid  = "CONFIG_INVALID"
	CodeConfigNotFound = "CONFIG_NOT_FOUND"

	// Validation errors
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInvalidFilterOptions = "INVALID_FILTER_OPTIONS"

	// Lifecycle
	CodeCancelled = "CANCELLED"
)

// ============================================================
// Helpers
// ============================================================

// GetCategory extracts the category from an error.
// Returns CategoryUnknown for non-AppError errors.
func GetCategory(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	return CategoryUnknown
}

// GetCode returns the outermost AppError code, or "" if there is none.
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	// Unknown errors are not retried
	return false
}

// GetRetryAfter returns the suggested retry duration.
func GetRetryAfter(err error) time.Duration {
	if err == nil {
		return 0
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}

	return 0
}

// GetSuggestions returns recovery suggestions for an error.
func GetSuggestions(err error) []string {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Suggestions
	}

	return nil
}

// FormatUserMessage formats a user-friendly error message with suggestions.
func FormatUserMessage(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder

	var appErr *AppError
	if errors.As(err, &appErr) {
		sb.WriteString(appErr.Message)

		if len(appErr.Suggestions) > 0 {
			sb.WriteString("\n\nSuggestions:")
			for _, s := range appErr.Suggestions {
				sb.WriteString("\n  - ")
				sb.WriteString(s)
			}
		}

		return sb.String()
	}

	return err.Error()
}
