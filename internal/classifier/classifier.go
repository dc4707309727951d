// Package classifier maps faults raised during a turn onto the fault taxonomy.
//
// Classification flow:
// 1. Typed errors (AppError, context errors, checkpoint sentinels, sqlite)
// 2. Rule-based patterns over the error text
// 3. Unknown, not retryable
package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/flynn-ai/agentcore/internal/checkpoint"
	apperrors "github.com/flynn-ai/agentcore/internal/errors"
	"github.com/flynn-ai/agentcore/pkg/protocol"
)

// Severity grades how bad a fault is for the caller.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FaultContext is the classified view of a fault.
type FaultContext struct {
	Category         apperrors.Category
	Severity         Severity
	Retryable        bool
	UserMessage      string
	TechnicalMessage string
	Code             string
	RetryAfter       time.Duration

	// Rule names the rule that matched, for logs.
	Rule string
}

// Wire returns the user-safe representation of the fault.
func (f FaultContext) Wire() *protocol.Fault {
	return &protocol.Fault{
		Category:          f.Category.String(),
		Severity:          string(f.Severity),
		Retryable:         f.Retryable,
		Message:           f.UserMessage,
		Code:              f.Code,
		RetryAfterSeconds: int(f.RetryAfter.Round(time.Second) / time.Second),
	}
}

// Classifier classifies faults.
type Classifier struct {
	patterns []*FaultPattern
}

// NewClassifier creates a classifier with the default fault patterns.
func NewClassifier() *Classifier {
	return &Classifier{patterns: defaultPatterns()}
}

var std = NewClassifier()

// Classify classifies err with the default classifier.
func Classify(err error) FaultContext {
	return std.Classify(err)
}

// Classify maps err onto a FaultContext. It never panics; anything it does
// not recognise is unknown and not retryable.
func (c *Classifier) Classify(err error) (fc FaultContext) {
	defer func() {
		if r := recover(); r != nil {
			fc = build(apperrors.CategoryUnknown, SeverityHigh, false, "", 0, "panic", fmt.Sprintf("classify: %v", r))
		}
	}()

	if err == nil {
		return build(apperrors.CategoryUnknown, SeverityLow, false, "", 0, "nil", "no error")
	}
	technical := err.Error()

	// Step 1: typed errors
	if fc, ok := c.classifyTyped(err, technical); ok {
		return fc
	}

	// Step 2: patterns
	if p := c.matchPatterns(technical); p != nil {
		return build(p.Category, p.Severity, p.Retryable, p.Code, 0, p.ID, technical)
	}

	// Step 3: unknown
	return build(apperrors.CategoryUnknown, SeverityHigh, false, apperrors.GetCode(err), 0, "unknown", technical)
}

func (c *Classifier) classifyTyped(err error, technical string) (FaultContext, bool) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Category != apperrors.CategoryUnknown {
		return build(appErr.Category, severityFor(appErr.Category), appErr.Retryable, appErr.Code,
			appErr.RetryAfter, "app-error", technical), true
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return build(apperrors.CategoryTransientProvider, SeverityMedium, true, apperrors.CodeModelTimeout, 0, "deadline", technical), true
	case errors.Is(err, context.Canceled):
		return build(apperrors.CategoryUnknown, SeverityLow, false, apperrors.CodeCancelled, 0, "cancelled", technical), true
	case errors.Is(err, checkpoint.ErrConflict):
		return build(apperrors.CategoryPersistenceConflict, SeverityMedium, true, apperrors.CodeCheckpointConflict, 0, "checkpoint-conflict", technical), true
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return build(apperrors.CategoryPersistenceConflict, SeverityMedium, true, apperrors.CodeStorageBusy, 0, "sqlite-busy", technical), true
		case sqlite3.ErrConstraint:
			return build(apperrors.CategoryPersistenceConflict, SeverityMedium, true, apperrors.CodeCheckpointConflict, 0, "sqlite-constraint", technical), true
		}
	}

	// An unknown-category AppError keeps its code but may still match a pattern.
	if appErr != nil {
		if p := c.matchPatterns(technical); p != nil {
			code := appErr.Code
			if code == "" {
				code = p.Code
			}
			return build(p.Category, p.Severity, p.Retryable, code, appErr.RetryAfter, p.ID, technical), true
		}
		return build(apperrors.CategoryUnknown, SeverityHigh, false, appErr.Code, 0, "app-error", technical), true
	}
	return FaultContext{}, false
}

// matchPatterns returns the first pattern matching the message.
func (c *Classifier) matchPatterns(message string) *FaultPattern {
	for _, pattern := range c.patterns {
		if pattern.Matches(message) {
			return pattern
		}
	}
	return nil
}

// SetPatterns sets custom fault patterns.
func (c *Classifier) SetPatterns(patterns []*FaultPattern) {
	c.patterns = patterns
}

// AddPattern adds a new fault pattern. It is consulted after the existing ones.
func (c *Classifier) AddPattern(pattern *FaultPattern) {
	c.patterns = append(c.patterns, pattern)
}

func severityFor(cat apperrors.Category) Severity {
	switch cat {
	case apperrors.CategoryValidation, apperrors.CategoryTransientProvider, apperrors.CategoryPersistenceConflict:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

func build(cat apperrors.Category, sev Severity, retryable bool, code string, retryAfter time.Duration, rule, technical string) FaultContext {
	return FaultContext{
		Category:         cat,
		Severity:         sev,
		Retryable:        retryable,
		UserMessage:      userMessage(cat, retryable, code, retryAfter),
		TechnicalMessage: technical,
		Code:             code,
		RetryAfter:       retryAfter,
		Rule:             rule,
	}
}

// userMessage never includes provider text.
func userMessage(cat apperrors.Category, retryable bool, code string, retryAfter time.Duration) string {
	if code == apperrors.CodeCancelled {
		return "The request was cancelled before it finished. Send it again to continue."
	}
	if !retryable {
		return fmt.Sprintf("Sorry, the request could not be completed (%s).", cat)
	}
	switch cat {
	case apperrors.CategoryTransientProvider:
		return "The assistant is temporarily unavailable. Please try again in a moment."
	case apperrors.CategoryPersistenceConflict:
		return "This conversation was updated by another request. Please retry."
	case apperrors.CategoryQuota:
		if retryAfter > 0 {
			return fmt.Sprintf("Usage limit reached. Please try again in %s.", retryAfter.Round(time.Second))
		}
		return "Usage limit reached. Please try again later."
	case apperrors.CategoryValidation:
		return "The request could not be processed as sent. Please rephrase and try again."
	default:
		return "Something went wrong. Please try again."
	}
}
