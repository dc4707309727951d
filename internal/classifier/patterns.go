package classifier

import (
	"regexp"
	"strings"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// FaultPattern represents a pattern for rule-based fault matching.
type FaultPattern struct {
	ID        string
	Category  apperrors.Category
	Severity  Severity
	Retryable bool
	Code      string
	Keywords  []string
	Regex     *regexp.Regexp
}

// Matches checks if the pattern matches the given message.
func (p *FaultPattern) Matches(message string) bool {
	msg := strings.ToLower(message)

	// Check keywords
	if len(p.Keywords) > 0 {
		matchCount := 0
		for _, kw := range p.Keywords {
			if strings.Contains(msg, strings.ToLower(kw)) {
				matchCount++
			}
		}
		if matchCount == 0 {
			return false
		}
	}

	// Check regex if present
	if p.Regex != nil {
		return p.Regex.MatchString(msg)
	}

	return true
}

// defaultPatterns returns the default fault patterns. Order matters: the
// first match wins.
func defaultPatterns() []*FaultPattern {
	return []*FaultPattern{
		{
			ID:       "tool_call_mismatch",
			Category: apperrors.CategoryValidation,
			Severity: SeverityMedium,
			Code:     apperrors.CodeToolCallMismatch,
			Keywords: []string{"tool_call", "tool call", "tool_use"},
			Regex:    regexp.MustCompile(`(?i)(tool_call_id|tool_use_id|preceding message|no tool call|does not match|unexpected tool)`),
		},
		{
			ID:       "provider_quota",
			Category: apperrors.CategoryQuota,
			Severity: SeverityHigh,
			Code:     apperrors.CodeProviderQuota,
			Keywords: []string{"quota", "billing", "credit", "payment"},
			Regex:    regexp.MustCompile(`(?i)(insufficient_quota|quota exceeded|exceeded your.*quota|billing|out of credits|payment required)`),
		},
		{
			ID:        "rate_limit",
			Category:  apperrors.CategoryTransientProvider,
			Severity:  SeverityMedium,
			Retryable: true,
			Code:      apperrors.CodeModelRateLimit,
			Keywords:  []string{"rate", "429", "too many"},
			Regex:     regexp.MustCompile(`(?i)(rate.?limit|too many requests|\b429\b)`),
		},
		{
			ID:        "timeout",
			Category:  apperrors.CategoryTransientProvider,
			Severity:  SeverityMedium,
			Retryable: true,
			Code:      apperrors.CodeModelTimeout,
			Keywords:  []string{"timeout", "timed out", "deadline"},
		},
		{
			ID:        "network",
			Category:  apperrors.CategoryTransientProvider,
			Severity:  SeverityMedium,
			Retryable: true,
			Code:      apperrors.CodeModelUnavailable,
			Regex:     regexp.MustCompile(`(?i)(connection (refused|reset)|broken pipe|no such host|unexpected eof|temporarily unavailable|service unavailable|bad gateway|overloaded|\b50[234]\b)`),
		},
		{
			ID:        "storage_conflict",
			Category:  apperrors.CategoryPersistenceConflict,
			Severity:  SeverityMedium,
			Retryable: true,
			Code:      apperrors.CodeCheckpointConflict,
			Regex:     regexp.MustCompile(`(?i)(unique constraint|database is locked|database table is locked|sqlite_busy|write conflict)`),
		},
	}
}
