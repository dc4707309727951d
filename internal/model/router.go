// Package model manages model routing and provider calls.
//
// Routing:
// - PII always routes to the secure-private pool
// - Otherwise the tool's tier, or the task's complexity, picks a pool
// - Cost, latency and provider constraints narrow the pool but never empty it
package model

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// ToolIndex answers per-tool metadata questions. The tool catalog implements it.
type ToolIndex interface {
	ToolPII(name string) (hasPII, ok bool)
	ToolTier(name string) (Tier, bool)
}

// DefaultPIIKeywords flag a tool name as sensitive when the catalog does not know it.
var DefaultPIIKeywords = []string{
	"student", "profile", "essay", "letter", "ssn", "address", "phone", "email",
	"parent", "grade", "transcript", "health", "financial", "gpa", "contact",
}

// PII resolution sources reported in Decision.PIISource.
const (
	PIIExplicit  = "explicit"
	PIICatalog   = "catalog"
	PIIHeuristic = "heuristic"
)

// RouterConfig configures the model router.
type RouterConfig struct {
	// Pools holds the candidates for each tier, cheapest and fastest first.
	Pools map[Tier][]Configuration

	// ToolTiers overrides the catalog's tier for specific tools.
	ToolTiers map[string]Tier

	// PIIKeywords replaces DefaultPIIKeywords when non-empty.
	PIIKeywords []string

	// Tools answers PII and tier questions for known tools. May be nil.
	Tools ToolIndex

	Logger *slog.Logger
}

// Router selects a model configuration for each unit of work.
type Router struct {
	pools     map[Tier][]Configuration
	toolTiers map[string]Tier
	keywords  []string
	tools     ToolIndex
	logger    *slog.Logger
}

// NewRouter creates a new model router. Every tier needs at least one
// configuration; secure-private members are marked compliant.
func NewRouter(cfg RouterConfig) (*Router, error) {
	pools := make(map[Tier][]Configuration, len(Tiers))
	for _, tier := range Tiers {
		src := cfg.Pools[tier]
		if len(src) == 0 {
			return nil, fmt.Errorf("model router: pool %q is empty", tier)
		}
		pool := slices.Clone(src)
		for i := range pool {
			pool[i].Tier = tier
			if tier == TierSecurePrivate {
				pool[i].Compliant = true
			}
		}
		pools[tier] = pool
	}

	for tool, tier := range cfg.ToolTiers {
		if !tier.Valid() {
			return nil, fmt.Errorf("model router: tool %q maps to unknown tier %q", tool, tier)
		}
	}

	keywords := cfg.PIIKeywords
	if len(keywords) == 0 {
		keywords = DefaultPIIKeywords
	}
	lower := make([]string, len(keywords))
	for i, k := range keywords {
		lower[i] = strings.ToLower(k)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		pools:     pools,
		toolTiers: cfg.ToolTiers,
		keywords:  lower,
		tools:     cfg.Tools,
		logger:    logger,
	}, nil
}

// SelectModel picks a configuration for tc. It always returns a runnable
// configuration; constraints that cannot be met are relaxed, not reported.
func (r *Router) SelectModel(tc TaskContext) Decision {
	hasPII, source := r.resolvePII(tc)

	var d Decision
	if hasPII {
		pool := r.pools[TierSecurePrivate]
		if filtered := filterProviders(pool, tc.AllowedProviders); len(filtered) > 0 {
			pool = filtered
		}
		d = Decision{
			Configuration: pickPreferred(pool, tc.PreferredProvider),
			Reason:        fmt.Sprintf("PII detected (%s), secure-private pool only", source),
			HasPII:        true,
			PIISource:     source,
		}
	} else {
		tier, why := r.resolveTier(tc)
		pool := r.pools[tier]
		candidates := filterConstraints(pool, tc)
		relaxed := ""
		if len(candidates) == 0 {
			candidates = pool
			relaxed = ", constraints relaxed"
		}
		d = Decision{
			Configuration: pickCandidate(candidates, tc.PreferredProvider),
			Reason:        fmt.Sprintf("%s%s", why, relaxed),
			PIISource:     source,
		}
	}

	r.logger.Info("model routed",
		"tool", tc.Tool,
		"task_type", tc.TaskType,
		"tier", d.Configuration.Tier,
		"provider", d.Configuration.Provider,
		"model", d.Configuration.Model,
		"estimated_cost", d.Configuration.EstimatedCost,
		"pii", d.HasPII,
		"reason", d.Reason,
	)
	return d
}

// resolvePII never answers "no PII" for lack of information.
func (r *Router) resolvePII(tc TaskContext) (bool, string) {
	if tc.HasPII != nil {
		return *tc.HasPII, PIIExplicit
	}
	if tc.Tool == "" {
		return true, PIIHeuristic
	}
	if r.tools != nil {
		if pii, ok := r.tools.ToolPII(tc.Tool); ok {
			return pii, PIICatalog
		}
	}
	return r.looksSensitive(tc.Tool), PIIHeuristic
}

func (r *Router) looksSensitive(tool string) bool {
	name := strings.ToLower(tool)
	for _, k := range r.keywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return false
}

func (r *Router) resolveTier(tc TaskContext) (Tier, string) {
	known := false
	if tc.Tool != "" {
		if tier, ok := r.toolTiers[tc.Tool]; ok {
			return tier, fmt.Sprintf("tool %s mapped to %s", tc.Tool, tier)
		}
		if r.tools != nil {
			tier, ok := r.tools.ToolTier(tc.Tool)
			if ok && tier != TierSecurePrivate {
				return tier, fmt.Sprintf("tool %s prefers %s", tc.Tool, tier)
			}
			known = ok
		}
	}

	// Task type says nothing reliable about a tool nobody has described.
	if tc.Tool != "" && !known && tc.Complexity == "" {
		tier := TierForComplexity(ComplexityModerate)
		return tier, fmt.Sprintf("unknown tool %s defaults to %s", tc.Tool, tier)
	}

	complexity := tc.Complexity
	source := "explicit"
	if complexity == "" {
		complexity = InferComplexity(tc.TaskType)
		source = "inferred"
	}
	tier := TierForComplexity(complexity)
	return tier, fmt.Sprintf("%s complexity %s maps to %s", source, complexity, tier)
}

// InferComplexity estimates complexity from the task type. Unknown and empty
// task types are moderate.
func InferComplexity(t TaskType) Complexity {
	switch t {
	case TaskQuery:
		return ComplexitySimple
	case TaskGeneration, TaskAnalysis:
		return ComplexityComplex
	default:
		return ComplexityModerate
	}
}

// TierForComplexity maps a complexity onto a tier.
func TierForComplexity(c Complexity) Tier {
	switch c {
	case ComplexitySimple:
		return TierFastCheap
	case ComplexityComplex:
		return TierHighReasoning
	default:
		return TierLargeContext
	}
}

func filterProviders(pool []Configuration, allowed []string) []Configuration {
	if len(allowed) == 0 {
		return pool
	}
	out := make([]Configuration, 0, len(pool))
	for _, c := range pool {
		if slices.Contains(allowed, c.Provider) {
			out = append(out, c)
		}
	}
	return out
}

func filterConstraints(pool []Configuration, tc TaskContext) []Configuration {
	out := make([]Configuration, 0, len(pool))
	for _, c := range filterProviders(pool, tc.AllowedProviders) {
		if tc.MaxCost > 0 && c.EstimatedCost > tc.MaxCost {
			continue
		}
		if tc.MaxLatencyMs > 0 && c.EstimatedLatencyMs > tc.MaxLatencyMs {
			continue
		}
		out = append(out, c)
	}
	return out
}

// pickPreferred returns the first member from the preferred provider, else the first member.
func pickPreferred(pool []Configuration, preferred string) Configuration {
	if preferred != "" {
		for _, c := range pool {
			if c.Provider == preferred {
				return c
			}
		}
	}
	return pool[0]
}

// pickCandidate prefers a compliant candidate, then the preferred provider among
// equally compliant ones, then pool order.
func pickCandidate(pool []Configuration, preferred string) Configuration {
	compliant := make([]Configuration, 0, len(pool))
	for _, c := range pool {
		if c.Compliant {
			compliant = append(compliant, c)
		}
	}
	if len(compliant) > 0 {
		return pickPreferred(compliant, preferred)
	}
	return pickPreferred(pool, preferred)
}
