// Package model provides the provider interfaces and router.
package model

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// Provider invokes a model over some wire format.
type Provider interface {
	// Name returns the provider identifier used in Configuration.Provider.
	Name() string

	// Invoke sends the conversation and available tools and returns the reply.
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// StreamingProvider is a Provider that can also stream partial output.
// The callback receives deltas in order. The returned Response is the
// assembled final reply.
type StreamingProvider interface {
	Provider
	Stream(ctx context.Context, req *Request, fn func(Delta) error) (*Response, error)
}

// ProviderSet dispatches requests to providers by name.
type ProviderSet struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderSet creates a set from the given providers.
func NewProviderSet(providers ...Provider) *ProviderSet {
	s := &ProviderSet{providers: make(map[string]Provider)}
	for _, p := range providers {
		s.Register(p)
	}
	return s
}

// Register adds or replaces a provider.
func (s *ProviderSet) Register(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name()] = p
}

// Get returns the named provider.
func (s *ProviderSet) Get(name string) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, apperrors.NewBuilder(apperrors.CodeProviderNotFound, fmt.Sprintf("no provider registered for %q", name)).
			Validation().
			WithSuggestion("Add a [[providers]] entry with this name to the config").
			Build()
	}
	return p, nil
}

// Invoke dispatches to the provider named by req.Config.Provider.
func (s *ProviderSet) Invoke(ctx context.Context, req *Request) (*Response, error) {
	p, err := s.Get(req.Config.Provider)
	if err != nil {
		return nil, err
	}
	return p.Invoke(ctx, req)
}

// Stream streams when the provider supports it, otherwise it invokes once and
// emits the whole content as a single delta.
func (s *ProviderSet) Stream(ctx context.Context, req *Request, fn func(Delta) error) (*Response, error) {
	p, err := s.Get(req.Config.Provider)
	if err != nil {
		return nil, err
	}
	if sp, ok := p.(StreamingProvider); ok {
		return sp.Stream(ctx, req, fn)
	}

	resp, err := p.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Content != "" {
		if err := fn(Delta{Content: resp.Content}); err != nil {
			return nil, err
		}
	}
	for i := range resp.ToolCalls {
		if err := fn(Delta{ToolCall: &resp.ToolCalls[i]}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}
