// Package model provides an OpenAI-compatible chat completions provider.
package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/flynn-ai/agentcore/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible provider.
type OpenAIConfig struct {
	Name       string
	APIKey     string
	BaseURL    string // e.g. https://api.openai.com/v1
	Timeout    time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	// Zero makes one request per call and leaves retrying to the caller.
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIClient implements StreamingProvider over the chat completions API.
type OpenAIClient struct {
	cfg            *OpenAIConfig
	client         *http.Client
	circuitBreaker *apperrors.CircuitBreaker
	retryPolicy    *apperrors.Policy
}

// NewOpenAIClient creates a new client.
func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if cfg == nil || cfg.Name == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai provider: name and base URL are required")
	}

	retryPolicy := &apperrors.Policy{
		MaxAttempts:  1 + max(cfg.MaxRetries, 0),
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryIf:      apperrors.RetryOn(apperrors.CategoryTransientProvider),
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	return &OpenAIClient{
		cfg:    cfg,
		client: client,
		circuitBreaker: apperrors.NewCircuitBreaker(cfg.Name, &apperrors.CircuitBreakerConfig{
			MaxFailures:      5,
			ResetTimeout:     60 * time.Second,
			HalfOpenAttempts: 2,
		}),
		retryPolicy: retryPolicy,
	}, nil
}

// Name implements Provider.
func (c *OpenAIClient) Name() string { return c.cfg.Name }

// Invoke implements Provider.
func (c *OpenAIClient) Invoke(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()

	body, err := c.buildBody(req, false)
	if err != nil {
		return nil, err
	}

	respBody, err := apperrors.DoWithResult(ctx, c.retryPolicy, func() ([]byte, error) {
		return apperrors.ExecuteCircuitBreakerWithResult(c.circuitBreaker, func() ([]byte, error) {
			resp, err := c.post(ctx, body)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeModelUnavailable, "failed to read response body", apperrors.CategoryTransientProvider)
			}
			return b, nil
		})
	})
	if err != nil {
		return nil, err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, apperrors.NewBuilder(apperrors.CodeModelParseError, "failed to parse API response").
			Transient().
			Wrap(err).
			WithContext("response_body", truncate(string(respBody), 512)).
			Build()
	}
	if len(parsed.Choices) == 0 {
		return nil, apperrors.Transient(apperrors.CodeModelInvalidResponse, "API response contained no choices")
	}

	msg := parsed.Choices[0].Message
	out := &Response{
		Content:    msg.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		Model:      parsed.Model,
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, tc := range msg.ToolCalls {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, toToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	return out, nil
}

// Stream implements StreamingProvider. Only establishing the stream is retried;
// once deltas have been delivered a failure is returned as is.
func (c *OpenAIClient) Stream(ctx context.Context, req *Request, fn func(Delta) error) (*Response, error) {
	start := time.Now()

	body, err := c.buildBody(req, true)
	if err != nil {
		return nil, err
	}

	resp, err := apperrors.DoWithResult(ctx, c.retryPolicy, func() (*http.Response, error) {
		return apperrors.ExecuteCircuitBreakerWithResult(c.circuitBreaker, func() (*http.Response, error) {
			return c.post(ctx, body)
		})
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out := &Response{}
	var content strings.Builder
	calls := map[int]*streamCall{}
	var order []int

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeModelParseError, "failed to parse stream chunk", apperrors.CategoryTransientProvider)
		}
		if chunk.Model != "" {
			out.Model = chunk.Model
		}
		if chunk.Usage != nil {
			out.TokensUsed = chunk.Usage.TotalTokens
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				if err := fn(Delta{Content: choice.Delta.Content}); err != nil {
					return nil, err
				}
			}
			for _, tc := range choice.Delta.ToolCalls {
				sc, ok := calls[tc.Index]
				if !ok {
					sc = &streamCall{}
					calls[tc.Index] = sc
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					sc.id = tc.ID
				}
				if tc.Function.Name != "" {
					sc.name = tc.Function.Name
				}
				sc.args.WriteString(tc.Function.Arguments)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(err, apperrors.CodeModelUnavailable, "stream interrupted", apperrors.CategoryTransientProvider)
	}

	out.Content = content.String()
	for _, idx := range order {
		sc := calls[idx]
		call := toToolCall(sc.id, sc.name, sc.args.String())
		out.ToolCalls = append(out.ToolCalls, call)
		if err := fn(Delta{ToolCall: &call}); err != nil {
			return nil, err
		}
	}
	out.DurationMs = time.Since(start).Milliseconds()
	return out, nil
}

// post sends one request and returns the response only for a 200 status.
func (c *OpenAIClient) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelUnavailable, "failed to create HTTP request", apperrors.CategoryUnknown)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, apperrors.Wrap(err, apperrors.CodeModelUnavailable, "network request failed", apperrors.CategoryTransientProvider)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return nil, statusError(resp, b)
}

// statusError maps a non-200 response onto the fault taxonomy.
func statusError(resp *http.Response, body []byte) error {
	text := strings.ToLower(string(body))

	switch {
	case resp.StatusCode == http.StatusPaymentRequired || strings.Contains(text, "insufficient_quota"):
		return apperrors.NewBuilder(apperrors.CodeProviderQuota, "provider quota exhausted").
			Quota().
			WithContext("status", resp.StatusCode).
			WithSuggestion("Check the provider account's billing and limits").
			Build()
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		b := apperrors.NewBuilder(apperrors.CodeModelRateLimit, "provider rate limit reached").Transient()
		if retryAfter > 0 {
			b = b.WithRetryAfter(retryAfter)
		}
		return b.Build()
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return apperrors.NewBuilder(apperrors.CodeModelUnavailable, "provider rejected credentials").
			WithContext("status", resp.StatusCode).
			WithSuggestion("Check the api_key_env setting for this provider").
			Build()
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(text, "tool_call"):
		return apperrors.NewBuilder(apperrors.CodeToolCallMismatch, "tool call reference does not match history").
			Validation().
			WithContext("response", truncate(string(body), 512)).
			Build()
	case resp.StatusCode == http.StatusBadRequest:
		return apperrors.NewBuilder(apperrors.CodeModelInvalidResponse, "bad request - check model name and parameters").
			Validation().
			WithContext("response", truncate(string(body), 512)).
			Build()
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return apperrors.Transient(apperrors.CodeModelUnavailable, fmt.Sprintf("API unavailable: %s", resp.Status))
	default:
		return apperrors.New(apperrors.CodeModelUnavailable, fmt.Sprintf("API error (status %d)", resp.StatusCode), apperrors.CategoryUnknown)
	}
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func (c *OpenAIClient) buildBody(req *Request, stream bool) ([]byte, error) {
	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		cm := chatMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID, Name: m.Name}
		for _, tc := range m.ToolCalls {
			wire := chatToolCall{ID: tc.ID, Type: "function"}
			wire.Function.Name = tc.Name
			wire.Function.Arguments = tc.ArgumentsJSON()
			cm.ToolCalls = append(cm.ToolCalls, wire)
		}
		messages = append(messages, cm)
	}

	body := map[string]any{
		"model":       req.Config.Model,
		"messages":    messages,
		"temperature": req.Config.Temperature,
	}
	if req.Config.MaxTokens > 0 {
		body["max_tokens"] = req.Config.MaxTokens
	} else {
		body["max_tokens"] = 4096
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, tool := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        tool.Name,
					"description": tool.Description,
					"parameters":  tool.Parameters,
				},
			})
		}
		body["tools"] = tools
	}
	if stream {
		body["stream"] = true
		body["stream_options"] = map[string]any{"include_usage": true}
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelInvalidResponse, "failed to marshal request", apperrors.CategoryValidation)
	}
	return b, nil
}

func toToolCall(id, name, args string) ToolCall {
	var input map[string]any
	if strings.TrimSpace(args) != "" {
		if err := json.Unmarshal([]byte(args), &input); err != nil {
			input = map[string]any{"raw": args}
		}
	}
	if input == nil {
		input = map[string]any{}
	}
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return ToolCall{ID: id, Name: name, Input: input}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ============================================================
// Wire types (OpenAI-compatible)
// ============================================================

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
}

type chatToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage chatUsage `json:"usage"`
}

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string         `json:"content"`
			ToolCalls []chatToolCall `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *chatUsage `json:"usage"`
}

type streamCall struct {
	id   string
	name string
	args strings.Builder
}
