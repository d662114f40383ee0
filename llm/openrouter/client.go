// Package openrouter implements the llm.Client interface on top of the
// OpenRouter API using the go-openai SDK. OpenRouter speaks the OpenAI wire
// protocol with a custom base URL and per-request model routing, so the SDK
// is used as-is with a fallback chain layered on top: each model in the
// request is tried with per-model retries and exponential backoff before
// moving to the next.
package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"goa.design/clue/log"
	"golang.org/x/time/rate"

	"github.com/salesflow/agent/llm"
)

type (
	// ChatClient captures the single go-openai method the adapter relies on.
	// Narrowing the dependency keeps the adapter testable without the real
	// SDK client.
	ChatClient interface {
		CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	}

	// RequestLog records one completion attempt for auditing.
	RequestLog struct {
		Model      string
		Messages   []llm.Message
		Content    string
		ToolCalls  int
		Err        string
		Duration   time.Duration
		OccurredAt time.Time
	}

	// Options configures New.
	Options struct {
		// Client is the underlying chat client. Required.
		Client ChatClient
		// DefaultModel is used when a request names no models. Required.
		DefaultModel string
		// MaxRetries is the per-model retry budget. Defaults to 2.
		MaxRetries int
		// Backoff is the base delay between retries, doubled on each
		// attempt. Defaults to 500ms.
		Backoff time.Duration
		// Limiter throttles outbound requests when set.
		Limiter *rate.Limiter
		// LogRequest receives an audit record after every attempt when set.
		LogRequest func(ctx context.Context, entry RequestLog)
	}

	client struct {
		cc         ChatClient
		model      string
		maxRetries int
		backoff    time.Duration
		limiter    *rate.Limiter
		logReq     func(ctx context.Context, entry RequestLog)
	}
)

// DefaultBaseURL is the OpenRouter API endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// New creates an OpenRouter-backed llm.Client.
func New(opts Options) (llm.Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openrouter: Client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("openrouter: DefaultModel is required")
	}
	c := &client{
		cc:         opts.Client,
		model:      opts.DefaultModel,
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		limiter:    opts.Limiter,
		logReq:     opts.LogRequest,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 2
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	return c, nil
}

// NewFromAPIKey creates a client that talks to OpenRouter directly.
func NewFromAPIKey(apiKey, baseURL, defaultModel string) (llm.Client, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return New(Options{Client: openai.NewClientWithConfig(cfg), DefaultModel: defaultModel})
}

// Complete walks the request's model fallback chain. Each model gets up to
// MaxRetries attempts with doubling backoff; the first successful completion
// wins. When every model fails the last error is wrapped in llm.ErrExhausted.
func (c *client) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	models := req.Models
	if len(models) == 0 {
		models = []string{c.model}
	}
	var lastErr error
	for _, model := range models {
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			if attempt > 0 {
				delay := c.backoff << (attempt - 1)
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(delay):
				}
			}
			resp, err := c.complete(ctx, model, req)
			if err == nil {
				return resp, nil
			}
			lastErr = err
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Printf(ctx, "completion attempt failed: model=%s attempt=%d err=%v", model, attempt+1, err)
		}
	}
	return nil, fmt.Errorf("%w: %v", llm.ErrExhausted, lastErr)
}

func (c *client) complete(ctx context.Context, model string, req *llm.Request) (*llm.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	oreq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    encodeMessages(req.Messages),
		Temperature: req.Temperature,
	}
	if req.MaxTokens > 0 {
		oreq.MaxTokens = req.MaxTokens
	}
	if req.JSONMode {
		oreq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	if len(req.Tools) > 0 {
		oreq.Tools = encodeTools(req.Tools)
	}

	start := time.Now()
	oresp, err := c.cc.CreateChatCompletion(ctx, oreq)
	resp, err := translateResponse(oresp, err)
	if c.logReq != nil {
		entry := RequestLog{
			Model:      model,
			Messages:   req.Messages,
			Duration:   time.Since(start),
			OccurredAt: start.UTC(),
		}
		if err != nil {
			entry.Err = err.Error()
		} else {
			entry.Content = resp.Content
			entry.ToolCalls = len(resp.ToolCalls)
		}
		c.logReq(ctx, entry)
	}
	return resp, err
}

func translateResponse(oresp openai.ChatCompletionResponse, err error) (*llm.Response, error) {
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %s", llm.ErrProvider, apiErr.Message)
		}
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(oresp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", llm.ErrDecode)
	}
	choice := oresp.Choices[0].Message
	resp := &llm.Response{
		Content: choice.Content,
		Model:   oresp.Model,
		Usage: llm.TokenUsage{
			InputTokens:  oresp.Usage.PromptTokens,
			OutputTokens: oresp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return resp, nil
}

func encodeMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, om)
	}
	return out
}

func encodeTools(tools []llm.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		var params any
		if len(t.Schema) > 0 {
			if err := json.Unmarshal(t.Schema, &params); err != nil {
				params = map[string]any{"type": "object"}
			}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
