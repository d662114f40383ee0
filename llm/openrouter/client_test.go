package openrouter

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesflow/agent/llm"
)

type fakeChat struct {
	calls []openai.ChatCompletionRequest
	fns   []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls = append(f.calls, req)
	fn := f.fns[0]
	if len(f.fns) > 1 {
		f.fns = f.fns[1:]
	}
	return fn(req)
}

func textResponse(model, content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Model: model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: "assistant", Content: content}},
		},
	}
}

func TestNewRequiresClientAndModel(t *testing.T) {
	_, err := New(Options{DefaultModel: "m"})
	require.Error(t, err)
	_, err = New(Options{Client: &fakeChat{}})
	require.Error(t, err)
}

func TestCompleteUsesDefaultModel(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return textResponse(req.Model, "hello"), nil
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "openai/gpt-4o-mini"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	require.Len(t, fc.calls, 1)
	assert.Equal(t, "openai/gpt-4o-mini", fc.calls[0].Model)
}

func TestCompleteFallsBackAcrossModels(t *testing.T) {
	boom := errors.New("boom")
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, boom
		},
		func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, boom
		},
		func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return textResponse(req.Model, "ok"), nil
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "primary", MaxRetries: 2, Backoff: time.Millisecond})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &llm.Request{
		Models:   []string{"primary", "secondary"},
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	require.Len(t, fc.calls, 3)
	assert.Equal(t, "primary", fc.calls[0].Model)
	assert.Equal(t, "primary", fc.calls[1].Model)
	assert.Equal(t, "secondary", fc.calls[2].Model)
}

func TestCompleteExhaustsChain(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, errors.New("down")
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "m", MaxRetries: 1, Backoff: time.Millisecond})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &llm.Request{
		Models:   []string{"a", "b"},
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.ErrorIs(t, err, llm.ErrExhausted)
	assert.Len(t, fc.calls, 2)
}

func TestCompleteTranslatesProviderError(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, &openai.APIError{Message: "model overloaded"}
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "m", MaxRetries: 1, Backoff: time.Millisecond})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.ErrorIs(t, err, llm.ErrExhausted)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestCompleteEmptyChoicesIsDecodeError(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, nil
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "m", MaxRetries: 1})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestCompleteEncodesToolsAndJSONMode(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{{
					Message: openai.ChatCompletionMessage{
						Role: "assistant",
						ToolCalls: []openai.ToolCall{{
							ID:   "call_1",
							Type: openai.ToolTypeFunction,
							Function: openai.FunctionCall{
								Name:      "search_leads",
								Arguments: `{"designation":["CTO"]}`,
							},
						}},
					},
				}},
			}, nil
		},
	}}
	c, err := New(Options{Client: fc, DefaultModel: "m"})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "find CTOs"}},
		JSONMode: true,
		Tools: []llm.ToolDefinition{{
			Name:   "search_leads",
			Schema: []byte(`{"type":"object","properties":{"designation":{"type":"array"}}}`),
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "search_leads", resp.ToolCalls[0].Name)

	require.Len(t, fc.calls, 1)
	sent := fc.calls[0]
	require.NotNil(t, sent.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, sent.ResponseFormat.Type)
	require.Len(t, sent.Tools, 1)
	assert.Equal(t, "search_leads", sent.Tools[0].Function.Name)
}

func TestRequestLogCapturesAttempts(t *testing.T) {
	fc := &fakeChat{fns: []func(openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error){
		func(req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
			return textResponse(req.Model, "logged"), nil
		},
	}}
	var entries []RequestLog
	c, err := New(Options{
		Client:       fc,
		DefaultModel: "m",
		LogRequest:   func(_ context.Context, e RequestLog) { entries = append(entries, e) },
	})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), &llm.Request{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m", entries[0].Model)
	assert.Equal(t, "logged", entries[0].Content)
	assert.Empty(t, entries[0].Err)
}
