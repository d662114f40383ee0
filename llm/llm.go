// Package llm defines the provider-neutral chat completion contract used by
// the orchestrator. Implementations live in subpackages; the rest of the
// module depends only on the Client interface so planners, analyzers and the
// compressor can be tested against fakes.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

type (
	// Client performs chat completions against an LLM provider.
	Client interface {
		// Complete executes a single chat completion. The request lists the
		// models to try in order; implementations fall back to the next model
		// when one fails. Complete returns ErrExhausted once every model has
		// been tried.
		Complete(ctx context.Context, req *Request) (*Response, error)
	}

	// Request describes a chat completion.
	Request struct {
		// Models lists the model identifiers to try in order. Empty means
		// use the implementation's default.
		Models []string
		// Messages is the conversation sent to the model.
		Messages []Message
		// Tools holds the tool definitions exposed to the model, if any.
		Tools []ToolDefinition
		// Temperature controls sampling. Zero value means provider default.
		Temperature float32
		// MaxTokens caps the completion length when positive.
		MaxTokens int
		// JSONMode requests a JSON object response.
		JSONMode bool
	}

	// Message is a single conversation entry in provider wire shape.
	Message struct {
		Role       string     `json:"role"`
		Content    string     `json:"content"`
		ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
		ToolCallID string     `json:"tool_call_id,omitempty"`
		Name       string     `json:"name,omitempty"`
	}

	// ToolCall is a model-issued tool invocation. Arguments carries the raw
	// JSON argument string exactly as returned by the provider.
	ToolCall struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	}

	// ToolDefinition describes one callable tool. Schema is the JSON Schema
	// of the tool parameters.
	ToolDefinition struct {
		Name        string
		Description string
		Schema      json.RawMessage
	}

	// Response is a completed chat completion.
	Response struct {
		Content   string
		ToolCalls []ToolCall
		Model     string
		Usage     TokenUsage
	}

	// TokenUsage reports token counts for a completion.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
	}
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var (
	// ErrExhausted reports that every model in the fallback chain failed.
	ErrExhausted = errors.New("all models failed")
	// ErrProvider reports an error surfaced by the provider itself, for
	// example an upstream model returning an error payload.
	ErrProvider = errors.New("provider error")
	// ErrDecode reports a malformed provider response.
	ErrDecode = errors.New("malformed provider response")
)

// ParseArguments decodes a tool call's raw argument string into a map. A
// payload that is not a JSON object is preserved under the "raw" key so
// callers never lose the model output.
func ParseArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}
