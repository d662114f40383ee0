// Package convo holds the durable conversation model: sessions, messages,
// tool calls and tool outputs, together with the helpers that keep a history
// well formed. It also builds the workflow context from prior tool results,
// assembles provider message lists and compresses long histories.
package convo

import (
	"encoding/json"
	"strings"
	"time"
)

type (
	// Message is a single conversation entry. Tool messages answer a tool
	// call issued by a prior assistant message via ToolCallID.
	Message struct {
		Role       string     `json:"role" bson:"role"`
		Content    string     `json:"content" bson:"content"`
		ToolCalls  []ToolCall `json:"tool_calls,omitempty" bson:"tool_calls,omitempty"`
		ToolCallID string     `json:"tool_call_id,omitempty" bson:"tool_call_id,omitempty"`
	}

	// ToolCall is a tool invocation attached to an assistant message.
	// Arguments holds the raw JSON argument object. System-synthesized calls
	// carry IDs with the "auto_" prefix.
	ToolCall struct {
		ID        string `json:"id" bson:"id"`
		Name      string `json:"name" bson:"name"`
		Arguments string `json:"arguments" bson:"arguments"`
	}

	// ToolOutput records the result of one executed plan step.
	ToolOutput struct {
		ToolCallID  string `json:"tool_call_id" bson:"tool_call_id"`
		ToolName    string `json:"tool_name" bson:"tool_name"`
		StepID      string `json:"step_id" bson:"step_id"`
		PlanID      string `json:"plan_id" bson:"plan_id"`
		Result      any    `json:"result" bson:"result"`
		Description string `json:"description,omitempty" bson:"description,omitempty"`
	}

	// Session is the persisted conversation document.
	Session struct {
		SessionID    string       `json:"session_id" bson:"session_id"`
		UserID       string       `json:"user_id" bson:"user_id"`
		Title        string       `json:"title" bson:"title"`
		Model        string       `json:"model,omitempty" bson:"model,omitempty"`
		Messages     []Message    `json:"messages" bson:"messages"`
		ToolOutputs  []ToolOutput `json:"tool_outputs" bson:"tool_outputs"`
		MessageCount int          `json:"message_count" bson:"message_count"`
		LastUpdated  time.Time    `json:"last_updated" bson:"last_updated"`
	}
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// DefaultTitle is the title of a session before one has been generated.
const DefaultTitle = "New Chat"

// AutoCallPrefix marks tool call IDs synthesized by the orchestrator rather
// than issued by the model.
const AutoCallPrefix = "auto_"

// MaxHistory caps the number of messages kept in a session before a workflow
// run; older messages are dropped from the front.
const MaxHistory = 100

// Args decodes the call's raw argument string. A non-object payload is
// preserved under the "raw" key.
func (c ToolCall) Args() map[string]any {
	if c.Arguments == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return map[string]any{"raw": c.Arguments}
	}
	return args
}

// IsResumeCommand reports whether a user message is a plan approval or edit
// command rather than conversational content.
func IsResumeCommand(content string) bool {
	return strings.HasPrefix(content, "APPROVE_PLAN:") || strings.HasPrefix(content, "EDIT_PLAN:")
}

// Dedupe removes duplicate messages while preserving order. Tool messages
// are keyed by their tool call ID, every other message by its canonical JSON
// encoding, so re-delivered workflow updates collapse to one entry.
func Dedupe(messages []Message) []Message {
	seen := make(map[string]bool, len(messages))
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		key := dedupeKey(m)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func dedupeKey(m Message) string {
	if m.Role == RoleTool && m.ToolCallID != "" {
		return "tool:" + m.ToolCallID
	}
	// Maps marshal with sorted keys, so the encoding is canonical.
	doc := map[string]any{"role": m.Role, "content": m.Content}
	if len(m.ToolCalls) > 0 {
		calls := make([]map[string]any, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = map[string]any{"id": c.ID, "name": c.Name, "arguments": c.Arguments}
		}
		doc["tool_calls"] = calls
	}
	if m.ToolCallID != "" {
		doc["tool_call_id"] = m.ToolCallID
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return m.Role + ":" + m.Content
	}
	return string(data)
}

// Truncate drops messages from the front until at most max remain.
func Truncate(messages []Message, max int) []Message {
	if max <= 0 || len(messages) <= max {
		return messages
	}
	return messages[len(messages)-max:]
}

// OutputsByCallID indexes tool outputs by tool call ID. Later outputs win so
// re-executed steps overwrite earlier results.
func OutputsByCallID(outputs []ToolOutput) map[string]ToolOutput {
	m := make(map[string]ToolOutput, len(outputs))
	for _, o := range outputs {
		m[o.ToolCallID] = o
	}
	return m
}
