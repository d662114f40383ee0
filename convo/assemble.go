package convo

import (
	"encoding/json"
	"fmt"

	"github.com/salesflow/agent/llm"
)

// BridgeText is the assistant message inserted between a tool result and a
// following user message so the provider never sees a user turn directly
// after a tool turn.
const BridgeText = "I have completed the actions. What would you like to do next?"

// Assemble converts a stored history into the provider message list for the
// next completion. Stored tool messages are skipped and replaced with the
// authoritative results from the tool output index; plan approval and edit
// commands never reach the model; a bridging assistant message keeps
// user-after-tool adjacency legal.
func Assemble(messages []Message, outputs map[string]ToolOutput) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleTool:
			continue
		case RoleUser:
			if IsResumeCommand(m.Content) {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Role == llm.RoleTool {
				out = append(out, llm.Message{Role: llm.RoleAssistant, Content: BridgeText})
			}
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case RoleAssistant:
			am := llm.Message{Role: llm.RoleAssistant, Content: m.Content}
			for _, c := range m.ToolCalls {
				am.ToolCalls = append(am.ToolCalls, llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
			}
			out = append(out, am)
			// Answer every tool call right away so the provider sees a
			// complete call/result pairing.
			for _, c := range m.ToolCalls {
				out = append(out, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: c.ID,
					Name:       c.Name,
					Content:    resultContent(c.ID, outputs),
				})
			}
		case RoleSystem:
			out = append(out, llm.Message{Role: llm.RoleSystem, Content: m.Content})
		}
	}
	return out
}

func resultContent(callID string, outputs map[string]ToolOutput) string {
	o, ok := outputs[callID]
	if !ok {
		return fmt.Sprintf("Result for %s not found in database.", callID)
	}
	switch r := o.Result.(type) {
	case string:
		return r
	default:
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Sprintf("%v", r)
		}
		return string(data)
	}
}
