package convo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDedupeCollapsesToolMessagesByCallID(t *testing.T) {
	msgs := []Message{
		{Role: RoleTool, ToolCallID: "call_1", Content: "Completed search_leads: 5 found"},
		{Role: RoleTool, ToolCallID: "call_1", Content: "Completed search_leads: 5 found (redelivered)"},
		{Role: RoleTool, ToolCallID: "call_2", Content: "Completed generate_email: done"},
	}
	out := Dedupe(msgs)
	require.Len(t, out, 2)
	assert.Equal(t, "call_1", out[0].ToolCallID)
	assert.Equal(t, "call_2", out[1].ToolCallID)
}

func TestDedupePreservesOrderAndDistinctContent(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "find CTOs"},
		{Role: RoleAssistant, Content: "ok"},
		{Role: RoleUser, Content: "find CTOs"},
		{Role: RoleUser, Content: "find CFOs"},
	}
	out := Dedupe(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "find CTOs", out[0].Content)
	assert.Equal(t, "ok", out[1].Content)
	assert.Equal(t, "find CFOs", out[2].Content)
}

func TestDedupeDistinguishesToolCalls(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, Content: "", ToolCalls: []ToolCall{{ID: "a", Name: "search_leads", Arguments: "{}"}}},
		{Role: RoleAssistant, Content: "", ToolCalls: []ToolCall{{ID: "b", Name: "search_leads", Arguments: "{}"}}},
	}
	assert.Len(t, Dedupe(msgs), 2)
}

func TestTruncateKeepsNewest(t *testing.T) {
	msgs := make([]Message, 0, 120)
	for i := 0; i < 120; i++ {
		msgs = append(msgs, Message{Role: RoleUser, Content: string(rune('a' + i%26))})
	}
	out := Truncate(msgs, MaxHistory)
	require.Len(t, out, MaxHistory)
	assert.Equal(t, msgs[20], out[0])
}

func TestToolCallArgs(t *testing.T) {
	c := ToolCall{ID: "call_1", Name: "search_leads", Arguments: `{"limit":5}`}
	assert.Equal(t, float64(5), c.Args()["limit"])

	c.Arguments = "garbage"
	assert.Equal(t, "garbage", c.Args()["raw"])

	c.Arguments = ""
	assert.Empty(t, c.Args())
}

func TestIsResumeCommand(t *testing.T) {
	assert.True(t, IsResumeCommand("APPROVE_PLAN:plan_1_abcd1234"))
	assert.True(t, IsResumeCommand("EDIT_PLAN:plan_1_abcd1234:{}"))
	assert.False(t, IsResumeCommand("please approve the plan"))
}

func TestOutputsByCallIDLaterWins(t *testing.T) {
	outputs := []ToolOutput{
		{ToolCallID: "call_1", ToolName: "search_leads", Result: "old"},
		{ToolCallID: "call_1", ToolName: "search_leads", Result: "new"},
	}
	m := OutputsByCallID(outputs)
	require.Len(t, m, 1)
	assert.Equal(t, "new", m["call_1"].Result)
}
