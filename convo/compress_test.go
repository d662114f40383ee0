package convo

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesflow/agent/llm"
)

type fakeCompleter struct {
	resp *llm.Response
	err  error
	reqs []*llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func newTestCompressor(t *testing.T, cfg CompressorConfig, client llm.Client) *Compressor {
	t.Helper()
	c, err := NewCompressor(cfg, client)
	if err != nil {
		t.Skipf("tokenizer unavailable: %v", err)
	}
	return c
}

func longHistory(n int) []Message {
	filler := strings.Repeat("lead generation pipeline data ", 40)
	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		switch i % 3 {
		case 0:
			msgs = append(msgs, Message{Role: RoleUser, Content: "find CTOs in fintech " + filler})
		case 1:
			msgs = append(msgs, Message{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "call_x", Name: "search_leads", Arguments: `{"designation":["CTO"]}`},
			}})
		default:
			msgs = append(msgs, Message{Role: RoleTool, ToolCallID: "call_x", Content: "Completed search_leads: " + filler})
		}
	}
	return msgs
}

func TestShortHistoryNeverCompresses(t *testing.T) {
	c := newTestCompressor(t, CompressorConfig{MaxTotalTokens: 1}, nil)
	msgs := longHistory(9)
	assert.False(t, c.NeedsCompression(msgs))

	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)
	assert.Equal(t, msgs, out)
}

func TestNeedsCompressionOverBudget(t *testing.T) {
	c := newTestCompressor(t, CompressorConfig{MaxTotalTokens: 100}, nil)
	assert.True(t, c.NeedsCompression(longHistory(30)))
}

func TestCompressKeepsRecentWindowAndAddsHeader(t *testing.T) {
	c := newTestCompressor(t, CompressorConfig{MaxTotalTokens: 100, RecentWindow: 5}, nil)
	msgs := longHistory(30)
	out, err := c.Compress(context.Background(), msgs)
	require.NoError(t, err)

	require.Equal(t, RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, "[Context-Compressed History | Tokens: ")
	assert.Contains(t, out[0].Content, "## Active Workflow State")
	assert.Contains(t, out[0].Content, "search_leads")

	// The window never starts on a tool message.
	require.Greater(t, len(out), 1)
	assert.NotEqual(t, RoleTool, out[1].Role)
	assert.LessOrEqual(t, len(out)-1, 5)
	assert.Equal(t, msgs[len(msgs)-1], out[len(out)-1])
}

func TestCompressDigestTruncatesWithoutClient(t *testing.T) {
	c := newTestCompressor(t, CompressorConfig{}, nil)
	long := strings.Repeat("x", 5000)
	assert.Len(t, c.compressDigest(context.Background(), long), 2000)
}

func TestCompressDigestUsesClient(t *testing.T) {
	fc := &fakeCompleter{resp: &llm.Response{Content: "condensed"}}
	c := newTestCompressor(t, CompressorConfig{CompressionModels: []string{"openai/gpt-4o-mini"}}, fc)
	got := c.compressDigest(context.Background(), "digest body")
	assert.Equal(t, "condensed", got)
	require.Len(t, fc.reqs, 1)
	assert.Equal(t, 400, fc.reqs[0].MaxTokens)
	assert.Equal(t, []string{"openai/gpt-4o-mini"}, fc.reqs[0].Models)
}

func TestTokenCacheBounded(t *testing.T) {
	c := newTestCompressor(t, CompressorConfig{}, nil)
	for i := 0; i < tokenCacheCap+100; i++ {
		c.CountTokens(fmt.Sprintf("token-%d", i))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.LessOrEqual(t, len(c.cache), tokenCacheCap+1)
}
