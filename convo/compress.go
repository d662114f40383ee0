package convo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"goa.design/clue/log"

	"github.com/salesflow/agent/llm"
)

type (
	// CompressorConfig tunes when and how aggressively a history is
	// compressed. Zero values fall back to the defaults below.
	CompressorConfig struct {
		// MaxTotalTokens is the history size that triggers compression.
		MaxTotalTokens int
		// TargetTokens is the post-compression budget.
		TargetTokens int
		// RecentWindow is the count of newest messages kept verbatim.
		RecentWindow int
		// MiddleWindow is the count of messages summarized into the digest;
		// anything older is folded into the digest counts only.
		MiddleWindow int
		// Ratio is the fraction of the budget reserved for the digest.
		Ratio float64
		// CompressionModels is the fallback chain for LLM digest
		// compression.
		CompressionModels []string
	}

	// Compressor shrinks long histories to a token budget. A digest of the
	// older conversation replaces everything outside the recent window.
	Compressor struct {
		cfg    CompressorConfig
		client llm.Client
		enc    *tiktoken.Tiktoken

		mu       sync.Mutex
		cache    map[string]int
		cacheKey []string
	}
)

const (
	defaultMaxTotalTokens = 40000
	defaultTargetTokens   = 15000
	defaultRecentWindow   = 20
	defaultMiddleWindow   = 40
	defaultRatio          = 0.15

	// Histories shorter than this never compress regardless of token count.
	minMessagesForCompression = 10

	// Digests above this token count are re-compressed through the LLM.
	maxDigestTokens = 5000

	tokenCacheCap = 1000
)

// NewCompressor builds a Compressor. The client may be nil, in which case an
// oversized digest is truncated instead of LLM-compressed.
func NewCompressor(cfg CompressorConfig, client llm.Client) (*Compressor, error) {
	if cfg.MaxTotalTokens <= 0 {
		cfg.MaxTotalTokens = defaultMaxTotalTokens
	}
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = defaultTargetTokens
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = defaultRecentWindow
	}
	if cfg.MiddleWindow <= 0 {
		cfg.MiddleWindow = defaultMiddleWindow
	}
	if cfg.Ratio <= 0 {
		cfg.Ratio = defaultRatio
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc, err = tiktoken.GetEncoding("p50k_base")
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
	}
	return &Compressor{
		cfg:    cfg,
		client: client,
		enc:    enc,
		cache:  make(map[string]int),
	}, nil
}

// CountTokens returns the token count of text, memoized up to a bounded
// cache size.
func (c *Compressor) CountTokens(text string) int {
	c.mu.Lock()
	if n, ok := c.cache[text]; ok {
		c.mu.Unlock()
		return n
	}
	c.mu.Unlock()

	n := len(c.enc.Encode(text, nil, nil))

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cache) >= tokenCacheCap {
		// Evict the oldest half rather than tracking LRU order precisely.
		drop := len(c.cacheKey) / 2
		for _, k := range c.cacheKey[:drop] {
			delete(c.cache, k)
		}
		c.cacheKey = append([]string(nil), c.cacheKey[drop:]...)
	}
	c.cache[text] = n
	c.cacheKey = append(c.cacheKey, text)
	return n
}

// HistoryTokens totals the token counts of every message.
func (c *Compressor) HistoryTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += c.CountTokens(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.CountTokens(tc.Arguments)
		}
	}
	return total
}

// NeedsCompression reports whether the history exceeds the budget. Short
// histories never compress.
func (c *Compressor) NeedsCompression(messages []Message) bool {
	if len(messages) < minMessagesForCompression {
		return false
	}
	return c.HistoryTokens(messages) > c.cfg.MaxTotalTokens
}

// Compress replaces everything outside the recent window with a digest
// system message. The recent window is adjusted so it never begins with a
// tool message, keeping call/result adjacency intact.
func (c *Compressor) Compress(ctx context.Context, messages []Message) ([]Message, error) {
	if !c.NeedsCompression(messages) {
		return messages, nil
	}
	before := c.HistoryTokens(messages)

	cut := len(messages) - c.cfg.RecentWindow
	if cut < 0 {
		cut = 0
	}
	for cut < len(messages) && messages[cut].Role == RoleTool {
		cut++
	}
	older := messages[:cut]
	recent := messages[cut:]

	digest := c.buildDigest(older)
	if c.CountTokens(digest) > maxDigestTokens {
		digest = c.compressDigest(ctx, digest)
	}

	header := fmt.Sprintf("[Context-Compressed History | Tokens: %d→compressed | Messages: %d]", before, len(older))
	out := make([]Message, 0, len(recent)+1)
	out = append(out, Message{Role: RoleSystem, Content: header + "\n" + digest})
	out = append(out, recent...)
	return out, nil
}

func (c *Compressor) buildDigest(older []Message) string {
	middleStart := len(older) - c.cfg.MiddleWindow
	if middleStart < 0 {
		middleStart = 0
	}

	toolCounts := make(map[string]int)
	resultCounts := make(map[string]int)
	var goals []string
	currentGoal := ""
	for i, m := range older {
		switch m.Role {
		case RoleAssistant:
			for _, tc := range m.ToolCalls {
				toolCounts[tc.Name]++
			}
		case RoleTool:
			if i >= middleStart {
				resultCounts[toolFromContent(m.Content)]++
			}
		case RoleUser:
			if IsResumeCommand(m.Content) || len(m.Content) <= 10 {
				continue
			}
			goal := m.Content
			if len(goal) > 150 {
				goal = goal[:150]
			}
			goals = append(goals, goal)
			currentGoal = goal
		}
	}
	if len(goals) > 3 {
		goals = goals[len(goals)-3:]
	}

	var b strings.Builder
	b.WriteString("## Active Workflow State\n")
	for name, n := range toolCounts {
		fmt.Fprintf(&b, "- %s(%dx)\n", name, n)
	}
	if currentGoal != "" {
		goal := currentGoal
		if len(goal) > 100 {
			goal = goal[:100]
		}
		fmt.Fprintf(&b, "Current goal: %s\n", goal)
	}
	b.WriteString("\n## Tool Execution Context\n")
	for name, n := range resultCounts {
		fmt.Fprintf(&b, "- %s results available: %d\n", name, n)
	}
	b.WriteString("\n## User Goals & Decisions\n")
	for _, g := range goals {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	return b.String()
}

func (c *Compressor) compressDigest(ctx context.Context, digest string) string {
	if c.client == nil {
		return truncate(digest, 2000)
	}
	resp, err := c.client.Complete(ctx, &llm.Request{
		Models:      c.cfg.CompressionModels,
		Temperature: 0.1,
		MaxTokens:   400,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "Compress this conversation context to under 300 tokens. Keep tool names, counts and identifiers. Drop prose."},
			{Role: llm.RoleUser, Content: digest},
		},
	})
	if err != nil || resp.Content == "" {
		log.Printf(ctx, "digest compression failed, truncating: %v", err)
		return truncate(digest, 2000)
	}
	return resp.Content
}

func toolFromContent(content string) string {
	// Tool result messages read "Completed <tool>: ..." or "Error: ...".
	if rest, ok := strings.CutPrefix(content, "Completed "); ok {
		if name, _, found := strings.Cut(rest, ":"); found {
			return name
		}
	}
	return "tool"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
