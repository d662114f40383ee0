// Package title generates short session titles from the first user
// messages of a conversation.
package title

import (
	"context"
	"errors"
	"strings"

	"goa.design/clue/log"

	"github.com/salesflow/agent/llm"
)

// DefaultModels is the fallback chain for title generation; titles favor
// fast, cheap models.
var DefaultModels = []string{
	"cohere/command-r-08-2024",
	"mistralai/mistral-7b-instruct",
	"openai/gpt-3.5-turbo",
}

// FallbackTitle is used when every model fails.
const FallbackTitle = "Chat in progress"

const systemPrompt = "You are an expert at creating short, concise, and informative titles for " +
	"conversations. Based on the following messages, generate a title that is no more than 5-7 words long."

type (
	// Generator produces session titles.
	Generator struct {
		client llm.Client
		models []string
	}

	// Options configures New.
	Options struct {
		// Client completes the title prompt. Required.
		Client llm.Client
		// Models overrides DefaultModels.
		Models []string
	}
)

// New creates a Generator.
func New(opts Options) (*Generator, error) {
	if opts.Client == nil {
		return nil, errors.New("title: client is required")
	}
	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	return &Generator{client: opts.Client, models: models}, nil
}

// Generate derives a title from the user messages so far. Failures yield
// FallbackTitle rather than an error since titling is best effort.
func (g *Generator) Generate(ctx context.Context, userMessages []string) string {
	var b strings.Builder
	b.WriteString("Here is the conversation so far:\n")
	for _, msg := range userMessages {
		b.WriteString("- ")
		b.WriteString(msg)
		b.WriteByte('\n')
	}

	resp, err := g.client.Complete(ctx, &llm.Request{
		Models:      g.models,
		Temperature: 0.5,
		MaxTokens:   30,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		log.Printf(ctx, "title generation failed: %v", err)
		return FallbackTitle
	}
	title := strings.ReplaceAll(strings.TrimSpace(resp.Content), `"`, "")
	if title == "" {
		return FallbackTitle
	}
	return title
}
