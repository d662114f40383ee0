// Package analyzer decides how a set of tool calls should execute. It asks a
// small model for the dependency structure between calls and for tools the
// user's goal needs but the planner did not request. Both analyses degrade
// safely: on any failure the dependency analysis falls back to sequential
// execution with zero confidence and the missing-tool check reports nothing
// missing.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"goa.design/clue/log"

	"github.com/salesflow/agent/llm"
	"github.com/salesflow/agent/plan"
)

type (
	// Analyzer performs dependency and missing-tool analysis.
	Analyzer struct {
		client llm.Client
		models []string
	}

	// Options configures New.
	Options struct {
		// Client performs the analysis completions. Required.
		Client llm.Client
		// Models is the fallback chain for analysis calls.
		Models []string
	}

	// MissingTool names a tool the goal needs that was not called.
	MissingTool struct {
		Name   string `json:"tool_name"`
		Reason string `json:"reason"`
	}

	// MissingTools is the missing-tool analysis verdict.
	MissingTools struct {
		HasMissing bool          `json:"has_missing_tools"`
		Tools      []MissingTool `json:"missing_tools"`
	}

	dependencyVerdict struct {
		ExecutionType string              `json:"execution_type"`
		Confidence    float64             `json:"confidence"`
		Dependencies  map[string][]string `json:"dependencies"`
		Reasoning     string              `json:"reasoning"`
	}
)

// DefaultModels is the analysis fallback chain. The primary model is retried
// at the end of the chain because transient failures dominate.
var DefaultModels = []string{"openai/gpt-4o-mini", "qwen/qwen3-235b-a22b", "openai/gpt-4o-mini"}

// New creates an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.Client == nil {
		return nil, errors.New("analyzer: Client is required")
	}
	models := opts.Models
	if len(models) == 0 {
		models = DefaultModels
	}
	return &Analyzer{client: opts.Client, models: models}, nil
}

// AnalyzeDependencies determines the execution type and inter-step
// dependencies for the calls. Zero or one call is trivially parallel with
// full confidence.
func (a *Analyzer) AnalyzeDependencies(ctx context.Context, calls []plan.Call) plan.Analysis {
	if len(calls) <= 1 {
		return plan.Analysis{
			ExecutionType: plan.Parallel,
			Confidence:    1.0,
			Dependencies:  map[string][]string{},
		}
	}

	resp, err := a.client.Complete(ctx, &llm.Request{
		Models:      a.models,
		Temperature: 0.1,
		JSONMode:    true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: dependencySystemPrompt},
			{Role: llm.RoleUser, Content: describeCalls(calls)},
		},
	})
	if err != nil {
		log.Printf(ctx, "dependency analysis failed, defaulting to sequential: %v", err)
		return sequentialFallback()
	}
	verdict, err := decodeVerdict(resp.Content)
	if err != nil {
		log.Printf(ctx, "dependency analysis returned malformed JSON, defaulting to sequential: %v", err)
		return sequentialFallback()
	}

	et := plan.ExecutionType(verdict.ExecutionType)
	if et != plan.Sequential && et != plan.Parallel {
		et = plan.Sequential
	}
	deps := verdict.Dependencies
	if deps == nil {
		deps = map[string][]string{}
	}
	return plan.Analysis{
		ExecutionType: et,
		Confidence:    verdict.Confidence,
		Dependencies:  deps,
		Reasoning:     verdict.Reasoning,
	}
}

// CheckMissingTools asks whether the goal requires tools absent from the
// call list. The context summary lets the model see what earlier workflow
// turns already produced.
func (a *Analyzer) CheckMissingTools(ctx context.Context, goal string, calls []plan.Call, contextSummary string) MissingTools {
	var b strings.Builder
	fmt.Fprintf(&b, "User goal: %s\n\nTools already requested:\n", goal)
	for _, c := range calls {
		fmt.Fprintf(&b, "- %s\n", c.Tool)
	}
	if contextSummary != "" {
		fmt.Fprintf(&b, "\nWorkflow context:\n%s\n", contextSummary)
	}

	resp, err := a.client.Complete(ctx, &llm.Request{
		Models:      a.models,
		Temperature: 0.1,
		JSONMode:    true,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: missingToolsSystemPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		log.Printf(ctx, "missing-tool analysis failed, assuming none missing: %v", err)
		return MissingTools{}
	}
	verdict, err := decodeMissing(resp.Content)
	if err != nil {
		log.Printf(ctx, "missing-tool analysis returned malformed JSON, assuming none missing: %v", err)
		return MissingTools{}
	}
	if !verdict.HasMissing {
		verdict.Tools = nil
	}
	return verdict
}

const dependencySystemPrompt = `You analyze tool execution plans for a sales assistant.
Given a numbered list of tool calls, decide whether they can run in parallel
or must run sequentially, and which steps depend on which.

Rules:
- A step depends on another only when it consumes that step's output.
- add_contacts_to_cadence depends on the create_cadence step that makes the
  cadence and on the search step that finds the contacts.
- create_cadence depends on generate_email when the email it sends is
  generated in this plan.
- Independent searches run in parallel.

Respond with JSON only:
{"execution_type": "sequential"|"parallel", "confidence": 0.0-1.0,
 "dependencies": {"step_N": ["step_M", ...]}, "reasoning": "..."}`

const missingToolsSystemPrompt = `You review a sales assistant's tool selection.
Decide whether completing the user goal requires tools that were not
requested. Only name tools from this set: search_leads, search_companies,
generate_email, create_cadence, add_contacts_to_cadence.

Respond with JSON only:
{"has_missing_tools": true|false,
 "missing_tools": [{"tool_name": "...", "reason": "..."}]}`

func describeCalls(calls []plan.Call) string {
	var b strings.Builder
	for i, c := range calls {
		args, _ := json.Marshal(c.Arguments)
		fmt.Fprintf(&b, "step_%d: %s %s\n", i+1, c.Tool, args)
	}
	return b.String()
}

func sequentialFallback() plan.Analysis {
	return plan.Analysis{
		ExecutionType: plan.Sequential,
		Confidence:    0.0,
		Dependencies:  map[string][]string{},
	}
}

func decodeVerdict(content string) (*dependencyVerdict, error) {
	data, err := sliceJSON(content)
	if err != nil {
		return nil, err
	}
	var v dependencyVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &v, nil
}

func decodeMissing(content string) (MissingTools, error) {
	data, err := sliceJSON(content)
	if err != nil {
		return MissingTools{}, err
	}
	var v MissingTools
	if err := json.Unmarshal(data, &v); err != nil {
		return MissingTools{}, fmt.Errorf("decode analysis: %w", err)
	}
	return v, nil
}

// sliceJSON extracts the JSON object from a response that may carry prose or
// code fences around it.
func sliceJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}
	return []byte(content[start : end+1]), nil
}
