// Package agent orchestrates the conversational sales workflow: it turns a
// user message into model tool calls, builds an execution plan, pauses for
// human review, executes the approved plan step by step and persists the
// resulting conversation.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"goa.design/clue/log"

	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/llm"
	"github.com/salesflow/agent/plan"
	"github.com/salesflow/agent/plan/analyzer"
	"github.com/salesflow/agent/stream"
	"github.com/salesflow/agent/title"
	"github.com/salesflow/agent/toolargs"
	"github.com/salesflow/agent/tools"
)

type (
	// ConversationStore is the persistence surface the orchestrator needs.
	// *store.Store implements it.
	ConversationStore interface {
		Load(ctx context.Context, userID, sessionID string) (*convo.Session, error)
		Save(ctx context.Context, sess *convo.Session) error
		UpdateTitle(ctx context.Context, userID, sessionID, title string) error
	}

	// Options configures New.
	Options struct {
		// LLM completes agent turns. Required.
		LLM llm.Client
		// Tools is the registry of executable tools. Required.
		Tools *tools.Registry
		// Store persists conversations. Required.
		Store ConversationStore
		// Analyzer judges dependencies and missing tools. Required.
		Analyzer *analyzer.Analyzer
		// Mapper maps enum arguments for search tools. Optional.
		Mapper *toolargs.Mapper
		// Compressor compresses long histories before the agent turn.
		// Optional.
		Compressor *convo.Compressor
		// Titles generates session titles in the background. Optional.
		Titles *title.Generator
		// Checkpoints stores paused workflow state. Defaults to an
		// in-memory checkpointer.
		Checkpoints Checkpointer
		// Models is the fallback chain for agent turns.
		Models []string
	}

	// Orchestrator runs the workflow graph.
	Orchestrator struct {
		llm         llm.Client
		tools       *tools.Registry
		store       ConversationStore
		analyzer    *analyzer.Analyzer
		mapper      *toolargs.Mapper
		compressor  *convo.Compressor
		titles      *title.Generator
		checkpoints Checkpointer
		models      []string
	}
)

// DefaultModels is the fallback chain for agent turns.
var DefaultModels = []string{
	"openai/gpt-4o",
	"anthropic/claude-3.5-sonnet",
	"openai/gpt-4o-mini",
}

// ErrMissingPlan reports a resume whose checkpoint carries no plan.
var ErrMissingPlan = errors.New("checkpoint has no execution plan")

var tracer = otel.Tracer("salesflow/agent")

const agentSystemPrompt = `You are Ava, an AI sales development assistant. You find leads and companies, generate outreach emails, create cadences and add contacts to them using the available tools.

Rules:
- For any request involving contacts, companies, emails or campaigns, call the appropriate tools directly. Do not answer with advice instead of action.
- Reuse data from previous tool results before searching again.
- Issue every tool call the request needs in a single response.
- Ask a clarifying question only when an essential parameter is missing entirely.`

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.LLM == nil {
		return nil, errors.New("agent: LLM is required")
	}
	if opts.Tools == nil {
		return nil, errors.New("agent: Tools is required")
	}
	if opts.Store == nil {
		return nil, errors.New("agent: Store is required")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("agent: Analyzer is required")
	}
	o := &Orchestrator{
		llm:         opts.LLM,
		tools:       opts.Tools,
		store:       opts.Store,
		analyzer:    opts.Analyzer,
		mapper:      opts.Mapper,
		compressor:  opts.Compressor,
		titles:      opts.Titles,
		checkpoints: opts.Checkpoints,
		models:      opts.Models,
	}
	if o.checkpoints == nil {
		o.checkpoints = NewMemoryCheckpointer()
	}
	if len(o.models) == 0 {
		o.models = DefaultModels
	}
	return o, nil
}

// Chat processes one user message: either starting a new workflow turn or
// resuming a paused plan review. Progress is reported through the sink;
// returned errors are infrastructure failures, while workflow-level failures
// surface as error events.
func (o *Orchestrator) Chat(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error {
	ctx, span := tracer.Start(ctx, "agent.chat")
	span.SetAttributes(attribute.String("session.id", sessionID))
	defer span.End()

	if err := sink.Send(ctx, stream.New(stream.EventConnected, sessionID, map[string]any{
		"message": "Connected to workflow",
	})); err != nil {
		return err
	}

	if convo.IsResumeCommand(message) {
		return o.resume(ctx, userID, sessionID, message, sink)
	}
	return o.start(ctx, userID, sessionID, message, sink)
}

func (o *Orchestrator) start(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error {
	sess, err := o.store.Load(ctx, userID, sessionID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	messages := convo.Dedupe(sess.Messages)
	messages = append(messages, convo.Message{Role: convo.RoleUser, Content: message})
	messages = convo.Truncate(messages, convo.MaxHistory)

	st := &State{
		SessionID:   sessionID,
		UserID:      userID,
		Title:       sess.Title,
		Model:       sess.Model,
		Messages:    messages,
		ToolOutputs: sess.ToolOutputs,
		Completed:   make(map[string]bool),
		StepResults: make(map[string]map[string]any),
	}

	o.maybeUpdateTitle(ctx, st, sink)

	if o.compressor != nil && o.compressor.NeedsCompression(st.Messages) {
		compressed, err := o.compressor.Compress(ctx, st.Messages)
		if err != nil {
			log.Printf(ctx, "history compression failed: %v", err)
		} else {
			st.Messages = compressed
		}
	}

	return o.agentNode(ctx, st, message, sink)
}

// maybeUpdateTitle triggers background title generation once a conversation
// has enough content and still carries the default title.
func (o *Orchestrator) maybeUpdateTitle(ctx context.Context, st *State, sink stream.Sink) {
	if o.titles == nil || len(st.Messages) < 3 || st.Title != convo.DefaultTitle {
		return
	}
	var userMessages []string
	for _, m := range st.Messages {
		if m.Role == convo.RoleUser && !convo.IsResumeCommand(m.Content) {
			userMessages = append(userMessages, m.Content)
		}
	}
	if err := sink.Send(ctx, stream.New(stream.EventTitleUpdate, st.SessionID, nil)); err != nil {
		log.Printf(ctx, "title event send failed: %v", err)
	}
	bg := context.WithoutCancel(ctx)
	userID, sessionID := st.UserID, st.SessionID
	go func() {
		t := o.titles.Generate(bg, userMessages)
		if err := o.store.UpdateTitle(bg, userID, sessionID, t); err != nil {
			log.Printf(bg, "title update failed: %v", err)
		}
	}()
}

// agentNode runs the model turn over the assembled history and routes to
// plan building or to a direct text response.
func (o *Orchestrator) agentNode(ctx context.Context, st *State, goal string, sink stream.Sink) error {
	wctx := convo.BuildContext(st.Messages, st.ToolOutputs)
	system := agentSystemPrompt
	if summary := wctx.Summary(); summary != "" {
		system += "\n\n" + summary
	}
	apiMessages := append(
		[]llm.Message{{Role: llm.RoleSystem, Content: system}},
		convo.Assemble(st.Messages, convo.OutputsByCallID(st.ToolOutputs))...,
	)

	resp, err := o.llm.Complete(ctx, &llm.Request{
		Models:      o.models,
		Temperature: 0.1,
		Messages:    apiMessages,
		Tools:       o.tools.Definitions(),
	})
	if err != nil {
		log.Printf(ctx, "agent turn failed: %v", err)
		st.Messages = append(st.Messages, convo.Message{
			Role:    convo.RoleAssistant,
			Content: "I'm sorry, I ran into a problem reaching the language model. Please try again.",
		})
		return o.respondText(ctx, st, st.Messages[len(st.Messages)-1].Content, sink)
	}

	if len(resp.ToolCalls) == 0 {
		st.Messages = append(st.Messages, convo.Message{Role: convo.RoleAssistant, Content: resp.Content})
		return o.respondText(ctx, st, resp.Content, sink)
	}
	return o.planExecution(ctx, st, goal, wctx, resp, sink)
}

// planExecution validates and enriches the model's tool calls, builds the
// execution plan and pauses for review.
func (o *Orchestrator) planExecution(ctx context.Context, st *State, goal string, wctx *convo.WorkflowContext, resp *llm.Response, sink stream.Sink) error {
	if wctx.OriginalRequest != "" {
		goal = wctx.OriginalRequest
	}

	calls := make([]convo.ToolCall, 0, len(resp.ToolCalls))
	for _, tc := range resp.ToolCalls {
		calls = append(calls, convo.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
	}

	planCalls := toPlanCalls(calls)
	missing := o.analyzer.CheckMissingTools(ctx, goal, planCalls, wctx.Summary())
	if missing.HasMissing {
		var added []string
		for _, mt := range missing.Tools {
			if !o.tools.Has(mt.Name) || hasCall(calls, mt.Name) {
				continue
			}
			args := tools.DefaultArgs(mt.Name, goal, wctx)
			calls = append(calls, convo.ToolCall{
				ID:        fmt.Sprintf("%s%s_%d", convo.AutoCallPrefix, mt.Name, len(calls)),
				Name:      mt.Name,
				Arguments: marshalArgs(args),
			})
			added = append(added, mt.Name)
		}
		if len(added) > 0 {
			st.Messages = append(st.Messages, convo.Message{
				Role: convo.RoleSystem,
				Content: fmt.Sprintf(
					"System automatically detected and added %d missing tool call(s) to complete the workflow: %s.",
					len(added), strings.Join(added, ", ")),
			})
		}
	}

	for i := range calls {
		args := toolargs.ValidateAndFilter(ctx, calls[i].Name, calls[i].Args())
		if o.mapper != nil {
			args = o.mapper.MapEnums(ctx, calls[i].Name, args)
		}
		calls[i].Arguments = marshalArgs(args)
	}

	st.Messages = append(st.Messages, convo.Message{
		Role:      convo.RoleAssistant,
		Content:   resp.Content,
		ToolCalls: calls,
	})

	planCalls = toPlanCalls(calls)
	analysis := o.analyzer.AnalyzeDependencies(ctx, planCalls)
	p, err := plan.Build(plan.NewID(), planCalls, analysis)
	if err != nil {
		if sendErr := sendError(ctx, sink, st.SessionID, fmt.Sprintf("plan construction failed: %v", err)); sendErr != nil {
			return sendErr
		}
		return err
	}
	st.Plan = p
	st.Completed = make(map[string]bool)
	st.StepResults = make(map[string]map[string]any)

	// The thread moves from the session to the plan once the plan exists.
	o.checkpoints.Put(p.PlanID, st)
	o.checkpoints.Delete(st.SessionID)

	return sink.Send(ctx, stream.New(stream.EventPlanReview, st.SessionID, map[string]any{
		"plan":    p,
		"plan_id": p.PlanID,
		"message": fmt.Sprintf("Please review and approve/edit the execution plan. (Plan ID: %s)", p.PlanID),
	}))
}

// resume continues a paused workflow after plan approval or edit.
func (o *Orchestrator) resume(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error {
	planID, editedJSON, err := parseResume(message)
	if err != nil {
		if sendErr := sendError(ctx, sink, sessionID, err.Error()); sendErr != nil {
			return sendErr
		}
		return err
	}

	st, err := o.checkpoints.Get(planID)
	if err != nil {
		if sendErr := sendError(ctx, sink, sessionID, fmt.Sprintf("no paused workflow for plan %s", planID)); sendErr != nil {
			return sendErr
		}
		return err
	}
	if st.Plan == nil {
		if sendErr := sendError(ctx, sink, sessionID, "checkpoint has no execution plan"); sendErr != nil {
			return sendErr
		}
		return ErrMissingPlan
	}
	st.UserID = userID
	st.SessionID = sessionID

	if editedJSON != "" {
		edited, err := plan.Unmarshal([]byte(editedJSON))
		if err != nil {
			if sendErr := sendError(ctx, sink, sessionID, fmt.Sprintf("Invalid plan format: %v", err)); sendErr != nil {
				return sendErr
			}
			return err
		}
		edited.PlanID = planID
		// Human edits are authoritative; only argument and structural
		// validation run again.
		for _, step := range edited.Steps {
			step.Arguments = toolargs.ValidateAndFilter(ctx, step.Tool, step.Arguments)
		}
		if err := edited.Validate(); err != nil {
			if sendErr := sendError(ctx, sink, sessionID, fmt.Sprintf("Invalid plan: %v", err)); sendErr != nil {
				return sendErr
			}
			return err
		}
		st.Plan = edited
	}

	st.Messages = append(st.Messages, convo.Message{Role: convo.RoleUser, Content: message})
	return o.execute(ctx, st, sink)
}

// parseResume splits an APPROVE_PLAN/EDIT_PLAN command into its plan id and
// optional edited plan JSON.
func parseResume(message string) (planID, editedJSON string, err error) {
	switch {
	case strings.HasPrefix(message, "APPROVE_PLAN:"):
		planID = strings.TrimSpace(strings.TrimPrefix(message, "APPROVE_PLAN:"))
	case strings.HasPrefix(message, "EDIT_PLAN:"):
		rest := strings.TrimPrefix(message, "EDIT_PLAN:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return "", "", errors.New("EDIT_PLAN requires a plan id and a plan document")
		}
		planID = strings.TrimSpace(parts[0])
		editedJSON = parts[1]
	default:
		return "", "", errors.New("not a resume command")
	}
	if !plan.ValidID(planID) {
		return "", "", fmt.Errorf("invalid plan id %q", planID)
	}
	return planID, editedJSON, nil
}

func sendError(ctx context.Context, sink stream.Sink, sessionID, message string) error {
	return sink.Send(ctx, stream.New(stream.EventError, sessionID, map[string]any{"message": message}))
}

func marshalArgs(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func toPlanCalls(calls []convo.ToolCall) []plan.Call {
	out := make([]plan.Call, 0, len(calls))
	for _, c := range calls {
		out = append(out, plan.Call{ID: c.ID, Tool: c.Name, Arguments: c.Args()})
	}
	return out
}

func hasCall(calls []convo.ToolCall, tool string) bool {
	for _, c := range calls {
		if c.Name == tool {
			return true
		}
	}
	return false
}
