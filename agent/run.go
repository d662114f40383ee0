package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"goa.design/clue/log"

	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/plan"
	"github.com/salesflow/agent/stream"
	"github.com/salesflow/agent/toolargs"
	"github.com/salesflow/agent/tools"
)

// execute runs the approved plan batch by batch until every step has
// completed or been skipped, then responds with the aggregate.
func (o *Orchestrator) execute(ctx context.Context, st *State, sink stream.Sink) error {
	ctx, span := tracer.Start(ctx, "agent.execute")
	span.SetAttributes(
		attribute.String("plan.id", st.Plan.PlanID),
		attribute.Int("plan.steps", len(st.Plan.Steps)),
	)
	defer span.End()

	for !st.Plan.Complete(st.Completed) {
		ready := st.Plan.ReadySteps(st.Completed)
		if len(ready) == 0 {
			err := errors.New("plan has unrunnable steps")
			if sendErr := sendError(ctx, sink, st.SessionID, err.Error()); sendErr != nil {
				return sendErr
			}
			return err
		}
		// Sequential plans run one step at a time so an empty search result
		// can skip later counterpart searches before they start.
		batch := ready
		if st.Plan.ExecutionType == plan.Sequential {
			batch = ready[:1]
		}
		if err := o.runBatch(ctx, st, batch, sink); err != nil {
			return err
		}
		o.pruneEmptySearches(ctx, st, batch)
	}

	o.appendRunMessages(st)
	if err := o.respondPlan(ctx, st, sink); err != nil {
		return err
	}
	o.checkpoints.Delete(st.Plan.PlanID)
	return nil
}

// runBatch executes one batch of ready steps concurrently. Failures are
// recorded as step results, never returned: a failed step must not abort
// the plan.
func (o *Orchestrator) runBatch(ctx context.Context, st *State, batch []*plan.Step, sink stream.Sink) error {
	type stepResult struct {
		step   *plan.Step
		result map[string]any
	}

	results := make([]stepResult, len(batch))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, step := range batch {
		if err := sink.Send(ctx, stream.New(stream.EventProgress, st.SessionID, stream.StepProgress{
			Node:        "execute_step",
			StepID:      step.StepID,
			ToolName:    step.Tool,
			Status:      "running",
			Message:     fmt.Sprintf("Executing %s", step.Tool),
			Description: step.Description,
		})); err != nil {
			return err
		}
		wg.Add(1)
		go func(i int, step *plan.Step) {
			defer wg.Done()
			res := o.runStep(ctx, st, step)
			mu.Lock()
			results[i] = stepResult{step: step, result: res}
			mu.Unlock()
		}(i, step)
	}
	wg.Wait()

	for _, r := range results {
		st.Completed[r.step.StepID] = true
		st.StepResults[r.step.StepID] = r.result
		st.ToolOutputs = append(st.ToolOutputs, convo.ToolOutput{
			ToolCallID:  r.step.ToolCallID,
			ToolName:    r.step.Tool,
			StepID:      r.step.StepID,
			PlanID:      st.Plan.PlanID,
			Result:      r.result,
			Description: r.step.Description,
		})

		status := "completed"
		message := fmt.Sprintf("Completed %s", r.step.Tool)
		errMsg := ""
		if s, _ := r.result["status"].(string); s == "failed" {
			status = "failed"
			errMsg, _ = r.result["error"].(string)
			message = errMsg
		}
		if err := sink.Send(ctx, stream.New(stream.EventProgress, st.SessionID, stream.StepProgress{
			Node:        "execute_step",
			StepID:      r.step.StepID,
			ToolName:    r.step.Tool,
			Status:      status,
			Message:     message,
			Description: r.step.Description,
			Summary:     tools.Summarize(r.result),
			Error:       errMsg,
		})); err != nil {
			return err
		}
	}
	return nil
}

// pruneEmptySearches skips counterpart searches once a search comes back
// empty: an empty search_leads result marks pending independent
// search_companies steps skipped, and vice versa. Steps with declared
// dependencies are left alone since their inputs may still change the
// outcome.
func (o *Orchestrator) pruneEmptySearches(ctx context.Context, st *State, batch []*plan.Step) {
	for _, step := range batch {
		var counterpart, field, reason string
		switch step.Tool {
		case "search_leads":
			counterpart, field, reason = "search_companies", "contacts", "no contacts found"
		case "search_companies":
			counterpart, field, reason = "search_leads", "companies", "no companies found"
		default:
			continue
		}
		result := st.StepResults[step.StepID]
		if status, _ := result["status"].(string); status == "failed" {
			continue
		}
		if list, ok := result[field].([]any); ok && len(list) > 0 {
			continue
		}
		for _, other := range st.Plan.Steps {
			if other.Tool != counterpart || st.Completed[other.StepID] ||
				len(other.DependsOn) > 0 || other.SkipReason != "" {
				continue
			}
			other.SkipReason = reason
			log.Printf(ctx, "skipping %s (%s): %s", other.StepID, other.Tool, reason)
		}
	}
}

// runStep prepares arguments and executes one step. All failure modes are
// encoded into the result document.
func (o *Orchestrator) runStep(ctx context.Context, st *State, step *plan.Step) map[string]any {
	args := maps.Clone(step.Arguments)
	if args == nil {
		args = map[string]any{}
	}

	if step.UsePreviousResults || len(step.DependsOn) > 0 {
		injected, err := tools.InjectResults(ctx, step.Tool, args, step.DependsOn, st.StepResults)
		if err != nil {
			return failedResult(err)
		}
		args = injected
	}

	if step.Tool == "add_contacts_to_cadence" {
		if err := o.resolveCadence(st, args); err != nil {
			return failedResult(err)
		}
	}

	args = toolargs.ValidateAndFilter(ctx, step.Tool, args)
	result, err := o.tools.Execute(ctx, step.Tool, args)
	if err != nil {
		log.Printf(ctx, "step %s (%s) failed: %v", step.StepID, step.Tool, err)
		return failedResult(err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result
}

// resolveCadence fills a missing cadence id from the workflow context. A
// cadence that cannot be resolved anywhere is an argument error, not a CRM
// call with empty ids.
func (o *Orchestrator) resolveCadence(st *State, args map[string]any) error {
	id, _ := args["cadence_id"].(string)
	if id != "" && id != "auto_filled_by_system" {
		return nil
	}
	wctx := convo.BuildContext(st.Messages, st.ToolOutputs)
	if wctx.CadenceID == "" {
		return fmt.Errorf("%w: add_contacts_to_cadence: no cadence id available", tools.ErrInvalidArguments)
	}
	args["cadence_id"] = wctx.CadenceID
	if name, _ := args["name"].(string); name == "" || name == "auto_filled_by_system" {
		args["name"] = wctx.CadenceName
	}
	return nil
}

func failedResult(err error) map[string]any {
	return map[string]any{"status": "failed", "error": err.Error()}
}

// appendRunMessages records the run in the durable history: one tool
// message per step plus a bridging assistant message so the next user turn
// never directly follows a tool message.
func (o *Orchestrator) appendRunMessages(st *State) {
	for _, step := range st.Plan.Steps {
		result, ok := st.StepResults[step.StepID]
		if !ok {
			continue
		}
		summary, err := json.Marshal(tools.Summarize(result))
		if err != nil {
			summary = []byte(`{}`)
		}
		st.Messages = append(st.Messages, convo.Message{
			Role:       convo.RoleTool,
			ToolCallID: step.ToolCallID,
			Content:    fmt.Sprintf("Completed %s: %s", step.Tool, summary),
		})
	}
	st.Messages = append(st.Messages, convo.Message{
		Role:    convo.RoleAssistant,
		Content: convo.BridgeText,
	})
}

// respondPlan aggregates the run into the final result, persists the
// session and emits the result and done events.
func (o *Orchestrator) respondPlan(ctx context.Context, st *State, sink stream.Sink) error {
	data := map[string]any{}
	stepIDs := make([]string, 0, len(st.StepResults))
	for id := range st.StepResults {
		stepIDs = append(stepIDs, id)
	}
	sort.Strings(stepIDs)
	for _, id := range stepIDs {
		maps.Copy(data, tools.Summarize(st.StepResults[id]))
	}

	var phrases []string
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if entity, ok := strings.CutSuffix(k, "_found"); ok {
			phrases = append(phrases, fmt.Sprintf("%v %s", data[k], entity))
		}
	}

	message := fmt.Sprintf("Completed %d steps in %s mode.", len(st.Plan.Steps), st.Plan.ExecutionType)
	if len(phrases) > 0 {
		message += fmt.Sprintf(" Found: %s.", strings.Join(phrases, ", "))
	}

	toolNames := make([]string, 0, len(st.Plan.Steps))
	for _, step := range st.Plan.Steps {
		toolNames = append(toolNames, step.Tool)
	}

	var planOutputs []convo.ToolOutput
	for _, out := range st.ToolOutputs {
		if out.PlanID == st.Plan.PlanID {
			planOutputs = append(planOutputs, out)
		}
	}

	final := map[string]any{
		"type":              "tool_response",
		"execution_type":    string(st.Plan.ExecutionType),
		"message":           message,
		"data":              data,
		"suggested_actions": tools.SuggestActions(toolNames),
		"tool_outputs":      planOutputs,
	}
	return o.finish(ctx, st, final, sink)
}

// respondText persists and emits a plain assistant reply.
func (o *Orchestrator) respondText(ctx context.Context, st *State, message string, sink stream.Sink) error {
	final := map[string]any{
		"type":              "text_response",
		"message":           message,
		"data":              map[string]any{},
		"suggested_actions": []string{},
	}
	return o.finish(ctx, st, final, sink)
}

func (o *Orchestrator) finish(ctx context.Context, st *State, final map[string]any, sink stream.Sink) error {
	if err := o.store.Save(ctx, st.session()); err != nil {
		log.Printf(ctx, "persist conversation failed: %v", err)
		if sendErr := sendError(ctx, sink, st.SessionID, "failed to save conversation"); sendErr != nil {
			return sendErr
		}
		return err
	}
	if err := sink.Send(ctx, stream.New(stream.EventResult, st.SessionID, final)); err != nil {
		return err
	}
	return sink.Send(ctx, stream.New(stream.EventDone, st.SessionID, nil))
}
