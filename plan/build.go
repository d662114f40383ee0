package plan

import (
	"fmt"
)

type (
	// Call is the minimal view of a model tool call the builder needs.
	Call struct {
		ID          string
		Tool        string
		Arguments   map[string]any
		Description string
	}

	// Analysis is the dependency analyzer's verdict for a set of tool calls.
	// Dependencies maps step IDs to the step IDs they depend on.
	Analysis struct {
		ExecutionType ExecutionType
		Confidence    float64
		Dependencies  map[string][]string
		Reasoning     string
	}
)

// Build assembles a plan from tool calls and a dependency analysis. Steps are
// numbered step_1..step_N in call order. Parallel plans drop all declared
// dependencies. The returned plan has had cycle repair applied and is
// validated; an unrepairable cycle yields ErrCycle.
func Build(id string, calls []Call, analysis Analysis) (*Plan, error) {
	if id == "" {
		id = NewID()
	}
	p := &Plan{
		PlanID:        id,
		ExecutionType: analysis.ExecutionType,
	}
	if p.ExecutionType == "" {
		p.ExecutionType = Sequential
	}
	for i, c := range calls {
		stepID := fmt.Sprintf("step_%d", i+1)
		callID := c.ID
		if callID == "" {
			callID = "call_" + stepID
		}
		args := c.Arguments
		if args == nil {
			args = map[string]any{}
		}
		step := &Step{
			StepID:             stepID,
			ToolCallID:         callID,
			Tool:               c.Tool,
			Arguments:          args,
			Description:        c.Description,
			UsePreviousResults: false,
		}
		if p.ExecutionType != Parallel {
			step.DependsOn = filterDeps(stepID, analysis.Dependencies[stepID], len(calls))
			step.UsePreviousResults = len(step.DependsOn) > 0
		}
		p.Steps = append(p.Steps, step)
	}
	RepairCycles(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// filterDeps drops analyzer dependencies that reference the step itself or a
// step ID outside the plan. The analyzer output is model-generated and may
// name steps that do not exist.
func filterDeps(stepID string, deps []string, n int) []string {
	var keep []string
	for _, d := range deps {
		if d == stepID {
			continue
		}
		valid := false
		for i := 1; i <= n; i++ {
			if d == fmt.Sprintf("step_%d", i) {
				valid = true
				break
			}
		}
		if valid {
			keep = append(keep, d)
		}
	}
	return keep
}
