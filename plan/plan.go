// Package plan defines execution plans derived from model tool calls. A plan
// is an ordered set of steps with explicit dependencies; the workflow engine
// schedules ready steps, records completions and decides when the plan is
// done. Plans serialize to JSON so they can round-trip through plan review
// edits and the conversation store.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// ExecutionType selects how a plan's steps are scheduled.
	ExecutionType string

	// Step is a single tool invocation within a plan. DependsOn lists the
	// step IDs whose results must be available before the step runs. Steps
	// with a non-empty SkipReason are never executed and count as completed
	// for scheduling purposes.
	Step struct {
		StepID             string         `json:"step_id"`
		ToolCallID         string         `json:"tool_call_id"`
		Tool               string         `json:"tool_name"`
		Arguments          map[string]any `json:"tool_args"`
		DependsOn          []string       `json:"depends_on"`
		UsePreviousResults bool           `json:"use_previous_results"`
		Description        string         `json:"description,omitempty"`
		SkipReason         string         `json:"skip_reason,omitempty"`
	}

	// Plan is a validated set of steps executed under a single plan ID. The
	// plan ID doubles as the checkpoint thread ID once the plan exists.
	Plan struct {
		PlanID        string        `json:"plan_id"`
		ExecutionType ExecutionType `json:"execution_type"`
		Steps         []*Step       `json:"steps"`
	}
)

const (
	// Sequential plans run steps in dependency order, one batch of ready
	// steps at a time.
	Sequential ExecutionType = "sequential"
	// Parallel plans carry no dependencies and run every step concurrently.
	Parallel ExecutionType = "parallel"
)

// ErrCycle reports that a plan's dependency graph contains a cycle that
// repair could not break.
var ErrCycle = errors.New("plan dependencies contain a cycle")

var planIDPattern = regexp.MustCompile(`^plan_[0-9]+_[0-9a-f]+$`)

// NewID returns a fresh plan ID of the form plan_<unix>_<8 hex chars>.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("plan_%d_%s", time.Now().Unix(), suffix)
}

// ValidID reports whether s is a well-formed plan ID.
func ValidID(s string) bool {
	return planIDPattern.MatchString(s)
}

// Validate checks the plan's structural invariants: step IDs are unique,
// every dependency references an existing step, parallel plans carry no
// dependencies and the dependency graph is acyclic.
func (p *Plan) Validate() error {
	if p.PlanID == "" {
		return errors.New("plan id is required")
	}
	if p.ExecutionType != Sequential && p.ExecutionType != Parallel {
		return fmt.Errorf("unknown execution type %q", p.ExecutionType)
	}
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.StepID == "" {
			return errors.New("step id is required")
		}
		if ids[s.StepID] {
			return fmt.Errorf("duplicate step id %q", s.StepID)
		}
		ids[s.StepID] = true
	}
	for _, s := range p.Steps {
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("step %q depends on unknown step %q", s.StepID, dep)
			}
			if dep == s.StepID {
				return fmt.Errorf("step %q depends on itself", s.StepID)
			}
		}
		if p.ExecutionType == Parallel && len(s.DependsOn) > 0 {
			return fmt.Errorf("parallel plan step %q declares dependencies", s.StepID)
		}
	}
	if hasCycle(p.Steps) {
		return ErrCycle
	}
	return nil
}

// Clone deep-copies the plan. Steps and their argument maps are copied so
// mutating the clone (skip reasons, argument injection) leaves the original
// untouched.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := &Plan{
		PlanID:        p.PlanID,
		ExecutionType: p.ExecutionType,
		Steps:         make([]*Step, len(p.Steps)),
	}
	for i, s := range p.Steps {
		c := *s
		c.DependsOn = append([]string(nil), s.DependsOn...)
		if s.Arguments != nil {
			c.Arguments = make(map[string]any, len(s.Arguments))
			for k, v := range s.Arguments {
				c.Arguments[k] = v
			}
		}
		out.Steps[i] = &c
	}
	return out
}

// Step returns the step with the given ID.
func (p *Plan) Step(id string) (*Step, bool) {
	for _, s := range p.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return nil, false
}

// ReadySteps returns the steps whose dependencies are all satisfied and that
// have not yet completed. Skipped steps count as completed and are never
// returned.
func (p *Plan) ReadySteps(completed map[string]bool) []*Step {
	done := func(id string) bool {
		if completed[id] {
			return true
		}
		if s, ok := p.Step(id); ok && s.SkipReason != "" {
			return true
		}
		return false
	}
	var ready []*Step
	for _, s := range p.Steps {
		if done(s.StepID) {
			continue
		}
		ok := true
		for _, dep := range s.DependsOn {
			if !done(dep) {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, s)
		}
	}
	return ready
}

// Complete reports whether every step has either completed or been skipped.
func (p *Plan) Complete(completed map[string]bool) bool {
	for _, s := range p.Steps {
		if s.SkipReason != "" {
			continue
		}
		if !completed[s.StepID] {
			return false
		}
	}
	return true
}

// Unmarshal decodes a serialized plan, filling in default tool call IDs for
// steps that omit one. It does not validate the result; callers run Validate
// once edits are applied.
func Unmarshal(data []byte) (*Plan, error) {
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	for _, s := range p.Steps {
		if s.ToolCallID == "" {
			s.ToolCallID = "call_" + s.StepID
		}
		if s.Arguments == nil {
			s.Arguments = map[string]any{}
		}
	}
	return &p, nil
}

// Marshal encodes the plan to JSON.
func (p *Plan) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode plan: %w", err)
	}
	return data, nil
}

// RepairCycles breaks mutual dependencies between steps using the domain
// rules: an add_contacts_to_cadence step keeps only its create_cadence
// dependencies, and a create_cadence step keeps only search and email
// dependencies. It returns true when any edge was rewritten.
func RepairCycles(p *Plan) bool {
	changed := false
	deps := make(map[string]map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		m := make(map[string]bool, len(s.DependsOn))
		for _, d := range s.DependsOn {
			m[d] = true
		}
		deps[s.StepID] = m
	}
	for _, s := range p.Steps {
		for _, other := range p.Steps {
			if s.StepID == other.StepID {
				continue
			}
			if !(deps[s.StepID][other.StepID] && deps[other.StepID][s.StepID]) {
				continue
			}
			// Mutual edge between s and other.
			if rewriteForTool(s, p) || rewriteForTool(other, p) {
				changed = true
				deps = rebuildDeps(p)
			}
		}
	}
	return changed
}

func rebuildDeps(p *Plan) map[string]map[string]bool {
	deps := make(map[string]map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		m := make(map[string]bool, len(s.DependsOn))
		for _, d := range s.DependsOn {
			m[d] = true
		}
		deps[s.StepID] = m
	}
	return deps
}

func rewriteForTool(s *Step, p *Plan) bool {
	switch s.Tool {
	case "add_contacts_to_cadence":
		var keep []string
		for _, dep := range s.DependsOn {
			if d, ok := p.Step(dep); ok && d.Tool == "create_cadence" {
				keep = append(keep, dep)
			}
		}
		if len(keep) != len(s.DependsOn) {
			s.DependsOn = keep
			return true
		}
	case "create_cadence":
		var keep []string
		for _, dep := range s.DependsOn {
			d, ok := p.Step(dep)
			if !ok {
				continue
			}
			if strings.HasPrefix(d.Tool, "search_") || d.Tool == "generate_email" {
				keep = append(keep, dep)
			}
		}
		if len(keep) != len(s.DependsOn) {
			s.DependsOn = keep
			return true
		}
	}
	return false
}

func hasCycle(steps []*Step) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	adj := make(map[string][]string, len(steps))
	for _, s := range steps {
		adj[s.StepID] = s.DependsOn
	}
	color := make(map[string]int, len(steps))
	var visit func(string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range adj[id] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}
	for _, s := range steps {
		if color[s.StepID] == white && visit(s.StepID) {
			return true
		}
	}
	return false
}
