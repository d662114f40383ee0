package agent

import (
	"maps"
	"slices"

	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/plan"
)

// State is the workflow state carried across nodes and checkpointed at the
// plan review interrupt.
type State struct {
	SessionID   string
	UserID      string
	Title       string
	Model       string
	Messages    []convo.Message
	ToolOutputs []convo.ToolOutput
	Plan        *plan.Plan
	// Completed holds step ids finished in this run; skipped steps count.
	Completed map[string]bool
	// StepResults maps step id to the raw tool result.
	StepResults map[string]map[string]any
}

// Clone deep-copies the state so a checkpoint is isolated from later
// mutation. The plan is cloned too: execution marks skipped steps on it.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := &State{
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		Title:       s.Title,
		Model:       s.Model,
		Messages:    slices.Clone(s.Messages),
		ToolOutputs: slices.Clone(s.ToolOutputs),
		Plan:        s.Plan.Clone(),
		Completed:   maps.Clone(s.Completed),
		StepResults: make(map[string]map[string]any, len(s.StepResults)),
	}
	for id, res := range s.StepResults {
		out.StepResults[id] = maps.Clone(res)
	}
	return out
}

// session converts the state back into a persistable session document.
func (s *State) session() *convo.Session {
	return &convo.Session{
		SessionID:   s.SessionID,
		UserID:      s.UserID,
		Title:       s.Title,
		Model:       s.Model,
		Messages:    s.Messages,
		ToolOutputs: s.ToolOutputs,
	}
}
