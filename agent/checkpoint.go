package agent

import (
	"errors"
	"sync"
)

// ErrMissingCheckpoint reports a resume against a thread with no saved
// state.
var ErrMissingCheckpoint = errors.New("no checkpoint for thread")

// Checkpointer stores workflow state by thread id. The thread is the
// session id until a plan exists, then the plan id.
type Checkpointer interface {
	Put(threadID string, state *State)
	Get(threadID string) (*State, error)
	Delete(threadID string)
}

// MemoryCheckpointer keeps checkpoints in process memory. Safe for
// concurrent use.
type MemoryCheckpointer struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryCheckpointer builds an empty checkpointer.
func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{states: make(map[string]*State)}
}

// Put stores a snapshot of the state under the thread id.
func (c *MemoryCheckpointer) Put(threadID string, state *State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[threadID] = state.Clone()
}

// Get returns a copy of the checkpointed state.
func (c *MemoryCheckpointer) Get(threadID string) (*State, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.states[threadID]
	if !ok {
		return nil, ErrMissingCheckpoint
	}
	return state.Clone(), nil
}

// Delete removes the checkpoint if present.
func (c *MemoryCheckpointer) Delete(threadID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, threadID)
}
