// Package stream carries workflow progress events from the orchestrator to
// clients. Events flow through a Sink; the channel sink feeds an SSE
// response directly and the pulse sink publishes to Redis streams so other
// processes can subscribe.
package stream

import (
	"context"
	"time"
)

// EventType identifies a progress event kind.
type EventType string

// Event types emitted during a workflow run.
const (
	EventConnected   EventType = "connected"
	EventTitleUpdate EventType = "title_update_triggered"
	EventPlanReview  EventType = "plan_review"
	EventProgress    EventType = "progress"
	EventResult      EventType = "result"
	EventDone        EventType = "done"
	EventError       EventType = "error"
)

type (
	// Event is one progress notification scoped to a session.
	Event struct {
		Type      EventType `json:"type"`
		SessionID string    `json:"session_id"`
		Timestamp time.Time `json:"timestamp"`
		Payload   any       `json:"payload,omitempty"`
	}

	// Sink receives events. Implementations must be safe for concurrent
	// Send calls.
	Sink interface {
		Send(ctx context.Context, event Event) error
		Close(ctx context.Context) error
	}
)

// New builds an event stamped with the current time.
func New(typ EventType, sessionID string, payload any) Event {
	return Event{
		Type:      typ,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// StepProgress is the payload of EventProgress. Node names the workflow node
// reporting progress and Message is a human-readable status line.
type StepProgress struct {
	Node        string         `json:"node"`
	StepID      string         `json:"step_id"`
	ToolName    string         `json:"tool_name"`
	Status      string         `json:"status"`
	Message     string         `json:"message"`
	Description string         `json:"description,omitempty"`
	Summary     map[string]any `json:"result_summary,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// ChannelSink delivers events to an in-process channel, typically drained by
// an SSE writer.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Send delivers the event, blocking until there is buffer space or the
// context ends.
func (s *ChannelSink) Send(ctx context.Context, event Event) error {
	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the channel. Send must not be called after Close.
func (s *ChannelSink) Close(context.Context) error {
	close(s.ch)
	return nil
}

// MultiSink fans events out to several sinks. The first error stops the fan
// out.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Send forwards the event to every sink in order.
func (s *MultiSink) Send(ctx context.Context, event Event) error {
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, returning the first error.
func (s *MultiSink) Close(ctx context.Context) error {
	var first error
	for _, sink := range s.sinks {
		if err := sink.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
