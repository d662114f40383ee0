package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStampsTimestamp(t *testing.T) {
	e := New(EventProgress, "s-1", StepProgress{StepID: "step_1"})
	assert.Equal(t, EventProgress, e.Type)
	assert.Equal(t, "s-1", e.SessionID)
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}

func TestChannelSinkDeliversInOrder(t *testing.T) {
	s := NewChannelSink(4)
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, New(EventConnected, "s-1", nil)))
	require.NoError(t, s.Send(ctx, New(EventDone, "s-1", nil)))
	require.NoError(t, s.Close(ctx))

	var types []EventType
	for e := range s.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventConnected, EventDone}, types)
}

func TestChannelSinkSendHonorsContext(t *testing.T) {
	s := NewChannelSink(1)
	ctx := context.Background()
	require.NoError(t, s.Send(ctx, New(EventConnected, "s-1", nil)))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	err := s.Send(cancelled, New(EventDone, "s-1", nil))
	require.ErrorIs(t, err, context.Canceled)
}

type recordingSink struct {
	events []Event
	closed bool
	err    error
}

func (r *recordingSink) Send(_ context.Context, e Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close(context.Context) error {
	r.closed = true
	return nil
}

func TestMultiSinkFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := NewMultiSink(a, b)
	ctx := context.Background()

	require.NoError(t, m.Send(ctx, New(EventResult, "s-1", nil)))
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)

	require.NoError(t, m.Close(ctx))
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
