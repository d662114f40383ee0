package stream

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	events   []string
	payloads [][]byte
	err      error
}

func (f *fakePublisher) Add(_ context.Context, event string, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return "1-0", nil
}

func newFakePulseSink(t *testing.T, pubs map[string]*fakePublisher) *PulseSink {
	t.Helper()
	s, err := NewPulseSink(PulseOptions{
		open: func(name string) (publisher, error) {
			p, ok := pubs[name]
			if !ok {
				return nil, errors.New("unexpected stream " + name)
			}
			return p, nil
		},
	})
	require.NoError(t, err)
	return s
}

func TestPulseSinkRequiresRedis(t *testing.T) {
	_, err := NewPulseSink(PulseOptions{})
	require.Error(t, err)
}

func TestPulseSinkPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	s := newFakePulseSink(t, map[string]*fakePublisher{"session/s-1": pub})

	e := New(EventProgress, "s-1", StepProgress{StepID: "step_1", ToolName: "search_leads", Status: "completed"})
	require.NoError(t, s.Send(context.Background(), e))

	require.Len(t, pub.events, 1)
	assert.Equal(t, "progress", pub.events[0])

	var decoded Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, EventProgress, decoded.Type)
	assert.Equal(t, "s-1", decoded.SessionID)
}

func TestPulseSinkCachesHandles(t *testing.T) {
	opened := 0
	s, err := NewPulseSink(PulseOptions{
		open: func(string) (publisher, error) {
			opened++
			return &fakePublisher{}, nil
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, New(EventConnected, "s-1", nil)))
	require.NoError(t, s.Send(ctx, New(EventDone, "s-1", nil)))
	assert.Equal(t, 1, opened)

	require.NoError(t, s.Send(ctx, New(EventConnected, "s-2", nil)))
	assert.Equal(t, 2, opened)
}

func TestPulseSinkMissingSessionID(t *testing.T) {
	s := newFakePulseSink(t, nil)
	err := s.Send(context.Background(), Event{Type: EventDone})
	require.Error(t, err)
}

func TestPulseSinkPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("redis down")}
	s := newFakePulseSink(t, map[string]*fakePublisher{"session/s-1": pub})

	err := s.Send(context.Background(), New(EventDone, "s-1", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pulse add")
}
