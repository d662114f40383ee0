package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salesflow/agent/convo"
	"github.com/salesflow/agent/store"
	"github.com/salesflow/agent/stream"
)

type fakeAgent struct {
	events []stream.Event
	err    error
	gotMsg string
	gotUID string
	gotSID string
}

func (f *fakeAgent) Chat(ctx context.Context, userID, sessionID, message string, sink stream.Sink) error {
	f.gotUID, f.gotSID, f.gotMsg = userID, sessionID, message
	for _, e := range f.events {
		e.SessionID = sessionID
		if err := sink.Send(ctx, e); err != nil {
			return err
		}
	}
	return f.err
}

type fakeSessions struct {
	sessions  map[string]*convo.Session
	summaries []store.SessionSummary
	deleteErr error
}

func (f *fakeSessions) Load(_ context.Context, _, sessionID string) (*convo.Session, error) {
	if s, ok := f.sessions[sessionID]; ok {
		return s, nil
	}
	return &convo.Session{SessionID: sessionID, Title: convo.DefaultTitle}, nil
}

func (f *fakeSessions) Delete(context.Context, string, string) error { return f.deleteErr }

func (f *fakeSessions) List(context.Context, string) ([]store.SessionSummary, error) {
	return f.summaries, nil
}

type fakePinger struct {
	name string
	err  error
}

func (p *fakePinger) Name() string               { return p.name }
func (p *fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, agent ChatAgent, sessions SessionStore, pingers ...Pinger) *httptest.Server {
	t.Helper()
	s, err := New(Options{
		Agent:         agent,
		Sessions:      sessions,
		DefaultUserID: "u-default",
		Pingers:       pingers,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{})
	status, body := getJSON(t, ts.URL+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{},
		&fakePinger{name: "mongo"},
		&fakePinger{name: "redis", err: errors.New("connection refused")},
	)
	status, body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "unhealthy", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "healthy", deps["mongo"])
	assert.Contains(t, deps["redis"], "connection refused")
}

func TestHealthAllUp(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{}, &fakePinger{name: "mongo"})
	status, body := getJSON(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestListSessions(t *testing.T) {
	sessions := &fakeSessions{summaries: []store.SessionSummary{
		{SessionID: "s-1", Title: "Lead hunt", MessageCount: 4, LastUpdated: time.Now()},
		{SessionID: "s-2", Title: convo.DefaultTitle, MessageCount: 1, LastUpdated: time.Now()},
	}}
	ts := newTestServer(t, &fakeAgent{}, sessions)
	status, body := getJSON(t, ts.URL+"/sessions")
	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["total_count"])
	assert.Len(t, body["sessions"], 2)
}

func TestSessionSummary(t *testing.T) {
	sessions := &fakeSessions{sessions: map[string]*convo.Session{
		"s-1": {
			SessionID: "s-1",
			Title:     "Lead hunt",
			Messages:  []convo.Message{{Role: convo.RoleUser, Content: "hi"}},
		},
	}}
	ts := newTestServer(t, &fakeAgent{}, sessions)
	status, body := getJSON(t, ts.URL+"/sessions/s-1/summary")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["exists"])
	assert.Equal(t, "Lead hunt", body["title"])
	assert.EqualValues(t, 1, body["message_count"])
}

func TestDeleteSessionNotFound(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{deleteErr: store.ErrNotFound})
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/session/s-404", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{})
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/session/s-1", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// sseEvents parses an SSE body into (event type, decoded envelope) pairs.
func sseEvents(t *testing.T, body string) []stream.Event {
	t.Helper()
	var events []stream.Event
	for _, block := range strings.Split(body, "\n\n") {
		var e stream.Event
		for _, line := range strings.Split(block, "\n") {
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				require.NoError(t, json.Unmarshal([]byte(data), &e))
				events = append(events, e)
			}
		}
	}
	return events
}

func postChat(t *testing.T, url string, req chatRequest) (int, string) {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	resp, err := http.Post(url+"/chat", "application/json", strings.NewReader(string(payload)))
	require.NoError(t, err)
	defer resp.Body.Close()
	var b strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		b.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return resp.StatusCode, b.String()
}

func TestChatStreamsEvents(t *testing.T) {
	agent := &fakeAgent{events: []stream.Event{
		stream.New(stream.EventConnected, "", map[string]any{"message": "Connected to workflow"}),
		stream.New(stream.EventResult, "", map[string]any{"type": "text_response", "message": "hello"}),
		stream.New(stream.EventDone, "", nil),
	}}
	ts := newTestServer(t, agent, &fakeSessions{})

	status, body := postChat(t, ts.URL, chatRequest{Message: "hi", SessionID: "s-1", UserID: "u-9"})
	require.Equal(t, http.StatusOK, status)

	events := sseEvents(t, body)
	require.Len(t, events, 3)
	assert.Equal(t, stream.EventConnected, events[0].Type)
	assert.Equal(t, stream.EventResult, events[1].Type)
	assert.Equal(t, stream.EventDone, events[2].Type)
	assert.Equal(t, "s-1", events[0].SessionID)
	assert.Equal(t, "u-9", agent.gotUID)
	assert.Equal(t, "hi", agent.gotMsg)
	assert.Contains(t, body, "event: connected")
}

func TestChatGeneratesSessionID(t *testing.T) {
	agent := &fakeAgent{events: []stream.Event{stream.New(stream.EventDone, "", nil)}}
	ts := newTestServer(t, agent, &fakeSessions{})

	status, body := postChat(t, ts.URL, chatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, status)
	events := sseEvents(t, body)
	require.NotEmpty(t, events)
	assert.NotEmpty(t, events[0].SessionID)
	assert.Equal(t, "u-default", agent.gotUID)
}

func TestChatRequiresMessage(t *testing.T) {
	ts := newTestServer(t, &fakeAgent{}, &fakeSessions{})
	status, _ := postChat(t, ts.URL, chatRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChatFailureEmitsErrorEvent(t *testing.T) {
	agent := &fakeAgent{
		events: []stream.Event{stream.New(stream.EventConnected, "", nil)},
		err:    errors.New("store unavailable"),
	}
	ts := newTestServer(t, agent, &fakeSessions{})

	status, body := postChat(t, ts.URL, chatRequest{Message: "hi", SessionID: "s-1"})
	require.Equal(t, http.StatusOK, status, "failures after the stream opens surface as events")

	events := sseEvents(t, body)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, stream.EventError, last.Type)
	payload := last.Payload.(map[string]any)
	assert.Contains(t, payload["message"], "store unavailable")
}
