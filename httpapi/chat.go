package httpapi

import (
	"encoding/json"
	"net/http"

	"goa.design/clue/log"

	"github.com/salesflow/agent/stream"
)

// chatRequest is the POST /chat body. A missing session id starts a new
// conversation.
type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// handleChat runs one workflow turn and streams its events as SSE. The
// response stays open until the workflow emits done or error, or the client
// disconnects.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Message == "" {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "message is required"})
		return
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	userID := req.UserID
	if userID == "" {
		userID = s.resolveUser(r)
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming not supported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	sink := stream.NewChannelSink(16)
	errc := make(chan error, 1)
	go func() {
		errc <- s.agent.Chat(ctx, userID, sessionID, req.Message, sink)
	}()

	for {
		select {
		case event := <-sink.Events():
			if err := writeSSE(w, flusher, event); err != nil {
				log.Printf(ctx, "sse write failed for session %s: %v", sessionID, err)
				return
			}
			if event.Type == stream.EventDone || event.Type == stream.EventError {
				return
			}
		case err := <-errc:
			if err != nil {
				log.Printf(ctx, "chat failed for session %s: %v", sessionID, err)
				drainAndClose(w, flusher, sink, sessionID, err)
				return
			}
			// Drain anything still buffered once the turn returns cleanly.
			for {
				select {
				case event := <-sink.Events():
					if writeSSE(w, flusher, event) != nil {
						return
					}
				default:
					return
				}
			}
		case <-ctx.Done():
			log.Printf(ctx, "client disconnected from session %s", sessionID)
			return
		}
	}
}

// drainAndClose flushes buffered events, then reports the failure as a final
// error event when the workflow did not already emit one.
func drainAndClose(w http.ResponseWriter, flusher http.Flusher, sink *stream.ChannelSink, sessionID string, err error) {
	sawError := false
	for {
		select {
		case event := <-sink.Events():
			if event.Type == stream.EventError {
				sawError = true
			}
			if writeSSE(w, flusher, event) != nil {
				return
			}
		default:
			if !sawError {
				_ = writeSSE(w, flusher, stream.New(stream.EventError, sessionID, map[string]any{
					"message": err.Error(),
				}))
			}
			return
		}
	}
}

// writeSSE frames one event as Server-Sent Events: the event type on the
// event line, the JSON envelope on the data line.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event stream.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + string(event.Type) + "\ndata: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
