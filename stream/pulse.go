package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

type (
	// PulseOptions configures the Pulse sink.
	PulseOptions struct {
		// Redis backs the Pulse streams. Required.
		Redis *redis.Client
		// StreamMaxLen bounds entries kept per stream. Zero uses Pulse
		// defaults.
		StreamMaxLen int
		// OperationTimeout bounds individual publish operations. Zero means
		// no timeout.
		OperationTimeout time.Duration
		// StreamID derives the target stream from an event. Defaults to
		// `session/<SessionID>`.
		StreamID func(Event) (string, error)
		// Marshal overrides envelope serialization, primarily for tests.
		Marshal func(Event) ([]byte, error)

		// open overrides stream creation in tests.
		open func(name string) (publisher, error)
	}

	// PulseSink publishes events to per-session Pulse streams over Redis.
	// Safe for concurrent Send calls.
	PulseSink struct {
		streamID func(Event) (string, error)
		marshal  func(Event) ([]byte, error)
		open     func(name string) (publisher, error)
		timeout  time.Duration

		mu      sync.Mutex
		handles map[string]publisher
	}

	publisher interface {
		Add(ctx context.Context, event string, payload []byte) (string, error)
	}

	// pulseStream narrows the variadic pulse API to the publisher interface.
	pulseStream struct {
		stream *streaming.Stream
	}
)

func (p pulseStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return p.stream.Add(ctx, event, payload)
}

// NewPulseSink constructs a Pulse-backed sink.
func NewPulseSink(opts PulseOptions) (*PulseSink, error) {
	if opts.Redis == nil && opts.open == nil {
		return nil, errors.New("redis client is required")
	}
	s := &PulseSink{
		streamID: opts.StreamID,
		marshal:  opts.Marshal,
		open:     opts.open,
		timeout:  opts.OperationTimeout,
		handles:  make(map[string]publisher),
	}
	if s.streamID == nil {
		s.streamID = defaultStreamID
	}
	if s.marshal == nil {
		s.marshal = func(e Event) ([]byte, error) { return json.Marshal(e) }
	}
	if s.open == nil {
		s.open = func(name string) (publisher, error) {
			var streamOptions []streamopts.Stream
			if opts.StreamMaxLen > 0 {
				streamOptions = append(streamOptions, streamopts.WithStreamMaxLen(opts.StreamMaxLen))
			}
			str, err := streaming.NewStream(name, opts.Redis, streamOptions...)
			if err != nil {
				return nil, fmt.Errorf("create pulse stream: %w", err)
			}
			return pulseStream{stream: str}, nil
		}
	}
	return s, nil
}

// Send publishes the event to its session stream.
func (s *PulseSink) Send(ctx context.Context, event Event) error {
	name, err := s.streamID(event)
	if err != nil {
		return err
	}
	handle, err := s.handle(name)
	if err != nil {
		return err
	}
	payload, err := s.marshal(event)
	if err != nil {
		return err
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if _, err := handle.Add(ctx, string(event.Type), payload); err != nil {
		return fmt.Errorf("pulse add: %w", err)
	}
	return nil
}

// Close drops the cached stream handles. The caller owns the Redis
// connection.
func (s *PulseSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handles = make(map[string]publisher)
	return nil
}

func (s *PulseSink) handle(name string) (publisher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[name]; ok {
		return h, nil
	}
	h, err := s.open(name)
	if err != nil {
		return nil, err
	}
	s.handles[name] = h
	return h, nil
}

func defaultStreamID(event Event) (string, error) {
	if event.SessionID == "" {
		return "", errors.New("stream event missing session id")
	}
	return "session/" + event.SessionID, nil
}
