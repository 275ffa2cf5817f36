package chatlog

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

const (
	defaultRecorderBuffer = 256
	defaultWriteTimeout   = 5 * time.Second
)

// Recorder writes entries to a Store from a single background worker so
// request handlers never wait on log I/O.
type Recorder struct {
	store   Store
	backend string
	logger  *logging.Logger
	metrics *metrics.ModerationMetrics
	timeout time.Duration

	entries chan Entry
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

type RecorderOption func(*Recorder)

func WithRecorderLogger(logger *logging.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRecorderMetrics(m *metrics.ModerationMetrics) RecorderOption {
	return func(r *Recorder) { r.metrics = m }
}

// WithBackendName labels failure metrics for the wrapped store.
func WithBackendName(name string) RecorderOption {
	return func(r *Recorder) {
		if name != "" {
			r.backend = name
		}
	}
}

func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder starts the worker. buffer <= 0 uses the default capacity.
func NewRecorder(store Store, buffer int, opts ...RecorderOption) *Recorder {
	if store == nil {
		panic("chatlog: recorder requires a store")
	}
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	r := &Recorder{
		store:   store,
		backend: "unknown",
		logger:  logging.Default(),
		timeout: defaultWriteTimeout,
		entries: make(chan Entry, buffer),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.run()
	return r
}

// Record queues an entry. It reports false when the entry was dropped
// because the buffer is full or the recorder is closed.
func (r *Recorder) Record(entry Entry) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.entries <- entry:
		return true
	default:
		r.metrics.ObserveChatlogDropped()
		r.logger.Warn("chat log buffer full, entry dropped",
			"conversation_id", entry.ConversationID,
			"backend", r.backend,
		)
		return false
	}
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to expire.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		err := r.store.Append(ctx, entry)
		cancel()
		if err != nil {
			r.metrics.ObserveChatlogFailure(r.backend)
			r.logger.Error("failed to write chat log entry",
				"conversation_id", entry.ConversationID,
				"backend", r.backend,
				"error", err,
			)
		}
	}
}
