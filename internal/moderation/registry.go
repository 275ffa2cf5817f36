package moderation

import (
	"context"
	"strings"
	"sync"

	"github.com/wolfman30/chat-moderator/internal/observability/metrics"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// DefaultConversationID is used when a request names no conversation.
const DefaultConversationID = "default"

// Hydrator restores recent turns for a conversation, oldest first.
type Hydrator interface {
	RecentTurns(ctx context.Context, conversationID string, n int) ([]Turn, error)
}

// Registry holds one Session per conversation so simultaneous chats never
// share context.
type Registry struct {
	oracle     Classifier
	maxHistory int
	hydrator   Hydrator
	logger     *logging.Logger
	metrics    *metrics.ModerationMetrics

	mu       sync.Mutex
	sessions map[string]*Session
}

type RegistryOption func(*Registry)

// WithHydrator replays persisted turns into a conversation's window the
// first time it is used after a restart.
func WithHydrator(h Hydrator) RegistryOption {
	return func(r *Registry) { r.hydrator = h }
}

func WithRegistryLogger(logger *logging.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRegistryMetrics(m *metrics.ModerationMetrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

func NewRegistry(oracle Classifier, maxHistory int, opts ...RegistryOption) *Registry {
	if oracle == nil {
		panic("moderation: registry requires a classifier")
	}
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	r := &Registry{
		oracle:     oracle,
		maxHistory: maxHistory,
		logger:     logging.Default(),
		sessions:   make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Session returns the conversation's session, creating and hydrating it on
// first use. Concurrent callers for the same new conversation wait for
// hydration to finish before they can handle messages.
func (r *Registry) Session(ctx context.Context, conversationID string) *Session {
	conversationID = NormalizeConversationID(conversationID)

	r.mu.Lock()
	if s, ok := r.sessions[conversationID]; ok {
		r.mu.Unlock()
		return s
	}
	s := NewSession(NewWindow(r.maxHistory), r.oracle)
	s.mu.Lock()
	r.sessions[conversationID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetActiveSessions(count)
	defer s.mu.Unlock()
	if r.hydrator == nil {
		return s
	}
	turns, err := r.hydrator.RecentTurns(ctx, conversationID, r.maxHistory)
	if err != nil {
		r.logger.Warn("failed to hydrate conversation window", "conversation_id", conversationID, "error", err)
		return s
	}
	for _, t := range turns {
		s.window.Append(t)
	}
	if len(turns) > 0 {
		r.logger.Info("conversation window hydrated", "conversation_id", conversationID, "turns", s.window.Len())
	}
	return s
}

// Handle routes one message to its conversation's session.
func (r *Registry) Handle(ctx context.Context, conversationID, speaker, message string) Result {
	return r.Session(ctx, conversationID).Handle(ctx, speaker, message)
}

// Reset clears a conversation's window.
func (r *Registry) Reset(ctx context.Context, conversationID string) {
	r.Session(ctx, conversationID).Reset()
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// NormalizeConversationID trims id and substitutes the default conversation
// when it is blank.
func NormalizeConversationID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultConversationID
	}
	return id
}
