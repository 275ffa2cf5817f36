package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/chat-moderator/internal/chatlog"
	"github.com/wolfman30/chat-moderator/internal/moderation"
	"github.com/wolfman30/chat-moderator/pkg/logging"
)

// ErrMissingFields is returned when a message has no speaker or text.
var ErrMissingFields = errors.New("conversation: missing required fields")

// Moderator classifies messages within a conversation's context.
type Moderator interface {
	Handle(ctx context.Context, conversationID, speaker, message string) moderation.Result
	Reset(ctx context.Context, conversationID string)
}

// Recorder persists handled messages without blocking.
type Recorder interface {
	Record(entry chatlog.Entry) bool
}

// Notifier raises alerts for anomalous verdicts.
type Notifier interface {
	Notify(conversationID, speaker, message string, v moderation.Verdict) bool
}

// Broadcaster pushes results to the viewers of a conversation.
type Broadcaster interface {
	Broadcast(conversationID, speaker, message string, res moderation.Result)
}

// Service ties moderation to the chat log, alerting and the live room feed.
type Service struct {
	moderator   Moderator
	recorder    Recorder
	notifier    Notifier
	broadcaster Broadcaster
	logger      *logging.Logger
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(moderator Moderator, opts ...Option) *Service {
	if moderator == nil {
		panic("conversation: moderator cannot be nil")
	}
	s := &Service{moderator: moderator, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit handles one chat message and fans the result out to the log,
// alerting and connected viewers.
func (s *Service) Submit(ctx context.Context, conversationID, speaker, message string) (moderation.Result, error) {
	speaker = strings.TrimSpace(speaker)
	if speaker == "" || strings.TrimSpace(message) == "" {
		return moderation.Result{}, ErrMissingFields
	}
	conversationID = moderation.NormalizeConversationID(conversationID)

	res := s.moderator.Handle(ctx, conversationID, speaker, message)
	s.logger.WithConversation(conversationID).Info("message moderated",
		"speaker", speaker,
		"is_anomaly", res.Verdict.IsAnomaly,
		"outcome", res.Verdict.Outcome,
		"cleared", res.Cleared,
	)

	s.publish(conversationID, speaker, message, res)
	return res, nil
}

// Reset clears a conversation's context on behalf of an operator.
func (s *Service) Reset(ctx context.Context, conversationID, requestedBy string) moderation.Result {
	conversationID = moderation.NormalizeConversationID(conversationID)
	if strings.TrimSpace(requestedBy) == "" {
		requestedBy = "admin"
	}
	s.moderator.Reset(ctx, conversationID)
	res := moderation.Result{
		ViewerResponse: moderation.ClearedAcknowledgement,
		Verdict:        moderation.ClearedVerdict(),
		Cleared:        true,
	}
	s.logger.WithConversation(conversationID).Info("conversation context reset", "requested_by", requestedBy)
	s.publish(conversationID, requestedBy, moderation.ControlClear, res)
	return res
}

func (s *Service) publish(conversationID, speaker, message string, res moderation.Result) {
	if s.recorder != nil {
		s.recorder.Record(chatlog.NewEntry(conversationID, speaker, message, res))
	}
	if s.notifier != nil {
		s.notifier.Notify(conversationID, speaker, message, res.Verdict)
	}
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(conversationID, speaker, message, res)
	}
}
