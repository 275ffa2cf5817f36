package chatlog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/chat-moderator/internal/moderation"
)

// ErrConversationRequired is returned when an entry names no conversation.
var ErrConversationRequired = errors.New("chatlog: conversation id required")

// Entry is one handled chat message together with the moderation outcome.
type Entry struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Timestamp      time.Time          `json:"timestamp"`
	Speaker        string             `json:"user"`
	Message        string             `json:"message"`
	ViewerResponse string             `json:"ai_response"`
	Verdict        moderation.Verdict `json:"verdict"`
	Outcome        string             `json:"outcome,omitempty"`
	Cleared        bool               `json:"cleared,omitempty"`
}

// NewEntry builds an entry for a handled message, stamped now.
func NewEntry(conversationID, speaker, message string, res moderation.Result) Entry {
	return Entry{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Speaker:        speaker,
		Message:        message,
		ViewerResponse: res.ViewerResponse,
		Verdict:        res.Verdict,
		Outcome:        string(res.Verdict.Outcome),
		Cleared:        res.Cleared,
	}
}

// Store persists chat log entries. Implementations return entries oldest
// first.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListDay(ctx context.Context, conversationID string, day time.Time) ([]Entry, error)
	Recent(ctx context.Context, conversationID string, n int) ([]Entry, error)
}

func prepare(entry Entry) (Entry, error) {
	if entry.ConversationID == "" {
		return entry, ErrConversationRequired
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	return entry, nil
}

func dayKey(t time.Time) string {
	return t.UTC().Format("20060102")
}

func tail(entries []Entry, n int) []Entry {
	if n <= 0 {
		return nil
	}
	if len(entries) > n {
		return entries[len(entries)-n:]
	}
	return entries
}
