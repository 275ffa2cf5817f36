package alerts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/chat-moderator/internal/moderation"
)

// EventTypeFlagged identifies alerts raised for anomalous messages.
const EventTypeFlagged = "moderation.flagged.v1"

// selfHarmIndicators are matched against the verdict reason and the message.
var selfHarmIndicators = []string{
	"自残", "自杀", "自伤", "轻生", "不想活", "伤害自己",
	"self-harm", "self harm", "suicide", "suicidal", "kill myself", "hurt myself",
}

// Event is the payload published for a flagged message.
type Event struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	Speaker        string    `json:"speaker"`
	Message        string    `json:"message"`
	Reason         string    `json:"reason"`
	Attacker       string    `json:"attacker,omitempty"`
	Victim         string    `json:"victim,omitempty"`
	SelfHarm       bool      `json:"self_harm"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewFlaggedEvent builds the alert for an anomalous verdict. ok is false
// when the verdict is not anomalous.
func NewFlaggedEvent(conversationID, speaker, message string, v moderation.Verdict) (Event, bool) {
	if !v.IsAnomaly {
		return Event{}, false
	}
	return Event{
		ID:             uuid.NewString(),
		Type:           EventTypeFlagged,
		ConversationID: conversationID,
		Speaker:        speaker,
		Message:        message,
		Reason:         v.Reason,
		Attacker:       v.Analysis.Attacker,
		Victim:         v.Analysis.Victim,
		SelfHarm:       IndicatesSelfHarm(v.Reason) || IndicatesSelfHarm(message),
		OccurredAt:     time.Now().UTC(),
	}, true
}

// IndicatesSelfHarm reports whether text mentions a self-harm indicator.
func IndicatesSelfHarm(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range selfHarmIndicators {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
