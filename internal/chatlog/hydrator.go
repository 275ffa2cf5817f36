package chatlog

import (
	"context"

	"github.com/wolfman30/chat-moderator/internal/moderation"
)

// Hydrator rebuilds moderation windows from persisted entries.
type Hydrator struct {
	store Store
}

func NewHydrator(store Store) *Hydrator {
	return &Hydrator{store: store}
}

// RecentTurns returns up to n turns that followed the most recent clear.
func (h *Hydrator) RecentTurns(ctx context.Context, conversationID string, n int) ([]moderation.Turn, error) {
	if h == nil || h.store == nil || n <= 0 {
		return nil, nil
	}
	entries, err := h.store.Recent(ctx, conversationID, n)
	if err != nil {
		return nil, err
	}
	return TurnsSinceClear(entries), nil
}

// TurnsSinceClear converts entries to window turns, dropping everything up
// to and including the last cleared entry.
func TurnsSinceClear(entries []Entry) []moderation.Turn {
	start := 0
	for i, e := range entries {
		if e.Cleared || moderation.IsControlToken(e.Message) {
			start = i + 1
		}
	}
	turns := make([]moderation.Turn, 0, len(entries)-start)
	for _, e := range entries[start:] {
		turns = append(turns, moderation.Turn{Speaker: e.Speaker, Text: e.Message})
	}
	return turns
}
