package chatlog

import "github.com/wolfman30/chat-moderator/internal/moderation"

const historyTimeLayout = "2006-01-02 15:04:05"

// HistoryMessage is one bubble in the chat history replay.
type HistoryMessage struct {
	ID         string              `json:"id"`
	Content    string              `json:"content"`
	Sender     string              `json:"sender"`
	Timestamp  string              `json:"timestamp"`
	AIResponse *moderation.Verdict `json:"ai_response,omitempty"`
}

// History expands entries into alternating speaker and assistant messages.
// Entries without a viewer response produce only the speaker message.
// Message IDs derive from the entry ID; entries written without one fall
// back to their timestamp.
func History(entries []Entry, assistantName string) []HistoryMessage {
	messages := make([]HistoryMessage, 0, len(entries)*2)
	for _, e := range entries {
		ts := e.Timestamp.Format(historyTimeLayout)
		key := e.ID
		if key == "" {
			key = ts
		}
		messages = append(messages, HistoryMessage{
			ID:        key + "_user",
			Content:   e.Message,
			Sender:    e.Speaker,
			Timestamp: ts,
		})
		if e.ViewerResponse == "" {
			continue
		}
		verdict := e.Verdict
		messages = append(messages, HistoryMessage{
			ID:         key + "_ai",
			Content:    e.ViewerResponse,
			Sender:     assistantName,
			Timestamp:  ts,
			AIResponse: &verdict,
		})
	}
	return messages
}
