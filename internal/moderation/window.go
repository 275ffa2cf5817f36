package moderation

import "strings"

// DefaultMaxHistory is the window capacity used when none is configured.
const DefaultMaxHistory = 5

// Turn is one recorded utterance.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// Window is a fixed-capacity FIFO of recent turns. It is not safe for
// concurrent use; Session serializes access to it.
type Window struct {
	turns    []Turn
	capacity int
}

// NewWindow returns an empty window holding at most maxHistory turns.
// Non-positive values fall back to DefaultMaxHistory.
func NewWindow(maxHistory int) *Window {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Window{
		turns:    make([]Turn, 0, maxHistory),
		capacity: maxHistory,
	}
}

// Append adds turn at the tail, evicting the oldest turns on overflow.
func (w *Window) Append(turn Turn) {
	w.turns = append(w.turns, turn)
	if overflow := len(w.turns) - w.capacity; overflow > 0 {
		w.turns = append(w.turns[:0], w.turns[overflow:]...)
	}
}

// Render formats the window as "speaker: text" lines, oldest first.
func (w *Window) Render() string {
	if len(w.turns) == 0 {
		return ""
	}
	lines := make([]string, len(w.turns))
	for i, turn := range w.turns {
		lines[i] = turn.Speaker + ": " + turn.Text
	}
	return strings.Join(lines, "\n")
}

// Clear empties the window.
func (w *Window) Clear() {
	w.turns = w.turns[:0]
}

func (w *Window) Len() int { return len(w.turns) }

func (w *Window) Cap() int { return w.capacity }

// Turns returns a copy of the buffered turns, oldest first.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}
