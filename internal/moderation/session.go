package moderation

import (
	"context"
	"strings"
	"sync"
)

// ControlClear is the chat message that resets a conversation's context.
const ControlClear = "clear"

// IsControlToken reports whether message is the reset command, ignoring
// case and surrounding whitespace.
func IsControlToken(message string) bool {
	return strings.EqualFold(strings.TrimSpace(message), ControlClear)
}

// Result is the outcome of handling one chat message.
type Result struct {
	// ViewerResponse is the reply resolved for the speaker.
	ViewerResponse string
	Verdict        Verdict
	// History is the context that was sent to the classifier.
	History string
	Cleared bool
}

// Session owns one conversation's window. Handle calls are serialized so
// the window never changes while a classification that read it is running.
type Session struct {
	mu     sync.Mutex
	window *Window
	oracle Classifier
}

func NewSession(window *Window, oracle Classifier) *Session {
	if window == nil {
		window = NewWindow(DefaultMaxHistory)
	}
	if oracle == nil {
		panic("moderation: session requires a classifier")
	}
	return &Session{window: window, oracle: oracle}
}

// Handle classifies message against the turns that preceded it, then
// records it for later calls. The control token clears the window without
// consulting the classifier.
func (s *Session) Handle(ctx context.Context, speaker, message string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if IsControlToken(message) {
		s.window.Clear()
		return Result{
			ViewerResponse: ClearedAcknowledgement,
			Verdict:        ClearedVerdict(),
			Cleared:        true,
		}
	}

	history := s.window.Render()
	s.window.Append(Turn{Speaker: speaker, Text: message})

	verdict := s.oracle.Classify(ctx, history, message)
	return Result{
		ViewerResponse: Select(verdict, speaker),
		Verdict:        verdict,
		History:        history,
	}
}

// Seed replaces the window contents with turns, oldest first. Only the last
// Cap() turns are kept.
func (s *Session) Seed(turns []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Clear()
	for _, t := range turns {
		s.window.Append(t)
	}
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.Clear()
}

// Snapshot returns the buffered turns, oldest first.
func (s *Session) Snapshot() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window.Turns()
}
