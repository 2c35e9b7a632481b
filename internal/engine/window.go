package engine

import (
	"sync"
	"time"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

// ConversationWindow is a bounded in-memory buffer of recent turns.
// Raw transcripts are never persisted; the window only feeds the
// assembled context and the observer's turn pairs.
type ConversationWindow struct {
	mu    sync.Mutex
	turns []types.ConversationTurn
	max   int
}

// NewConversationWindow creates a window holding at most max turns.
func NewConversationWindow(max int) *ConversationWindow {
	if max < 1 {
		max = 10
	}
	return &ConversationWindow{max: max}
}

// Append records a turn, evicting the oldest when full.
func (w *ConversationWindow) Append(role, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.turns = append(w.turns, types.ConversationTurn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now(),
	})
	if len(w.turns) > w.max {
		w.turns = w.turns[len(w.turns)-w.max:]
	}
}

// Turns returns a copy of the buffered turns, oldest first.
func (w *ConversationWindow) Turns() []types.ConversationTurn {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]types.ConversationTurn, len(w.turns))
	copy(out, w.turns)
	return out
}

// LastUserMessage returns the text of the most recent user turn, or ""
// when the window holds none.
func (w *ConversationWindow) LastUserMessage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.turns) - 1; i >= 0; i-- {
		if w.turns[i].Role == types.TurnUser {
			return w.turns[i].Text
		}
	}
	return ""
}

// Len returns the number of buffered turns.
func (w *ConversationWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.turns)
}
