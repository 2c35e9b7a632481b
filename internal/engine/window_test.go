package engine

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

func TestConversationWindow_Bounded(t *testing.T) {
	w := NewConversationWindow(3)
	for i := 0; i < 10; i++ {
		w.Append(types.TurnUser, fmt.Sprintf("turn %d", i))
	}
	turns := w.Turns()
	if len(turns) != 3 {
		t.Fatalf("len = %d, want 3", len(turns))
	}
	if turns[0].Text != "turn 7" || turns[2].Text != "turn 9" {
		t.Errorf("oldest turns not evicted: %q ... %q", turns[0].Text, turns[2].Text)
	}
}

func TestConversationWindow_LastUserMessage(t *testing.T) {
	w := NewConversationWindow(5)
	if got := w.LastUserMessage(); got != "" {
		t.Errorf("empty window LastUserMessage = %q, want \"\"", got)
	}
	w.Append(types.TurnUser, "first question")
	w.Append(types.TurnAssistant, "first answer")
	if got := w.LastUserMessage(); got != "first question" {
		t.Errorf("LastUserMessage = %q, want %q", got, "first question")
	}
	w.Append(types.TurnUser, "second question")
	if got := w.LastUserMessage(); got != "second question" {
		t.Errorf("LastUserMessage = %q, want %q", got, "second question")
	}
}

func TestConversationWindow_TurnsReturnsCopy(t *testing.T) {
	w := NewConversationWindow(5)
	w.Append(types.TurnUser, "original")
	turns := w.Turns()
	turns[0].Text = "mutated"
	if w.Turns()[0].Text != "original" {
		t.Error("Turns() leaks internal buffer")
	}
}

func TestConversationWindow_ConcurrentAppends(t *testing.T) {
	w := NewConversationWindow(8)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w.Append(types.TurnUser, fmt.Sprintf("turn %d", n))
		}(i)
	}
	wg.Wait()
	if w.Len() != 8 {
		t.Errorf("Len = %d, want 8", w.Len())
	}
}
