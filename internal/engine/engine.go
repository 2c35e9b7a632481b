package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// Config aggregates the engine's tunables.
type Config struct {
	Assembler   AssemblerConfig
	Observer    ObserverConfig
	WindowTurns int // recent-turn buffer size (default 10)
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Assembler:   DefaultAssemblerConfig(),
		Observer:    DefaultObserverConfig(),
		WindowTurns: 10,
	}
}

// Engine is the top-level memory orchestrator for one conversation
// session: it assembles context before each reply and observes each
// completed turn in the background.
type Engine struct {
	store     store.FactStore
	window    *ConversationWindow
	assembler *Assembler
	observer  *Observer

	conversationID string
	turnIndex      atomic.Int64
}

// New wires an engine from a fact store and the external model
// clients. The reranker may be nil.
func New(facts store.FactStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, reranker llm.Reranker, cfg Config) (*Engine, error) {
	if facts == nil {
		return nil, fmt.Errorf("fact store is required")
	}
	if generator == nil || embedder == nil {
		return nil, fmt.Errorf("text and embedding generators are required")
	}
	if cfg.WindowTurns <= 0 {
		cfg.WindowTurns = 10
	}

	assembler, err := NewAssembler(facts, facts, embedder, reranker, cfg.Assembler)
	if err != nil {
		return nil, err
	}
	resolver := NewTwoStageResolver(NewLLMResolver(generator, cfg.Observer.Retry))
	observer := NewObserver(generator, embedder, resolver, facts, facts, cfg.Observer)

	return &Engine{
		store:          facts,
		window:         NewConversationWindow(cfg.WindowTurns),
		assembler:      assembler,
		observer:       observer,
		conversationID: uuid.NewString(),
	}, nil
}

// AssembleContext returns the formatted context for the next reply:
// recent turns followed by the most relevant remembered facts.
func (e *Engine) AssembleContext(ctx context.Context, query string) (string, error) {
	return e.assembler.Assemble(ctx, query, e.window.Turns())
}

// Retrieve returns the scored memory items for a query without the
// conversational framing.
func (e *Engine) Retrieve(ctx context.Context, query string) ([]ContextItem, error) {
	return e.assembler.Retrieve(ctx, query, e.window.LastUserMessage())
}

// RecordTurn appends a completed turn pair to the window and submits
// it for background observation. The returned handle may be waited on
// but the conversational path never blocks on it.
func (e *Engine) RecordTurn(userText, assistantText string) (*ObserverTask, error) {
	e.window.Append(types.TurnUser, userText)
	e.window.Append(types.TurnAssistant, assistantText)
	idx := int(e.turnIndex.Add(1)) - 1
	return e.observer.Observe(e.conversationID, idx, userText, assistantText)
}

// Outstanding reports in-flight observer tasks.
func (e *Engine) Outstanding() int {
	return e.observer.Outstanding()
}

// Shutdown joins outstanding observer work. The fact store is owned by
// the caller and is not closed here.
func (e *Engine) Shutdown() error {
	return e.observer.Shutdown()
}
