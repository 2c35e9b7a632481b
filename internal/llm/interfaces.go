// Package llm provides clients for the external model endpoints the
// memory core consumes: text generation (grading, extraction,
// contradiction classification), embedding, and reranking. All HTTP
// calls are wrapped with circuit breaker protection; transient failures
// are absorbed by the bounded retry helper.
package llm

import "context"

// TextGenerator is the interface for LLM text completion.
// All observer prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator produces fixed-width float vectors. The embedding
// must be deterministic for identical input.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Reranker scores a candidate text's relevance to a query. A returned
// score of exactly 0.0 is a real low-relevance signal, not a missing
// value; callers must never default it to 1.0.
type Reranker interface {
	Score(ctx context.Context, query, candidate string) (float64, error)
}
