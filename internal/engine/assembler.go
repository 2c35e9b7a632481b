package engine

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// Candidate sources.
const (
	SourceVector = "vector"
	SourceGraph  = "graph"
)

// ContextItem is one retrieved memory in the assembled context.
type ContextItem struct {
	Content    string    `json:"content"`
	Source     string    `json:"source"` // SourceVector or SourceGraph
	FinalScore float64   `json:"final_score"`
	CreatedAt  time.Time `json:"created_at"`
}

// AssemblerConfig tunes retrieval breadth and context sizing.
type AssemblerConfig struct {
	VectorK             int // vector search breadth (default 15)
	GraphK              int // graph search breadth (default 10)
	RerankK             int // final result count (default 5)
	MaxContextTokens    int // total context budget (default 3000)
	SlidingWindowTokens int // recent-turn budget within the total (default 2000)
	EmbedCacheSize      int // query-embedding LRU entries (default 256)

	// HalfLives overrides the per-band decay half-lives (defaults
	// 180/60/14 days).
	HalfLives HalfLives
}

// DefaultAssemblerConfig returns the standard retrieval configuration.
func DefaultAssemblerConfig() AssemblerConfig {
	return AssemblerConfig{
		VectorK:             15,
		GraphK:              10,
		RerankK:             5,
		MaxContextTokens:    3000,
		SlidingWindowTokens: 2000,
		EmbedCacheSize:      256,
		HalfLives:           DefaultHalfLives(),
	}
}

func (c *AssemblerConfig) applyDefaults() {
	d := DefaultAssemblerConfig()
	if c.VectorK <= 0 {
		c.VectorK = d.VectorK
	}
	if c.GraphK <= 0 {
		c.GraphK = d.GraphK
	}
	if c.RerankK <= 0 {
		c.RerankK = d.RerankK
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = d.MaxContextTokens
	}
	if c.SlidingWindowTokens <= 0 {
		c.SlidingWindowTokens = d.SlidingWindowTokens
	}
	if c.EmbedCacheSize <= 0 {
		c.EmbedCacheSize = d.EmbedCacheSize
	}
	if c.HalfLives.HighDays <= 0 {
		c.HalfLives.HighDays = d.HalfLives.HighDays
	}
	if c.HalfLives.MediumDays <= 0 {
		c.HalfLives.MediumDays = d.HalfLives.MediumDays
	}
	if c.HalfLives.LowDays <= 0 {
		c.HalfLives.LowDays = d.HalfLives.LowDays
	}
}

// Assembler builds the per-turn context: it embeds the query, runs the
// vector and graph searches concurrently, applies temporal decay,
// merges and reranks the candidates, and formats the survivors after
// the recent-turn window.
type Assembler struct {
	vectors  store.VectorStore
	graph    store.GraphStore
	embedder llm.EmbeddingGenerator
	reranker llm.Reranker // optional
	cfg      AssemblerConfig

	embedCache *lru.Cache[string, []float32]
	now        func() time.Time
}

// NewAssembler creates an assembler. The reranker may be nil; candidates
// then keep their pre-rerank ordering.
func NewAssembler(vectors store.VectorStore, graph store.GraphStore, embedder llm.EmbeddingGenerator, reranker llm.Reranker, cfg AssemblerConfig) (*Assembler, error) {
	cfg.applyDefaults()
	cache, err := lru.New[string, []float32](cfg.EmbedCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &Assembler{
		vectors:    vectors,
		graph:      graph,
		embedder:   embedder,
		reranker:   reranker,
		cfg:        cfg,
		embedCache: cache,
		now:        time.Now,
	}, nil
}

// Assemble returns the formatted context for a query: the recent-turn
// window first, then the reranked memories, trimmed to the token budget.
func (a *Assembler) Assemble(ctx context.Context, query string, turns []types.ConversationTurn) (string, error) {
	sliding := formatSlidingWindow(turns, a.cfg.SlidingWindowTokens)
	remaining := a.cfg.MaxContextTokens - estimateTokens(sliding)
	if remaining < 0 {
		remaining = 0
	}

	items, err := a.Retrieve(ctx, query, lastUserMessage(turns))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("## Recent Conversation\n")
	b.WriteString(sliding)
	b.WriteString("\n\n## Relevant Memories\n")
	tokens := 0
	for _, item := range items {
		cost := estimateTokens(item.Content)
		if tokens+cost > remaining {
			break
		}
		b.WriteString("- ")
		b.WriteString(item.Content)
		b.WriteString("\n")
		tokens += cost
	}
	return b.String(), nil
}

// Retrieve runs the dual-source search and returns at most RerankK
// scored items, best first. The vector and graph searches execute
// concurrently; if one source fails the other's results are still
// returned, and only a dual failure is an error.
func (a *Assembler) Retrieve(ctx context.Context, query, lastUserMsg string) ([]ContextItem, error) {
	type searchResult struct {
		items []ContextItem
		err   error
	}

	vectorCh := make(chan searchResult, 1)
	graphCh := make(chan searchResult, 1)

	go func() {
		items, err := a.vectorCandidates(ctx, query)
		vectorCh <- searchResult{items, err}
	}()
	go func() {
		items, err := a.graphCandidates(ctx, query)
		graphCh <- searchResult{items, err}
	}()

	vr := <-vectorCh
	gr := <-graphCh

	if vr.err != nil && gr.err != nil {
		return nil, fmt.Errorf("both retrieval sources failed: vector: %v; graph: %v", vr.err, gr.err)
	}
	if vr.err != nil {
		log.Printf("[assembler] vector search failed, continuing with graph only: %v", vr.err)
	}
	if gr.err != nil {
		log.Printf("[assembler] graph search failed, continuing with vector only: %v", gr.err)
	}

	merged := mergeCandidates(vr.items, gr.items)
	sortCandidates(merged)
	return a.rerank(ctx, query, merged, lastUserMsg), nil
}

func (a *Assembler) vectorCandidates(ctx context.Context, query string) ([]ContextItem, error) {
	embedding, err := a.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}
	hits, err := a.vectors.VectorSearch(ctx, embedding, a.cfg.VectorK)
	if err != nil {
		return nil, err
	}

	now := a.now()
	items := make([]ContextItem, 0, len(hits))
	for _, hit := range hits {
		// Blend the store's similarity signal with the stored utility;
		// utility alone would discard the semantic match entirely.
		base := 0.7*hit.Similarity + 0.3*hit.Fact.UtilityScore()
		decay := DecayMultiplier(hit.Fact.AgeDays(now), a.cfg.HalfLives.For(hit.Fact))
		items = append(items, ContextItem{
			Content:    hit.Fact.Text,
			Source:     SourceVector,
			FinalScore: base * decay,
			CreatedAt:  hit.Fact.CreatedAt,
		})
	}
	return items, nil
}

func (a *Assembler) graphCandidates(ctx context.Context, query string) ([]ContextItem, error) {
	entities := extractQueryEntities(query)
	if len(entities) == 0 {
		return nil, nil
	}
	rels, err := a.graph.GraphSearch(ctx, entities, a.cfg.GraphK)
	if err != nil {
		return nil, err
	}

	now := a.now()
	items := make([]ContextItem, 0, len(rels))
	for _, rel := range rels {
		base := 0.4 * rel.Confidence
		ageDays := now.Sub(rel.CreatedAt).Hours() / 24.0
		if ageDays < 7 {
			base *= 1.3 // recent corrections outrank stale facts
		}
		switch rel.TemporalState {
		case types.StateOngoing:
			base *= 1.2
		case types.StateCompleted:
			base *= 0.8
		}
		decay := DecayMultiplier(ageDays, a.cfg.HalfLives.MediumDays)
		items = append(items, ContextItem{
			Content:    renderRelationship(rel),
			Source:     SourceGraph,
			FinalScore: base * decay,
			CreatedAt:  rel.CreatedAt,
		})
	}
	return items, nil
}

func (a *Assembler) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if cached, ok := a.embedCache.Get(query); ok {
		return cached, nil
	}
	embedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	a.embedCache.Add(query, embedding)
	return embedding, nil
}

// rerank multiplies each candidate's score by the external relevance
// score. A returned 0.0 is a real low-relevance signal and demotes the
// candidate; it is never defaulted to 1.0. Candidates containing the
// last user message verbatim get a 1.4x boost.
func (a *Assembler) rerank(ctx context.Context, query string, candidates []ContextItem, lastUserMsg string) []ContextItem {
	if a.reranker != nil {
		// Score every candidate before applying anything: a failure
		// partway through would otherwise leave earlier candidates on
		// the rerank-multiplied scale and later ones on the pre-rerank
		// scale, and the two are not comparable in one sort.
		scores := make([]float64, len(candidates))
		complete := true
		for i := range candidates {
			score, err := a.reranker.Score(ctx, query, candidates[i].Content)
			if err != nil {
				log.Printf("[assembler] reranker unavailable, keeping pre-rerank scores: %v", err)
				complete = false
				break
			}
			scores[i] = score
		}
		if complete {
			for i := range candidates {
				candidates[i].FinalScore *= scores[i]
			}
		}
	}

	lowered := strings.ToLower(strings.TrimSpace(lastUserMsg))
	if lowered != "" {
		for i := range candidates {
			if strings.Contains(strings.ToLower(candidates[i].Content), lowered) {
				candidates[i].FinalScore *= 1.4
			}
		}
	}

	sortCandidates(candidates)
	if len(candidates) > a.cfg.RerankK {
		candidates = candidates[:a.cfg.RerankK]
	}
	return candidates
}

// mergeCandidates dedupes by (content, source), keeping the higher score.
func mergeCandidates(lists ...[]ContextItem) []ContextItem {
	type key struct{ content, source string }
	seen := make(map[key]int)
	var merged []ContextItem
	for _, list := range lists {
		for _, item := range list {
			k := key{item.Content, item.Source}
			if idx, ok := seen[k]; ok {
				if item.FinalScore > merged[idx].FinalScore {
					merged[idx] = item
				}
				continue
			}
			seen[k] = len(merged)
			merged = append(merged, item)
		}
	}
	return merged
}

// sortCandidates orders by final score descending, ties broken by
// recency descending.
func sortCandidates(items []ContextItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].FinalScore != items[j].FinalScore {
			return items[i].FinalScore > items[j].FinalScore
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

var capitalizedTokenRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9\-']+\b`)

// extractQueryEntities pulls candidate entity names from a query:
// capitalized tokens, plus "User" for personal queries so first-person
// questions reach the user's own relationships.
func extractQueryEntities(query string) []string {
	seen := make(map[string]bool)
	var entities []string
	for _, name := range capitalizedTokenRe.FindAllString(query, -1) {
		if !seen[name] {
			seen[name] = true
			entities = append(entities, name)
		}
	}

	lower := " " + strings.ToLower(query) + " "
	markers := []string{" my ", " i ", " me ", " i'm ", " i've ", " mine ", "project"}
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			if !seen["User"] {
				seen["User"] = true
				entities = append(entities, "User")
			}
			break
		}
	}
	return entities
}

// pastTenseRenderings maps predicates that negate an earlier state to
// phrasings with an explicit clarifier, so the reply model cannot
// misread them as current facts.
var pastTenseRenderings = map[string]string{
	"BROKE_UP_WITH": "%s broke up with %s (no longer together)",
	"DIVORCED_FROM": "%s divorced %s (no longer married)",
	"QUIT":          "%s quit from %s (no longer employed there)",
	"LEFT":          "%s left %s",
	"MOVED_FROM":    "%s moved from %s (no longer lives there)",
	"RESIGNED_FROM": "%s resigned from %s (no longer employed there)",
}

// renderRelationship formats a relationship as natural language.
func renderRelationship(rel types.Relationship) string {
	if format, ok := pastTenseRenderings[normalizePredicate(rel.Predicate)]; ok {
		return fmt.Sprintf(format, rel.Subject, rel.Object)
	}
	if rel.TemporalState == types.StateCompleted {
		return fmt.Sprintf("%s %s %s (completed)", rel.Subject, rel.Predicate, rel.Object)
	}
	return rel.Statement()
}

// formatSlidingWindow renders recent turns newest-truncated: turns are
// dropped oldest-first once the token budget is exceeded.
func formatSlidingWindow(turns []types.ConversationTurn, maxTokens int) string {
	var kept []string
	tokens := 0
	for i := len(turns) - 1; i >= 0; i-- {
		cost := estimateTokens(turns[i].Text)
		if tokens+cost > maxTokens {
			break
		}
		kept = append([]string{fmt.Sprintf("%s: %s", strings.ToUpper(turns[i].Role), turns[i].Text)}, kept...)
		tokens += cost
	}
	return strings.Join(kept, "\n")
}

func lastUserMessage(turns []types.ConversationTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == types.TurnUser {
			return turns[i].Text
		}
	}
	return ""
}

// estimateTokens approximates token count at ~4 chars per token.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
