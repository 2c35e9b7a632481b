package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// TaskState is an observer task's position in its lifecycle.
type TaskState string

const (
	TaskPending            TaskState = "pending"
	TaskGrading            TaskState = "grading"
	TaskEarlyExit          TaskState = "early_exit"
	TaskExtracting         TaskState = "extracting"
	TaskContradictionCheck TaskState = "contradiction_check"
	TaskPersisting         TaskState = "persisting"
	TaskDone               TaskState = "done"
	TaskFailed             TaskState = "failed"
)

// ObserverTask is one in-flight unit of post-turn work. Tasks are
// created by Observe and destroyed on completion or terminal failure.
type ObserverTask struct {
	ID             string
	ConversationID string
	TurnIndex      int
	UserText       string
	AssistantText  string

	mu    sync.Mutex
	state TaskState
	err   error
	done  chan struct{}
}

// State returns the task's current lifecycle state.
func (t *ObserverTask) State() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error for a failed task, nil otherwise.
func (t *ObserverTask) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Wait blocks until the task reaches a terminal state or ctx expires.
func (t *ObserverTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ObserverTask) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *ObserverTask) finish(s TaskState, err error) {
	t.mu.Lock()
	t.state = s
	t.err = err
	t.mu.Unlock()
	close(t.done)
}

// ObserverConfig tunes the observer's concurrency and failure budget.
type ObserverConfig struct {
	// Gate is the maximum number of concurrently running LLM-backed
	// pipelines (default 2). Tasks beyond the limit queue.
	Gate int

	// Retry is the per-sub-step retry schedule.
	Retry llm.RetryConfig

	// ShutdownTimeout bounds the join on outstanding tasks (default 30s).
	ShutdownTimeout time.Duration
}

// DefaultObserverConfig returns the standard observer configuration.
func DefaultObserverConfig() ObserverConfig {
	return ObserverConfig{
		Gate:            2,
		Retry:           llm.DefaultRetryConfig(),
		ShutdownTimeout: 30 * time.Second,
	}
}

// Observer runs the asynchronous post-turn pipeline: grade the turn's
// utility, extract entities and relationships, resolve contradictions,
// and persist the results. Fire-and-forget from the caller's view, but
// every task is tracked and joined on shutdown: losing an in-flight
// task on process exit is memory loss, not an acceptable trade-off.
//
// All shared state (the concurrency gate, the task registry) is owned
// by the instance, so multiple observers can coexist in tests.
type Observer struct {
	generator llm.TextGenerator
	embedder  llm.EmbeddingGenerator
	resolver  ContradictionResolver
	vectors   store.VectorStore
	graph     store.GraphStore
	cfg       ObserverConfig

	gate chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	tasks    map[string]*ObserverTask
	shutdown bool

	// background context for task execution, independent of the
	// caller's per-request context
	ctx    context.Context
	cancel context.CancelFunc
}

// NewObserver creates an observer pipeline.
func NewObserver(generator llm.TextGenerator, embedder llm.EmbeddingGenerator, resolver ContradictionResolver, vectors store.VectorStore, graph store.GraphStore, cfg ObserverConfig) *Observer {
	if cfg.Gate <= 0 {
		cfg.Gate = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = llm.DefaultRetryConfig()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Observer{
		generator: generator,
		embedder:  embedder,
		resolver:  resolver,
		vectors:   vectors,
		graph:     graph,
		cfg:       cfg,
		gate:      make(chan struct{}, cfg.Gate),
		tasks:     make(map[string]*ObserverTask),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Observe submits a completed turn pair for background processing and
// returns immediately. The returned task handle can be waited on; the
// caller is not required to.
func (o *Observer) Observe(conversationID string, turnIndex int, userText, assistantText string) (*ObserverTask, error) {
	task := &ObserverTask{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		TurnIndex:      turnIndex,
		UserText:       userText,
		AssistantText:  assistantText,
		state:          TaskPending,
		done:           make(chan struct{}),
	}

	o.mu.Lock()
	if o.shutdown {
		o.mu.Unlock()
		return nil, fmt.Errorf("observer is shut down")
	}
	o.tasks[task.ID] = task
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.tasks, task.ID)
			o.mu.Unlock()
		}()

		// Bounded concurrency gate: queue rather than fail when the
		// shared inference endpoint is saturated.
		select {
		case o.gate <- struct{}{}:
		case <-o.ctx.Done():
			task.finish(TaskFailed, o.ctx.Err())
			return
		}
		defer func() { <-o.gate }()

		o.run(task)
	}()

	return task, nil
}

// Outstanding returns the number of tasks not yet terminal.
func (o *Observer) Outstanding() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.tasks)
}

// Shutdown stops accepting new tasks and joins the outstanding ones,
// waiting up to ShutdownTimeout. In-flight tasks run to completion; a
// timeout abandons whatever is still running and reports how many.
func (o *Observer) Shutdown() error {
	o.mu.Lock()
	o.shutdown = true
	o.mu.Unlock()

	joined := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		return nil
	case <-time.After(o.cfg.ShutdownTimeout):
		o.cancel()
		remaining := o.Outstanding()
		return fmt.Errorf("shutdown timed out with %d observer task(s) still running", remaining)
	}
}

// run drives one task through the state machine.
func (o *Observer) run(task *ObserverTask) {
	ctx := o.ctx
	turnText := fmt.Sprintf("USER: %s\nASSISTANT: %s", task.UserText, task.AssistantText)

	// GRADING
	task.setState(TaskGrading)
	tier, err := o.grade(ctx, turnText)
	if err != nil {
		log.Printf("[observer] task %s grading failed: %v", task.ID, err)
		task.finish(TaskFailed, err)
		return
	}
	if tier == types.TierDiscard {
		// Most turns land here; skipping extraction entirely is the
		// dominant performance optimization.
		task.setState(TaskEarlyExit)
		task.finish(TaskDone, nil)
		return
	}

	// EXTRACTING: the four sub-tasks run concurrently, each with its
	// own retry budget. Summary and query generation degrade to empty
	// on failure; failed structured extraction fails the turn.
	task.setState(TaskExtracting)
	extraction, summary, queries, err := o.extract(ctx, turnText)
	if err != nil {
		log.Printf("[observer] task %s extraction failed, dropping turn: %v", task.ID, err)
		task.finish(TaskFailed, err)
		return
	}

	// CONTRADICTION_CHECK
	task.setState(TaskContradictionCheck)
	rels := relationshipsFrom(extraction, task)
	decisions := o.checkContradictions(ctx, rels)

	// PERSISTING
	task.setState(TaskPersisting)
	fact := o.buildFact(task, tier, extraction, summary, queries, turnText)
	if err := o.persist(ctx, fact, entitiesFrom(extraction), rels, decisions); err != nil {
		log.Printf("[observer] task %s persistence failed, turn lost: %v", task.ID, err)
		task.finish(TaskFailed, err)
		return
	}

	task.finish(TaskDone, nil)
}

func (o *Observer) grade(ctx context.Context, turnText string) (types.UtilityTier, error) {
	return llm.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (types.UtilityTier, error) {
		response, err := o.generator.Complete(ctx, llm.UtilityPrompt(turnText))
		if err != nil {
			return "", err
		}
		return types.ParseUtilityTier(response), nil
	})
}

// extract runs structured extraction, summary generation, and
// retrieval-query generation concurrently.
func (o *Observer) extract(ctx context.Context, turnText string) (*llm.ExtractionResult, string, []string, error) {
	var (
		wg         sync.WaitGroup
		extraction *llm.ExtractionResult
		extractErr error
		summary    string
		queries    []string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		extraction, extractErr = llm.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (*llm.ExtractionResult, error) {
			response, err := o.generator.Complete(ctx, llm.ExtractionPrompt(turnText))
			if err != nil {
				return nil, err
			}
			return llm.ParseExtractionResponse(response)
		})
	}()
	go func() {
		defer wg.Done()
		s, err := llm.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (string, error) {
			return o.generator.Complete(ctx, llm.SummaryPrompt(turnText))
		})
		if err != nil {
			log.Printf("[observer] summary generation failed, continuing without: %v", err)
			return
		}
		summary = strings.TrimSpace(s)
	}()
	go func() {
		defer wg.Done()
		response, err := llm.Retry(ctx, o.cfg.Retry, func(ctx context.Context) (string, error) {
			return o.generator.Complete(ctx, llm.QueriesPrompt(turnText))
		})
		if err != nil {
			log.Printf("[observer] query generation failed, continuing without: %v", err)
			return
		}
		queries = llm.ParseQueriesResponse(response)
	}()
	wg.Wait()

	if extractErr != nil {
		return nil, "", nil, extractErr
	}
	return extraction, summary, queries, nil
}

// checkContradictions resolves each new relationship against the
// existing graph facts touching its subject or object (both roles).
func (o *Observer) checkContradictions(ctx context.Context, rels []types.Relationship) map[int][]Supersession {
	decisions := make(map[int][]Supersession)
	for i, rel := range rels {
		existing, err := o.existingRelationships(ctx, rel)
		if err != nil {
			log.Printf("[observer] graph lookup failed for %s, skipping contradiction check: %v", rel.Statement(), err)
			continue
		}
		if len(existing) == 0 {
			continue
		}
		found, err := o.resolver.Resolve(ctx, rel, existing)
		if err != nil {
			log.Printf("[observer] contradiction resolution failed for %s: %v", rel.Statement(), err)
			continue
		}
		if len(found) > 0 {
			decisions[i] = found
		}
	}
	return decisions
}

// existingRelationships gathers active relationships touching the new
// relationship's subject or object, in either role, deduplicated.
func (o *Observer) existingRelationships(ctx context.Context, rel types.Relationship) ([]types.Relationship, error) {
	seen := make(map[string]bool)
	var out []types.Relationship
	for _, name := range []string{rel.Subject, rel.Object} {
		if name == "" {
			continue
		}
		for _, role := range []types.Role{types.RoleSubject, types.RoleObject} {
			rels, err := o.graph.GraphQuery(ctx, name, role)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				if r.Status == types.StatusActive && !seen[r.ID] {
					seen[r.ID] = true
					out = append(out, r)
				}
			}
		}
	}
	return out, nil
}

func (o *Observer) buildFact(task *ObserverTask, tier types.UtilityTier, extraction *llm.ExtractionResult, summary string, queries []string, turnText string) *types.MemoryFact {
	source := types.SourceUserStated
	return &types.MemoryFact{
		ID:               ulid.Make().String(),
		Text:             turnText,
		Summary:          summary,
		UtilityTier:      tier,
		FactType:         types.FactType(extraction.FactType),
		RetrievalQueries: queries,
		Source:           source,
		Confidence:       types.ConfidenceFor(source),
		ConversationID:   task.ConversationID,
		TurnIndex:        task.TurnIndex,
		CreatedAt:        time.Now(),
	}
}

// persist writes the fact (vector side) and the entities/relationships
// (graph side) concurrently, then applies supersession decisions.
func (o *Observer) persist(ctx context.Context, fact *types.MemoryFact, entities []types.Entity, rels []types.Relationship, decisions map[int][]Supersession) error {
	var (
		wg        sync.WaitGroup
		vectorErr error
		graphErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		embedding, err := o.embedder.Embed(ctx, embedText(fact))
		if err != nil {
			vectorErr = fmt.Errorf("embedding failed: %w", err)
			return
		}
		fact.Embedding = embedding
		if err := o.vectors.PersistFact(ctx, fact); err != nil {
			vectorErr = fmt.Errorf("fact persistence failed: %w", err)
		}
	}()
	go func() {
		defer wg.Done()
		if len(entities) > 0 {
			if err := o.graph.PersistEntities(ctx, entities); err != nil {
				graphErr = fmt.Errorf("entity persistence failed: %w", err)
				return
			}
		}
		for i := range rels {
			if err := o.graph.PersistRelationship(ctx, &rels[i]); err != nil {
				graphErr = fmt.Errorf("relationship persistence failed: %w", err)
				return
			}
			for _, d := range decisions[i] {
				err := o.graph.MarkSuperseded(ctx, d.ExistingID, rels[i].ID)
				switch {
				case err == nil:
					log.Printf("[observer] superseded %s: %s", d.ExistingID, d.Reason)
				case errors.Is(err, store.ErrAlreadySuperseded):
					log.Printf("[observer] %s already superseded, no-op", d.ExistingID)
				default:
					graphErr = fmt.Errorf("supersession failed: %w", err)
					return
				}
			}
		}
	}()
	wg.Wait()

	if vectorErr != nil {
		return vectorErr
	}
	return graphErr
}

// embedText picks the fact's embedding text: the summary when the
// model produced one, the raw turn otherwise.
func embedText(fact *types.MemoryFact) string {
	if fact.Summary != "" {
		return fact.Summary
	}
	return fact.Text
}

func entitiesFrom(extraction *llm.ExtractionResult) []types.Entity {
	now := time.Now()
	entities := make([]types.Entity, 0, len(extraction.Entities))
	for _, e := range extraction.Entities {
		entities = append(entities, types.Entity{
			Name:           e.Name,
			Type:           e.Type,
			Attributes:     e.Attributes,
			FirstMentioned: now,
			LastMentioned:  now,
		})
	}
	return entities
}

func relationshipsFrom(extraction *llm.ExtractionResult, task *ObserverTask) []types.Relationship {
	now := time.Now()
	rels := make([]types.Relationship, 0, len(extraction.Relationships))
	for _, r := range extraction.Relationships {
		source := types.SourceUserStated
		if r.Metadata["source"] == string(types.SourceAssistantInferred) {
			source = types.SourceAssistantInferred
		}
		state := types.StateOngoing
		switch r.Metadata["temporal_state"] {
		case string(types.StateCompleted):
			state = types.StateCompleted
		case string(types.StatePlanned):
			state = types.StatePlanned
		}
		rels = append(rels, types.Relationship{
			Subject:       r.Subject,
			Predicate:     normalizePredicate(r.Predicate),
			Object:        r.Object,
			TemporalState: state,
			Status:        types.StatusActive,
			Source:        source,
			Confidence:    types.ConfidenceFor(source),
			CreatedAt:     now,
		})
	}
	return rels
}
