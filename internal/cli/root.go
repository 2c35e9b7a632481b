// Package cli implements the mnemo CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/config"
	"github.com/mnemo-ai/mnemo/internal/engine"
	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/internal/store"
	"github.com/mnemo-ai/mnemo/internal/store/chromem"
	"github.com/mnemo-ai/mnemo/internal/store/postgres"
	"github.com/mnemo-ai/mnemo/internal/store/sqlite"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Persistent memory for conversational agents",
	Long:  "Mnemo gives a conversational agent long-term memory: it grades and stores facts from each turn in the background and assembles relevant context before each reply.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: $MNEMO_CONFIG or mnemo.yaml if present)")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("MNEMO_CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("mnemo.yaml"); err == nil {
			path = "mnemo.yaml"
		}
	}
	return config.Load(path)
}

func buildClients(cfg *config.Config) (llm.TextGenerator, llm.EmbeddingGenerator, llm.Reranker, error) {
	provider := llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.OllamaURL,
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
	}
	if cfg.LLM.Provider == "openai" {
		provider.Model = cfg.LLM.OpenAIModel
	}

	generator, err := llm.NewTextGenerator(provider)
	if err != nil {
		return nil, nil, nil, err
	}
	embedder, err := llm.NewEmbeddingGenerator(provider)
	if err != nil {
		return nil, nil, nil, err
	}

	var reranker llm.Reranker
	if cfg.LLM.RerankerURL != "" {
		reranker = llm.NewHTTPReranker(llm.RerankerConfig{BaseURL: cfg.LLM.RerankerURL})
	}
	return generator, embedder, reranker, nil
}

// openStore opens the configured fact store backend. The postgres
// backend needs the embedding dimension up front for its schema, so a
// probe embedding is generated on first open.
func openStore(cfg *config.Config, embedder llm.EmbeddingGenerator) (store.FactStore, error) {
	switch cfg.Storage.Engine {
	case "", "sqlite":
		if err := ensureParentDir(cfg.Storage.Path); err != nil {
			return nil, err
		}
		return sqlite.Open(cfg.Storage.Path)
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		probe, err := embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("failed to probe embedding dimension: %w", err)
		}
		return postgres.Open(cfg.Storage.PostgresDSN, len(probe))
	case "chromem":
		if err := ensureParentDir(cfg.Storage.Path); err != nil {
			return nil, err
		}
		vectors, err := chromem.Open(cfg.Storage.Path + ".chromem")
		if err != nil {
			return nil, err
		}
		graph, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			vectors.Close()
			return nil, err
		}
		return store.NewComposite(vectors, graph, vectors.Close, graph.Close), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// buildEngine wires the full stack. The returned generator is the same
// client the engine uses internally, for commands that also need to
// produce replies.
func buildEngine(cfg *config.Config) (*engine.Engine, store.FactStore, llm.TextGenerator, error) {
	generator, embedder, reranker, err := buildClients(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	facts, err := openStore(cfg, embedder)
	if err != nil {
		return nil, nil, nil, err
	}

	engCfg := engine.DefaultConfig()
	engCfg.Assembler.VectorK = cfg.Retrieval.VectorK
	engCfg.Assembler.GraphK = cfg.Retrieval.GraphK
	engCfg.Assembler.RerankK = cfg.Retrieval.RerankK
	engCfg.Assembler.MaxContextTokens = cfg.Retrieval.MaxContextTokens
	engCfg.Assembler.SlidingWindowTokens = cfg.Retrieval.SlidingWindowTokens
	engCfg.Assembler.HalfLives = engine.HalfLives{
		HighDays:   float64(cfg.Retrieval.HalfLifeHighDays),
		MediumDays: float64(cfg.Retrieval.HalfLifeMediumDays),
		LowDays:    float64(cfg.Retrieval.HalfLifeLowDays),
	}
	engCfg.WindowTurns = cfg.Retrieval.WindowTurns
	engCfg.Observer.Gate = cfg.Observer.Gate
	engCfg.Observer.Retry = llm.RetryConfig{
		MaxAttempts: cfg.Observer.RetryAttempts,
		BaseBackoff: time.Duration(cfg.Observer.RetryBackoffMS) * time.Millisecond,
	}
	engCfg.Observer.ShutdownTimeout = time.Duration(cfg.Observer.ShutdownWaitS) * time.Second

	eng, err := engine.New(facts, generator, embedder, reranker, engCfg)
	if err != nil {
		facts.Close()
		return nil, nil, nil, err
	}
	return eng, facts, generator, nil
}

func ensureParentDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
