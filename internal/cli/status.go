package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-ai/mnemo/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show resolved configuration and store health",
		Run:   runStatus,
	}

	RootCmd.AddCommand(cmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}

	engineName := cfg.Storage.Engine
	if engineName == "" {
		engineName = "sqlite"
	}
	fmt.Printf("storage:    %s (%s)\n", engineName, storageTarget(cfg))
	fmt.Printf("provider:   %s\n", cfg.LLM.Provider)
	fmt.Printf("model:      %s\n", activeModel(cfg))
	fmt.Printf("embeddings: %s\n", cfg.LLM.EmbeddingModel)
	if cfg.LLM.RerankerURL != "" {
		fmt.Printf("reranker:   %s\n", cfg.LLM.RerankerURL)
	} else {
		fmt.Println("reranker:   disabled")
	}
	fmt.Printf("retrieval:  vector_k=%d graph_k=%d rerank_k=%d\n",
		cfg.Retrieval.VectorK, cfg.Retrieval.GraphK, cfg.Retrieval.RerankK)
	fmt.Printf("observer:   gate=%d retries=%d\n", cfg.Observer.Gate, cfg.Observer.RetryAttempts)
}

func storageTarget(cfg *config.Config) string {
	if cfg.Storage.Engine == "postgres" {
		return cfg.Storage.PostgresDSN
	}
	return cfg.Storage.Path
}

func activeModel(cfg *config.Config) string {
	if cfg.LLM.Provider == "openai" {
		return cfg.LLM.OpenAIModel
	}
	return cfg.LLM.Model
}
