package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPReranker scores query/candidate pairs against a cross-encoder
// reranking endpoint (TEI-style POST /rerank). A score of exactly 0.0
// from the endpoint is passed through unchanged: it means "not
// relevant", not "unknown".
type HTTPReranker struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *CircuitBreaker
}

// RerankerConfig holds reranker client configuration.
type RerankerConfig struct {
	// BaseURL is the reranking endpoint base URL
	// (default: http://localhost:8787).
	BaseURL string

	// Timeout is the per-request timeout (default: 10s).
	Timeout time.Duration
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewHTTPReranker creates a reranker client with the given configuration.
func NewHTTPReranker(config RerankerConfig) *HTTPReranker {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8787"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	return &HTTPReranker{
		baseURL:        config.BaseURL,
		client:         &http.Client{Timeout: config.Timeout},
		circuitBreaker: NewCircuitBreaker(),
	}
}

// Score returns the relevance of candidate to query.
func (r *HTTPReranker) Score(ctx context.Context, query, candidate string) (float64, error) {
	result, err := r.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return r.score(ctx, query, candidate)
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return 0, fmt.Errorf("reranker circuit breaker open: %w", err)
		}
		return 0, err
	}
	return result.(float64), nil
}

func (r *HTTPReranker) score(ctx context.Context, query, candidate string) (float64, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Texts: []string{candidate}})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read rerank response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("reranker returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var results []rerankResult
	if err := json.Unmarshal(respBody, &results); err != nil {
		return 0, fmt.Errorf("failed to decode rerank response: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("reranker returned no results")
	}
	return results[0].Score, nil
}
