package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewOllamaClientDefaultRateLimit(t *testing.T) {
	c := NewOllamaClient(OllamaConfig{})
	if c.limiter == nil {
		t.Fatal("limiter should be enabled by default")
	}
	if got := float64(c.limiter.Limit()); got != 4 {
		t.Errorf("default limiter rate = %f, want 4", got)
	}
}

func TestNewOllamaClientNegativeDisablesRateLimit(t *testing.T) {
	c := NewOllamaClient(OllamaConfig{RequestsPerSecond: -1})
	if c.limiter != nil {
		t.Error("negative RequestsPerSecond should disable the limiter")
	}
}

func TestCompletePacedByRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	// 50 rps with burst 1: the first call is immediate, each of the
	// next two waits its 20ms interval.
	c := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, RequestsPerSecond: 50})
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Complete(context.Background(), "hello"); err != nil {
			t.Fatalf("Complete: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("three calls finished in %v, want at least ~40ms of limiter pacing", elapsed)
	}
}
