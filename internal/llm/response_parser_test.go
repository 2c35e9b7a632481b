package llm

import (
	"errors"
	"testing"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
		wantErr  bool
	}{
		{
			name:     "plain JSON object",
			input:    `{"key": "value"}`,
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "plain JSON array",
			input:    `["a", "b"]`,
			wantJSON: `["a", "b"]`,
		},
		{
			name:     "fenced json block",
			input:    "```json\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "fenced block without language tag",
			input:    "```\n{\"key\": \"value\"}\n```",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "object embedded in prose",
			input:    "Here is the JSON you asked for:\n{\"key\": \"value\"}\nLet me know if you need more.",
			wantJSON: `{"key": "value"}`,
		},
		{
			name:     "nested object embedded in prose",
			input:    `Sure! {"outer": {"inner": [1, 2]}} Done.`,
			wantJSON: `{"outer": {"inner": [1, 2]}}`,
		},
		{
			name:     "braces inside string literals",
			input:    `result: {"text": "use {curly} braces"} trailing`,
			wantJSON: `{"text": "use {curly} braces"}`,
		},
		{
			name:     "escaped quotes inside strings",
			input:    `{"text": "He said \"hi\""}`,
			wantJSON: `{"text": "He said \"hi\""}`,
		},
		{
			name:    "no JSON at all",
			input:   "just prose, no structure here",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
		{
			name:    "truncated object",
			input:   `{"key": "val`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractJSON(%q) = %q, want error", tt.input, got)
				}
				var perr *ParseError
				if !errors.As(err, &perr) {
					t.Errorf("ExtractJSON(%q) error = %v, want *ParseError", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSON(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.wantJSON {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.wantJSON)
			}
		})
	}
}

func TestParseExtractionResponse(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantErr      bool
		wantFactType string
		wantEntities int
		wantRels     int
	}{
		{
			name:         "full extraction",
			input:        `{"fact_type": "preference", "entities": [{"name": "Sarah", "type": "person"}], "relationships": [{"subject": "User", "predicate": "LIKES", "object": "jazz"}]}`,
			wantFactType: "preference",
			wantEntities: 1,
			wantRels:     1,
		},
		{
			name:         "unknown fact_type falls back to episodic",
			input:        `{"fact_type": "banana", "entities": [], "relationships": []}`,
			wantFactType: "episodic",
		},
		{
			name:         "nameless entity dropped",
			input:        `{"fact_type": "core", "entities": [{"name": "", "type": "person"}, {"name": "Acme", "type": "organization"}], "relationships": []}`,
			wantFactType: "core",
			wantEntities: 1,
		},
		{
			name:         "incomplete relationship dropped",
			input:        `{"fact_type": "episodic", "entities": [], "relationships": [{"subject": "User", "predicate": "VISITED", "object": ""}, {"subject": "User", "predicate": "VISITED", "object": "Paris"}]}`,
			wantFactType: "episodic",
			wantRels:     1,
		},
		{
			name:         "fenced response",
			input:        "```json\n{\"fact_type\": \"core\", \"entities\": [], \"relationships\": []}\n```",
			wantFactType: "core",
		},
		{
			name:    "malformed JSON",
			input:   `{"fact_type": "core", "entities": [`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExtractionResponse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.FactType != tt.wantFactType {
				t.Errorf("FactType = %q, want %q", got.FactType, tt.wantFactType)
			}
			if len(got.Entities) != tt.wantEntities {
				t.Errorf("len(Entities) = %d, want %d", len(got.Entities), tt.wantEntities)
			}
			if len(got.Relationships) != tt.wantRels {
				t.Errorf("len(Relationships) = %d, want %d", len(got.Relationships), tt.wantRels)
			}
		})
	}
}

func TestParseContradictionResponse(t *testing.T) {
	input := `The new fact contradicts one existing relationship.
{"contradictions": [
  {"existing_id": "rel-1", "existing_statement": "User WORKS_AT CompanyA", "reason": "changed jobs", "temporal_type": "supersede", "confidence": "high"},
  {"existing_id": "", "existing_statement": "orphan", "reason": "", "temporal_type": "", "confidence": "low"}
]}`

	got, err := ParseContradictionResponse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Contradictions) != 1 {
		t.Fatalf("len(Contradictions) = %d, want 1 (missing existing_id dropped)", len(got.Contradictions))
	}
	if got.Contradictions[0].ExistingID != "rel-1" {
		t.Errorf("ExistingID = %q, want %q", got.Contradictions[0].ExistingID, "rel-1")
	}
}

func TestParseContradictionResponseEmpty(t *testing.T) {
	got, err := ParseContradictionResponse(`{"contradictions": []}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Contradictions) != 0 {
		t.Errorf("len(Contradictions) = %d, want 0", len(got.Contradictions))
	}
}

func TestParseQueriesResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"plain array", `["where does the user work", "user job history"]`, 2},
		{"fenced array", "```json\n[\"user hobbies\"]\n```", 1},
		{"blank entries skipped", `["", "  ", "real query"]`, 1},
		{"garbage is best-effort nil", "no json here", 0},
		{"wrong shape is nil", `{"queries": ["a"]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseQueriesResponse(tt.input)
			if len(got) != tt.want {
				t.Errorf("ParseQueriesResponse(%q) returned %d queries, want %d", tt.input, len(got), tt.want)
			}
		})
	}
}

func TestFactTypeFallbackIsValid(t *testing.T) {
	got, err := ParseExtractionResponse(`{"fact_type": "", "entities": [], "relationships": []}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !types.IsValidFactType(got.FactType) {
		t.Errorf("fallback fact type %q is not valid", got.FactType)
	}
}
