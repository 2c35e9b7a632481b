package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

// ParseError reports that no parsing strategy could recover structured
// JSON from a generative response. It carries the raw text so callers
// can log or inspect the failure branch explicitly.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable model response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractedEntity is one entity from the structured extraction call.
type ExtractedEntity struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ExtractedRelationship is one relationship from the structured
// extraction call.
type ExtractedRelationship struct {
	Subject   string            `json:"subject"`
	Predicate string            `json:"predicate"`
	Object    string            `json:"object"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ExtractionResult is the parsed output of the extraction prompt.
type ExtractionResult struct {
	FactType      string                  `json:"fact_type"`
	Entities      []ExtractedEntity       `json:"entities"`
	Relationships []ExtractedRelationship `json:"relationships"`
}

// ContradictionFinding is one supersession decision from the semantic
// contradiction classifier.
type ContradictionFinding struct {
	ExistingID        string `json:"existing_id"`
	ExistingStatement string `json:"existing_statement"`
	Reason            string `json:"reason"`
	TemporalType      string `json:"temporal_type"`
	Confidence        string `json:"confidence"` // "high" | "medium" | "low"
}

// ContradictionResponse is the full classifier output.
type ContradictionResponse struct {
	Contradictions []ContradictionFinding `json:"contradictions"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON recovers a JSON document from a generative response that
// may wrap it in prose or markdown fences. Strategies are tried in
// order: (1) direct parse, (2) fenced-block extraction, (3) brace-
// matched object location, (4) preamble/postamble stripping. Returns a
// *ParseError when every strategy fails.
func ExtractJSON(text string) (string, error) {
	trimmed := strings.TrimSpace(text)

	// Strategy 1: the response is already valid JSON.
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}

	// Strategy 2: a fenced ```json block.
	if m := fencedBlockRe.FindStringSubmatch(trimmed); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// Strategy 3: locate the first balanced JSON object or array.
	if candidate := locateJSON(trimmed); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	// Strategy 4: strip everything before the first opening bracket and
	// after the last closing one.
	if candidate := stripSurrounding(trimmed); candidate != "" && json.Valid([]byte(candidate)) {
		return candidate, nil
	}

	return "", &ParseError{Raw: text, Err: fmt.Errorf("no JSON found after all fallback strategies")}
}

// locateJSON finds the first balanced {...} or [...] region, tracking
// string literals and escapes so braces inside strings don't miscount.
func locateJSON(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if text[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func stripSurrounding(text string) string {
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// ParseExtractionResponse parses the structured extraction output.
// Entities without a name and relationships missing any of the triple
// are dropped rather than failing the batch; an unknown fact_type falls
// back to episodic.
func ParseExtractionResponse(text string) (*ExtractionResult, error) {
	clean, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var result ExtractionResult
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}

	if !types.IsValidFactType(result.FactType) {
		result.FactType = string(types.FactEpisodic)
	}

	entities := result.Entities[:0]
	for _, e := range result.Entities {
		if e.Name != "" {
			entities = append(entities, e)
		}
	}
	result.Entities = entities

	rels := result.Relationships[:0]
	for _, r := range result.Relationships {
		if r.Subject != "" && r.Predicate != "" && r.Object != "" {
			rels = append(rels, r)
		}
	}
	result.Relationships = rels

	return &result, nil
}

// ParseContradictionResponse parses the semantic contradiction
// classifier output. Findings without an existing_id are dropped.
func ParseContradictionResponse(text string) (*ContradictionResponse, error) {
	clean, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var result ContradictionResponse
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, &ParseError{Raw: text, Err: err}
	}

	findings := result.Contradictions[:0]
	for _, f := range result.Contradictions {
		if f.ExistingID != "" {
			findings = append(findings, f)
		}
	}
	result.Contradictions = findings
	return &result, nil
}

// ParseQueriesResponse parses the retrieval-query generation output,
// a JSON array of strings. Returns nil (not an error) when the model
// produced nothing usable; query generation is best-effort.
func ParseQueriesResponse(text string) []string {
	clean, err := ExtractJSON(text)
	if err != nil {
		return nil
	}
	var queries []string
	if err := json.Unmarshal([]byte(clean), &queries); err != nil {
		return nil
	}
	out := queries[:0]
	for _, q := range queries {
		if strings.TrimSpace(q) != "" {
			out = append(out, q)
		}
	}
	return out
}
