package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/mnemo-ai/mnemo/internal/llm"
	"github.com/mnemo-ai/mnemo/pkg/types"
)

// Supersession is one resolution decision: the existing relationship to
// mark superseded and why.
type Supersession struct {
	ExistingID string
	Reason     string
}

// ContradictionResolver decides which existing active relationships a
// newly extracted relationship invalidates. Implementations must be
// safe to re-run: deciding against an already-superseded relationship
// is a no-op for the caller (MarkSuperseded reports it as such).
type ContradictionResolver interface {
	Resolve(ctx context.Context, newRel types.Relationship, existing []types.Relationship) ([]Supersession, error)
}

// completionTransitions maps an ongoing predicate to the predicates
// that complete it. A new relationship whose predicate completes an
// existing one supersedes it even though the predicates differ.
var completionTransitions = map[string][]string{
	"VISITING":      {"RETURNED_HOME", "LEFT", "DEPARTED"},
	"SCHEDULED_FOR": {"HAPPENED", "CANCELED"},
	"TRAVELING_TO":  {"ARRIVED_AT"},
	"LIVES_IN":      {"MOVED_TO"},
	"WORKS_AT":      {"RESIGNED_FROM", "FIRED_FROM"},
}

// RuleResolver applies the deterministic resolution rules, evaluated in
// order with first match per existing relationship winning:
//
//  1. identical predicate, different object: supersede the old
//  2. the new predicate is a recognized completion of the old one
//     under the state-transition table: supersede the old
//  3. same predicate with an attribute-style value change (AGE 24 ->
//     AGE 25): supersede the old, recorded as an update
//
// Anything else leaves both relationships active. Orthogonal facts
// with different predicates or different qualifying context are never
// flagged.
type RuleResolver struct{}

// NewRuleResolver creates the deterministic resolver.
func NewRuleResolver() *RuleResolver {
	return &RuleResolver{}
}

// Resolve applies the deterministic rules against each existing
// relationship. Already-superseded entries are skipped.
func (r *RuleResolver) Resolve(_ context.Context, newRel types.Relationship, existing []types.Relationship) ([]Supersession, error) {
	var decisions []Supersession
	for _, old := range existing {
		if old.Status != types.StatusActive || old.ID == newRel.ID {
			continue
		}
		if !sameEntity(old.Subject, newRel.Subject) {
			continue
		}

		oldPred := normalizePredicate(old.Predicate)
		newPred := normalizePredicate(newRel.Predicate)

		switch {
		case oldPred == newPred && !sameEntity(old.Object, newRel.Object):
			reason := fmt.Sprintf("replaced by newer %s statement", newPred)
			if isAttributeValue(old.Object) && isAttributeValue(newRel.Object) {
				reason = fmt.Sprintf("%s updated from %s to %s", newPred, old.Object, newRel.Object)
			}
			decisions = append(decisions, Supersession{ExistingID: old.ID, Reason: reason})

		case completes(oldPred, newPred):
			decisions = append(decisions, Supersession{
				ExistingID: old.ID,
				Reason:     fmt.Sprintf("%s completed by %s", oldPred, newPred),
			})
		}
	}
	return decisions, nil
}

// completes reports whether newPred is a recognized completion of
// oldPred in the state-transition table.
func completes(oldPred, newPred string) bool {
	for _, p := range completionTransitions[oldPred] {
		if p == newPred {
			return true
		}
	}
	return false
}

func normalizePredicate(p string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(p), " ", "_"))
}

func sameEntity(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// isAttributeValue reports whether an object string is a literal value
// rather than an entity name, e.g. "24" or "24 years".
func isAttributeValue(s string) bool {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return false
	}
	_, err := strconv.ParseFloat(fields[0], 64)
	return err == nil
}

// LLMResolver asks the generative model to classify semantic
// contradictions the rules cannot see, such as paraphrased predicates.
type LLMResolver struct {
	generator llm.TextGenerator
	retry     llm.RetryConfig
}

// NewLLMResolver creates the classifier-backed resolver.
func NewLLMResolver(generator llm.TextGenerator, retry llm.RetryConfig) *LLMResolver {
	return &LLMResolver{generator: generator, retry: retry}
}

// Resolve prompts the classifier with the new relationship and the
// existing active set, then maps its findings back to concrete IDs.
// Findings with low confidence or referencing unknown IDs are dropped.
func (r *LLMResolver) Resolve(ctx context.Context, newRel types.Relationship, existing []types.Relationship) ([]Supersession, error) {
	active := make([]types.Relationship, 0, len(existing))
	byID := make(map[string]types.Relationship, len(existing))
	for _, rel := range existing {
		if rel.Status == types.StatusActive && rel.ID != newRel.ID {
			active = append(active, rel)
			byID[rel.ID] = rel
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	prompt := llm.ContradictionPrompt(newRel, active)
	parsed, err := llm.Retry(ctx, r.retry, func(ctx context.Context) (*llm.ContradictionResponse, error) {
		response, err := r.generator.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return llm.ParseContradictionResponse(response)
	})
	if err != nil {
		return nil, fmt.Errorf("contradiction classification failed: %w", err)
	}

	var decisions []Supersession
	for _, finding := range parsed.Contradictions {
		if _, ok := byID[finding.ExistingID]; !ok {
			continue
		}
		if finding.Confidence == "low" {
			continue
		}
		reason := finding.Reason
		if reason == "" {
			reason = "semantic contradiction"
		}
		decisions = append(decisions, Supersession{ExistingID: finding.ExistingID, Reason: reason})
	}
	return decisions, nil
}

// TwoStageResolver composes the classifier with the deterministic
// rules. The rule pass always runs: a classifier outage degrades the
// resolver to rules-only instead of failing the turn.
type TwoStageResolver struct {
	primary  ContradictionResolver
	fallback *RuleResolver
}

// NewTwoStageResolver composes primary (may be nil for rules-only
// operation) with the mandatory deterministic pass.
func NewTwoStageResolver(primary ContradictionResolver) *TwoStageResolver {
	return &TwoStageResolver{primary: primary, fallback: NewRuleResolver()}
}

// Resolve runs the classifier, then the deterministic rules, and
// merges their decisions keeping the first reason per existing ID.
func (r *TwoStageResolver) Resolve(ctx context.Context, newRel types.Relationship, existing []types.Relationship) ([]Supersession, error) {
	var merged []Supersession
	seen := make(map[string]bool)

	if r.primary != nil {
		decisions, err := r.primary.Resolve(ctx, newRel, existing)
		if err != nil {
			log.Printf("[resolver] classifier unavailable, continuing with rules: %v", err)
		}
		for _, d := range decisions {
			if !seen[d.ExistingID] {
				seen[d.ExistingID] = true
				merged = append(merged, d)
			}
		}
	}

	decisions, err := r.fallback.Resolve(ctx, newRel, existing)
	if err != nil {
		return merged, err
	}
	for _, d := range decisions {
		if !seen[d.ExistingID] {
			seen[d.ExistingID] = true
			merged = append(merged, d)
		}
	}
	return merged, nil
}
