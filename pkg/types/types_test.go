package types

import (
	"testing"
	"time"
)

func TestUtilityTierScore(t *testing.T) {
	cases := []struct {
		tier UtilityTier
		want float64
	}{
		{TierDiscard, 0.0},
		{TierStore, 0.6},
		{TierImportant, 1.0},
	}
	for _, c := range cases {
		if got := c.tier.Score(); got != c.want {
			t.Errorf("Score(%s) = %f, want %f", c.tier, got, c.want)
		}
	}
}

func TestParseUtilityTier(t *testing.T) {
	if ParseUtilityTier("IMPORTANT") != TierImportant {
		t.Error("IMPORTANT should parse to TierImportant")
	}
	if ParseUtilityTier("discard") != TierDiscard {
		t.Error("discard should parse to TierDiscard")
	}
	// Unknown grades must not discard content.
	if ParseUtilityTier("garbage") != TierStore {
		t.Error("unknown grade should fall back to TierStore")
	}
}

func TestParseUtilityTierNormalizesResponse(t *testing.T) {
	// Graders wrap the tier in whitespace, punctuation, or mixed case;
	// none of that may defeat the discard early exit.
	inputs := []string{"DISCARD\n", " DISCARD", "discard.", "Discard", "**DISCARD**", "\tdiscard\r\n"}
	for _, in := range inputs {
		if got := ParseUtilityTier(in); got != TierDiscard {
			t.Errorf("ParseUtilityTier(%q) = %q, want %q", in, got, TierDiscard)
		}
	}
	if got := ParseUtilityTier("IMPORTANT.\n"); got != TierImportant {
		t.Errorf("ParseUtilityTier(%q) = %q, want %q", "IMPORTANT.\n", got, TierImportant)
	}
}

func TestConfidenceFor(t *testing.T) {
	if ConfidenceFor(SourceUserStated) != 1.0 {
		t.Error("user_stated facts must have confidence 1.0")
	}
	if ConfidenceFor(SourceAssistantInferred) > 0.3 {
		t.Error("inferred facts must not exceed 0.3 confidence")
	}
}

func TestRelationshipActive(t *testing.T) {
	now := time.Now()

	rel := Relationship{Status: StatusActive}
	if !rel.Active(now) {
		t.Error("active relationship should be visible")
	}

	rel.Status = StatusSuperseded
	rel.SupersededBy = "rel-2"
	if rel.Active(now) {
		t.Error("superseded relationship must be excluded from retrieval")
	}

	past := now.Add(-time.Hour)
	expired := Relationship{Status: StatusActive, ValidUntil: &past}
	if expired.Active(now) {
		t.Error("expired relationship must be excluded from retrieval")
	}

	future := now.Add(time.Hour)
	current := Relationship{Status: StatusActive, ValidUntil: &future}
	if !current.Active(now) {
		t.Error("unexpired relationship should be visible")
	}
}

func TestFactUtilityScore(t *testing.T) {
	fact := MemoryFact{UtilityTier: TierImportant, Confidence: 1.0}
	if fact.UtilityScore() != 1.0 {
		t.Errorf("user-stated important fact should score 1.0, got %f", fact.UtilityScore())
	}

	inferred := MemoryFact{UtilityTier: TierImportant, Confidence: 0.3}
	if inferred.UtilityScore() >= fact.UtilityScore() {
		t.Error("inferred fact must score below a user-stated fact of the same tier")
	}
}
