package llm

import (
	"fmt"
	"strings"

	"github.com/mnemo-ai/mnemo/pkg/types"
)

// UtilityPrompt asks the model to grade a turn's memory-worthiness on
// the 3-level taxonomy. The model must answer with exactly one word.
func UtilityPrompt(turnText string) string {
	return fmt.Sprintf(`Rate the memory-worthiness of this conversation turn using a simplified 3-level system.

TURN:
%s

**DISCARD** - Pure acknowledgments with ZERO information
Examples: "thanks", "ok", "hi", "you're welcome", "sure", "got it"

**STORE** - Any factual information worth remembering
- Preferences, opinions, likes/dislikes
- Thoughts, feelings, or general information
- Technical discussions, tool preferences, general facts

**IMPORTANT** - Critical life facts that define the user
- Identity: name, job, company, role
- Relationships: family, friends, colleagues, partners
- Situation: where they live, major life events, state changes
- Possessions: devices owned, tools used daily

DECISION PROCESS:
1. Is there ANY content beyond greetings? NO -> DISCARD
2. Does it reveal the user's IDENTITY or LIFE SITUATION? YES -> IMPORTANT
3. Otherwise -> STORE

Respond with exactly one word: DISCARD, STORE, or IMPORTANT`, turnText)
}

// ExtractionPrompt asks the model for entities, relationships, and a
// fact-type classification in JSON.
func ExtractionPrompt(turnText string) string {
	return fmt.Sprintf(`Extract entities, relationships, and classify the fact type from the conversation turn.

TURN:
%s

Instructions:
1. Extract ALL people, places, organizations, and objects mentioned
2. Capture attributes in the "attributes" field (age, role, occupation, birthdays)
3. Identify relationships using predicate types such as:
   - Familial: SIBLING_OF, PARENT_OF, SPOUSE_OF
   - Social: FRIEND_OF, DATING, MARRIED_TO, BROKE_UP_WITH
   - Professional: WORKS_AT, MANAGES, COLLEAGUE_OF
   - Spatial (ongoing): LIVES_IN, VISITING, STAYING_AT, TRAVELING_TO
   - Spatial (completed): RETURNED_HOME, LEFT, DEPARTED, ARRIVED_AT, MOVED_TO
   - Ownership: OWNS, HAS
   - Emotional: FEELS_ABOUT, PREFERS, DISLIKES, MISSES
4. ENTITY ATTRIBUTION: use "User" ONLY for facts about the user themselves.
   "My sister Justine lives in Boston" -> subject="Justine", NOT "User".
5. TEMPORAL STATES: "left and went home" = RETURNED_HOME (completed), NOT VISITING.
6. Extract concrete facts only - do not infer or hallucinate.
7. Classify fact_type: "core" (identity, routines, family, possessions),
   "preference" (opinions, feelings), "episodic" (one-time events, plans, trips).

Output valid JSON only:
{
    "fact_type": "core|preference|episodic",
    "entities": [
        {"name": "entity name", "type": "Person|Technology|Place|Organization|Event|Concept", "attributes": {"key": "value"}}
    ],
    "relationships": [
        {"subject": "entity1", "predicate": "RELATIONSHIP_TYPE", "object": "entity2", "metadata": {"key": "value"}}
    ]
}`, turnText)
}

// SummaryPrompt asks for a one-sentence synopsis of the turn.
func SummaryPrompt(turnText string) string {
	return fmt.Sprintf(`Summarize this conversation turn in a single sentence that highlights what was discussed.

TURN:
%s

ONE SENTENCE SUMMARY:`, turnText)
}

// QueriesPrompt asks for 2-3 future questions this turn could answer.
func QueriesPrompt(turnText string) string {
	return fmt.Sprintf(`List 2-3 questions this turn could answer later. Output a JSON array of strings.

TURN:
%s

OUTPUT:`, turnText)
}

// ContradictionPrompt asks the classifier whether a new relationship
// contradicts existing facts about the same entities, considering
// temporal state transitions and semantic meaning.
func ContradictionPrompt(newRel types.Relationship, existing []types.Relationship) string {
	var sb strings.Builder
	for _, rel := range existing {
		fmt.Fprintf(&sb, `  {"id": %q, "subject": %q, "predicate": %q, "object": %q}`+"\n",
			rel.ID, rel.Subject, rel.Predicate, rel.Object)
	}

	return fmt.Sprintf(`Analyze if a new relationship contradicts existing facts, considering temporal states and semantic meaning.

NEW RELATIONSHIP:
%s

EXISTING RELATIONSHIPS (about the same entities):
[
%s]

Instructions:
1. Consider semantic contradictions, not just exact predicate matches
2. Temporal state transitions:
   - "VISITING" contradicts "RETURNED_HOME", "LEFT", "DEPARTED"
   - "SCHEDULED_FOR" contradicts "HAPPENED", "CANCELED", "RESCHEDULED"
   - "TRAVELING_TO" contradicts "ARRIVED_AT", "CANCELED_TRIP"
   - "LIVES_IN" contradicts "MOVED_TO", "RELOCATED_TO"
   - "WORKS_AT" (ongoing) contradicts "RESIGNED_FROM", "FIRED_FROM"
3. Ongoing states (visiting, working, living) are replaced by completed
   states (visited, resigned, moved); future plans by outcomes.
4. Same entities with mutually exclusive states = contradiction
5. Attribute updates (age, location) with different values = contradiction
6. Natural progressions (TRAVELING_TO -> ARRIVED_AT same place) are NOT contradictions

Output valid JSON:
{
    "contradictions": [
        {
            "existing_id": "id of contradicted fact",
            "existing_statement": "subject predicate object",
            "reason": "explanation",
            "temporal_type": "state_completion|mutual_exclusion|attribute_update|null",
            "confidence": "high|medium|low"
        }
    ]
}`, newRel.Statement(), sb.String())
}
