package core

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func existingFact(value string, confidence float64, confirmations int) *Fact {
	return &Fact{
		SessionID:         "s1",
		FactType:          "job",
		Category:          CategoryIdentity,
		Value:             value,
		Confidence:        confidence,
		Priority:          PriorityCritical,
		ConfirmationCount: confirmations,
		CreatedAt:         testNow.Add(-time.Hour),
		UpdatedAt:         testNow.Add(-time.Hour),
	}
}

func jobCandidate(value string, confidence float64) Candidate {
	return Candidate{
		FactType:   "job",
		Category:   CategoryIdentity,
		Value:      value,
		Confidence: confidence,
		Priority:   PriorityCritical,
	}
}

func TestMergeCreated(t *testing.T) {
	fact, res, err := DefaultMergePolicy().Merge(nil, "s1", jobCandidate(" Google ", 0.9), testNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreated, res.Outcome)
	assert.Equal(t, "Google", fact.Value)
	assert.Equal(t, 0.9, fact.Confidence)
	assert.Equal(t, 1, fact.ConfirmationCount)
	assert.Equal(t, "s1", fact.SessionID)
	assert.Equal(t, testNow, fact.CreatedAt)
}

func TestMergeReinforced(t *testing.T) {
	tests := []struct {
		name     string
		old      float64
		base     float64
		expected float64
	}{
		{name: "average plus bonus", old: 0.6, base: 0.8, expected: 0.8},
		{name: "capped at one", old: 0.95, base: 0.95, expected: 1},
		{name: "never decreases", old: 0.9, base: 0.2, expected: 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fact, res, err := DefaultMergePolicy().Merge(existingFact("Google", tt.old, 2), "s1", jobCandidate("google", tt.base), testNow)
			require.NoError(t, err)

			assert.Equal(t, OutcomeReinforced, res.Outcome)
			assert.InDelta(t, tt.expected, fact.Confidence, 1e-9)
			assert.GreaterOrEqual(t, fact.Confidence, tt.old)
			assert.Equal(t, 3, fact.ConfirmationCount)
			assert.Equal(t, "Google", fact.Value)
			assert.Empty(t, fact.ContradictionLog)
		})
	}
}

func TestMergeContradictionReplaced(t *testing.T) {
	old := existingFact("Google", 0.6, 3)
	fact, res, err := DefaultMergePolicy().Merge(old, "s1", jobCandidate("Meta", 0.9), testNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeReplaced, res.Outcome)
	assert.Equal(t, "Google", res.OldValue)
	assert.Equal(t, "Meta", fact.Value)
	assert.Equal(t, 0.9, fact.Confidence)
	assert.Equal(t, 1, fact.ConfirmationCount)
	require.Len(t, fact.ContradictionLog, 1)
	assert.Equal(t, "Google", fact.ContradictionLog[0].Value)
	assert.Equal(t, 0.6, fact.ContradictionLog[0].Confidence)

	// input is not mutated
	assert.Equal(t, "Google", old.Value)
	assert.Empty(t, old.ContradictionLog)
}

func TestMergeContradictionKept(t *testing.T) {
	fact, res, err := DefaultMergePolicy().Merge(existingFact("Google", 0.6, 1), "s1", jobCandidate("Meta", 0.75), testNow)
	require.NoError(t, err)

	assert.Equal(t, OutcomeKept, res.Outcome)
	assert.NotEmpty(t, res.Reason)
	assert.Equal(t, "Google", fact.Value)
	assert.Equal(t, 0.6, fact.Confidence)
	assert.Equal(t, 1, fact.ConfirmationCount)
	require.Len(t, fact.ContradictionLog, 1)
	assert.Equal(t, "Meta", fact.ContradictionLog[0].Value)
}

func TestMergeContradictionMarginBoundary(t *testing.T) {
	tests := []struct {
		name     string
		existing float64
		next     float64
		want     UpdateOutcome
	}{
		{"exactly margin from 0.7", 0.7, 0.9, OutcomeKept},
		{"exactly margin from 0.5", 0.5, 0.7, OutcomeKept},
		{"exactly margin from 0.6", 0.6, 0.8, OutcomeKept},
		{"exactly margin from 0.1", 0.1, 0.3, OutcomeKept},
		{"just above margin", 0.7, 0.91, OutcomeReplaced},
		{"well above margin", 0.6, 0.9, OutcomeReplaced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, res, err := DefaultMergePolicy().Merge(existingFact("Google", tt.existing, 1), "s1", jobCandidate("Meta", tt.next), testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestMergeContradictionLogBounded(t *testing.T) {
	p := DefaultMergePolicy()
	p.MaxContradictions = 2

	fact := existingFact("Google", 0.9, 1)
	for _, v := range []string{"A", "B", "C"} {
		next, _, err := p.Merge(fact, "s1", jobCandidate(v, 0.5), testNow)
		require.NoError(t, err)
		fact = &next
	}

	require.Len(t, fact.ContradictionLog, 2)
	assert.Equal(t, "B", fact.ContradictionLog[0].Value)
	assert.Equal(t, "C", fact.ContradictionLog[1].Value)
}

func TestMergeInvalidCandidate(t *testing.T) {
	tests := []struct {
		name string
		cand Candidate
		err  error
	}{
		{name: "above one", cand: jobCandidate("x", 1.2), err: ErrInvalidConfidence},
		{name: "negative", cand: jobCandidate("x", -0.1), err: ErrInvalidConfidence},
		{name: "nan", cand: jobCandidate("x", math.NaN()), err: ErrInvalidConfidence},
		{name: "empty value", cand: jobCandidate("  ", 0.5), err: ErrInvalidCandidate},
		{name: "bad category", cand: Candidate{FactType: "x", Category: "misc", Value: "y", Confidence: 0.5}, err: ErrInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DefaultMergePolicy().Merge(nil, "s1", tt.cand, testNow)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMaintenanceRulesApply(t *testing.T) {
	rules := DefaultMaintenanceRules()

	weak := &Fact{Confidence: 0.2, ConfirmationCount: 1, Priority: PriorityMedium}
	prune, _ := rules.Apply(weak, testNow)
	assert.True(t, prune)

	weakCritical := &Fact{Confidence: 0.2, ConfirmationCount: 1, Priority: PriorityCritical}
	prune, _ = rules.Apply(weakCritical, testNow)
	assert.False(t, prune)

	confirmed := &Fact{Confidence: 0.95, ConfirmationCount: 3, Priority: PriorityLow}
	prune, boosted := rules.Apply(confirmed, testNow)
	assert.False(t, prune)
	assert.True(t, boosted)
	assert.Equal(t, 1.0, confirmed.Confidence)
}

func TestHealthOverallAndNeutral(t *testing.T) {
	h := NeutralHealth("s1", testNow)
	assert.Equal(t, NeutralScore, h.Overall())

	h.RetentionScore = 1
	h.ConsistencyScore = 1
	assert.InDelta(t, 0.75, h.Overall(), 1e-9)
}

func TestBundleLenCountsRunes(t *testing.T) {
	b := MemoryBundle{Blocks: []MemoryBlock{{Label: BlockPersona, Text: "héllo"}, {Label: BlockUserEssence, Text: "ab"}}}
	assert.Equal(t, 7, b.Len())

	block, ok := b.Block(BlockUserEssence)
	require.True(t, ok)
	assert.Equal(t, "ab", block.Text)
}

func TestBundleRender(t *testing.T) {
	b := MemoryBundle{Blocks: []MemoryBlock{
		{Label: BlockPersona, Text: "You are Niya."},
		{Label: BlockUserEssence, Text: "name: Sarah | job: Google"},
		{Label: BlockEmotionalContext, Text: "mood: tired"},
	}}

	assert.Equal(t, "You are Niya.\n\n[user_essence]\nname: Sarah | job: Google\n\n[emotional_context]\nmood: tired", b.Render())
	assert.Empty(t, MemoryBundle{}.Render())
}
