package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandevgo/recall/internal/core"
)

func TestPatternExtractor(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []core.Candidate
	}{
		{
			name:  "name",
			input: "My name is Sarah",
			expected: []core.Candidate{
				{FactType: "name", Category: core.CategoryIdentity, Value: "Sarah", Confidence: 0.9, Priority: core.PriorityCritical},
			},
		},
		{
			name:  "job",
			input: "I work at Google",
			expected: []core.Candidate{
				{FactType: "job", Category: core.CategoryIdentity, Value: "Google", Confidence: 0.9, Priority: core.PriorityCritical},
			},
		},
		{
			name:  "job with filler",
			input: "Actually I work at Meta now",
			expected: []core.Candidate{
				{FactType: "job", Category: core.CategoryIdentity, Value: "Meta", Confidence: 0.9, Priority: core.PriorityCritical},
			},
		},
		{
			name:  "preference bucket",
			input: "I love Python",
			expected: []core.Candidate{
				{FactType: "python", Category: core.CategoryPreference, Value: "likes", Confidence: 0.8, Priority: core.PriorityMedium},
			},
		},
		{
			name:  "negative preference",
			input: "I really don't like the rain",
			expected: []core.Candidate{
				{FactType: "rain", Category: core.CategoryPreference, Value: "dislikes", Confidence: 0.8, Priority: core.PriorityMedium},
			},
		},
		{
			name:  "pet",
			input: "I have a dog named Luna",
			expected: []core.Candidate{
				{FactType: "dog_name", Category: core.CategoryIdentity, Value: "Luna", Confidence: 0.85, Priority: core.PriorityMedium},
			},
		},
		{
			name:  "two facts in one sentence",
			input: "My name is Sarah and I work at Google.",
			expected: []core.Candidate{
				{FactType: "name", Category: core.CategoryIdentity, Value: "Sarah", Confidence: 0.9, Priority: core.PriorityCritical},
				{FactType: "job", Category: core.CategoryIdentity, Value: "Google", Confidence: 0.9, Priority: core.PriorityCritical},
			},
		},
		{
			name:  "location and age",
			input: "I'm 29 years old. I live in Berlin these days!",
			expected: []core.Candidate{
				{FactType: "age", Category: core.CategoryIdentity, Value: "29", Confidence: 0.9, Priority: core.PriorityHigh},
				{FactType: "location", Category: core.CategoryIdentity, Value: "Berlin", Confidence: 0.9, Priority: core.PriorityHigh},
			},
		},
		{
			name:  "favorite",
			input: "My favorite color is dark green",
			expected: []core.Candidate{
				{FactType: "favorite_color", Category: core.CategoryPreference, Value: "dark green", Confidence: 0.85, Priority: core.PriorityHigh},
			},
		},
		{
			name:  "mood",
			input: "I'm feeling really tired today",
			expected: []core.Candidate{
				{FactType: "mood", Category: core.CategoryOpinion, Value: "tired", Confidence: 0.7, Priority: core.PriorityMedium},
			},
		},
		{
			name:  "event",
			input: "I just moved to Lisbon, it is lovely",
			expected: []core.Candidate{
				{FactType: "moved_to", Category: core.CategoryEvent, Value: "Lisbon", Confidence: 0.75, Priority: core.PriorityMedium},
			},
		},
		{
			name:  "opinion",
			input: "I think remote work is underrated",
			expected: []core.Candidate{
				{FactType: "opinion_remote_work", Category: core.CategoryOpinion, Value: "underrated", Confidence: 0.65, Priority: core.PriorityLow},
			},
		},
		{
			name:  "curly apostrophe",
			input: "I’m working as a nurse",
			expected: []core.Candidate{
				{FactType: "occupation", Category: core.CategoryIdentity, Value: "nurse", Confidence: 0.9, Priority: core.PriorityHigh},
			},
		},
		{
			name:     "pronoun objects are ignored",
			input:    "I like you",
			expected: nil,
		},
		{
			name:     "no facts",
			input:    "What a lovely day!",
			expected: nil,
		},
		{
			name:     "empty",
			input:    "",
			expected: nil,
		},
	}

	extractor := NewPatternExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractor.Extract(tt.input))
		})
	}
}

func TestPatternExtractorFirstRuleWins(t *testing.T) {
	got := NewPatternExtractor().Extract("My name is Sarah. Call me Sam")
	if assert.Len(t, got, 1) {
		assert.Equal(t, "Sarah", got[0].Value)
	}
}

func TestCleanValue(t *testing.T) {
	tests := map[string]string{
		"Google":                      "Google",
		"Meta now":                    "Meta",
		"Google, but not for long":    "Google",
		"the startup because I can":   "the startup",
		"  Berlin!  ":                 "Berlin",
		"C++ too":                     "C++",
		"so":                          "",
		"New York currently actually": "New York",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanValue(in), in)
	}
}
