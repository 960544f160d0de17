package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sandevgo/recall/internal/core"
)

func TestKeywordAnalyzer(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		sentiment core.Sentiment
		emotion   string
		intensity float64
		topics    []string
	}{
		{
			name:      "neutral small talk",
			input:     "What time is it?",
			sentiment: core.SentimentNeutral,
			intensity: 0.5,
		},
		{
			name:      "positive with topic",
			input:     "I had a great day, the new song is amazing!",
			sentiment: core.SentimentPositive,
			emotion:   "happy",
			intensity: 2.0 / 3,
			topics:    []string{"music"},
		},
		{
			name:      "negative saturates",
			input:     "Bad, terrible, awful, horrible week at the office",
			sentiment: core.SentimentNegative,
			intensity: 1,
			topics:    []string{"work"},
		},
		{
			name:      "anxious about work",
			input:     "I'm so stressed and worried about my boss",
			sentiment: core.SentimentNeutral,
			emotion:   "anxious",
			intensity: 0.5,
			topics:    []string{"work"},
		},
		{
			name:      "plural and several topics",
			input:     "My parents cooked dinner and we played games",
			sentiment: core.SentimentNeutral,
			intensity: 0.5,
			topics:    []string{"family", "food", "sports"},
		},
		{
			name:      "substring is not a word",
			input:     "The workshop was in Madrid",
			sentiment: core.SentimentNeutral,
			intensity: 0.5,
		},
	}

	a := NewKeywordAnalyzer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := a.Analyze(tt.input)
			assert.Equal(t, tt.sentiment, sig.Sentiment)
			assert.Equal(t, tt.emotion, sig.Emotion)
			assert.InDelta(t, tt.intensity, sig.Intensity, 1e-9)
			assert.Equal(t, tt.topics, sig.Topics)
		})
	}
}

func TestKeywordAnalyzerEmotionTieKeepsTableOrder(t *testing.T) {
	sig := NewKeywordAnalyzer().Analyze("sad but excited")
	assert.Equal(t, "happy", sig.Emotion)
}
