package memory

import (
	"strings"

	"github.com/sandevgo/recall/internal/core"
)

const (
	trustPerMessage = 0.02
	trustDeepBonus  = 0.05
)

var (
	closingPhrases = []string{"bye", "goodbye", "good night", "goodnight", "see you", "talk later", "ttyl", "gotta go", "have to go"}
	deepWords      = map[string]bool{
		"feel": true, "feeling": true, "feelings": true, "emotion": true, "emotions": true,
		"sad": true, "happy": true, "worried": true, "afraid": true, "lonely": true,
		"dream": true, "dreams": true, "future": true, "relationship": true, "love": true,
		"life": true, "meaning": true,
	}
)

// DetectStage classifies a message given how many messages the session has seen, this one included.
func DetectStage(text string, totalMessages int) core.Stage {
	lower := strings.ToLower(text)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r == '\'')
	})

	for _, phrase := range closingPhrases {
		if containsPhrase(words, strings.Fields(phrase)) {
			return core.StageClosing
		}
	}
	if totalMessages <= 2 {
		return core.StageGreeting
	}
	for _, w := range words {
		if deepWords[w] {
			return core.StageDeepConversation
		}
	}
	return core.StageTopicContinuation
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// NextTrust grows trust slowly with every message and faster in deep conversations.
func NextTrust(current float64, stage core.Stage) float64 {
	next := current + trustPerMessage
	if stage == core.StageDeepConversation {
		next += trustDeepBonus
	}
	return core.Clamp(next)
}
