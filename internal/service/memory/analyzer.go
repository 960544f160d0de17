package memory

import (
	"regexp"
	"strings"

	"github.com/sandevgo/recall/internal/core"
)

type lexicon struct {
	label string
	words []string
}

var emotionLexicon = []lexicon{
	{"happy", []string{"happy", "joy", "excited", "great", "amazing", "wonderful"}},
	{"sad", []string{"sad", "down", "depressed", "upset", "disappointed"}},
	{"angry", []string{"angry", "mad", "frustrated", "annoyed", "furious"}},
	{"anxious", []string{"worried", "anxious", "nervous", "stressed", "concerned"}},
	{"love", []string{"love", "adore", "cherish", "care", "affection"}},
}

var topicLexicon = []lexicon{
	{"music", []string{"music", "song", "sing", "dance", "beat", "guitar", "piano", "band"}},
	{"love", []string{"love", "relationship", "romantic", "heart", "feelings", "dating"}},
	{"work", []string{"work", "job", "career", "office", "boss", "colleague", "business"}},
	{"family", []string{"family", "mother", "father", "sister", "brother", "parents"}},
	{"hobbies", []string{"hobby", "activity", "fun", "enjoy", "interest", "passion"}},
	{"travel", []string{"travel", "trip", "vacation", "visit", "journey", "explore"}},
	{"food", []string{"food", "eat", "cook", "restaurant", "meal", "dinner"}},
	{"technology", []string{"tech", "computer", "phone", "app", "software", "internet"}},
	{"sports", []string{"sport", "game", "play", "team", "exercise", "fitness"}},
	{"education", []string{"school", "study", "learn", "university", "college", "education"}},
}

var (
	positiveWords = []string{"good", "great", "happy", "love", "amazing", "wonderful"}
	negativeWords = []string{"bad", "sad", "hate", "terrible", "awful", "horrible"}
)

const neutralIntensity = 0.5

var wordSplit = regexp.MustCompile(`[^\p{L}']+`)

// KeywordAnalyzer scores tone and topics by whole-word keyword hits.
type KeywordAnalyzer struct {
	emotions []lexicon
	topics   []lexicon
	positive []string
	negative []string
}

var _ core.Analyzer = (*KeywordAnalyzer)(nil)

func NewKeywordAnalyzer() *KeywordAnalyzer {
	return &KeywordAnalyzer{
		emotions: emotionLexicon,
		topics:   topicLexicon,
		positive: positiveWords,
		negative: negativeWords,
	}
}

func (a *KeywordAnalyzer) Analyze(text string) core.MessageSignal {
	words := tokenize(text)
	sig := core.MessageSignal{Sentiment: core.SentimentNeutral, Intensity: neutralIntensity}

	pos, neg := hits(words, a.positive), hits(words, a.negative)
	switch {
	case pos > neg:
		sig.Sentiment = core.SentimentPositive
		sig.Intensity = min(float64(pos)/3, 1)
	case neg > pos:
		sig.Sentiment = core.SentimentNegative
		sig.Intensity = min(float64(neg)/3, 1)
	}

	best := 0
	for _, e := range a.emotions {
		if n := hits(words, e.words); n > best {
			best, sig.Emotion = n, e.label
		}
	}

	for _, t := range a.topics {
		if hits(words, t.words) > 0 {
			sig.Topics = append(sig.Topics, t.label)
		}
	}
	return sig
}

// tokenize lowercases text into a word set. A trailing plural "s" is also
// indexed, so "songs" matches "song".
func tokenize(text string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range wordSplit.Split(strings.ToLower(text), -1) {
		w = strings.Trim(w, "'")
		if w == "" {
			continue
		}
		words[w] = struct{}{}
		if len(w) > 3 && strings.HasSuffix(w, "s") {
			words[strings.TrimSuffix(w, "s")] = struct{}{}
		}
	}
	return words
}

func hits(words map[string]struct{}, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if _, ok := words[k]; ok {
			n++
		}
	}
	return n
}
