package memory

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
)

func fact(factType string, category core.Category, value string, confidence float64, priority core.Priority) core.Fact {
	return core.Fact{
		SessionID:         "s1",
		FactType:          factType,
		Category:          category,
		Value:             value,
		Confidence:        confidence,
		Priority:          priority,
		ConfirmationCount: 1,
	}
}

func newTestComposer(t *testing.T, mutate func(cfg *config.MemoryConfig)) *Composer {
	t.Helper()
	cfg := config.DefaultMemoryConfig()
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewComposer(cfg)
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return c
}

func session(stage core.Stage) core.Session {
	s := core.NewSession("s1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	s.Stage = stage
	s.TotalMessages = 4
	return s
}

func TestNewComposerPersonaOverBudget(t *testing.T) {
	cfg := config.DefaultMemoryConfig()
	cfg.BundleBudget = 10
	cfg.Persona = "You are a very long persona"

	_, err := NewComposer(cfg)
	assert.ErrorIs(t, err, core.ErrBudgetExceeded)
}

func TestComposeRoutesFactsToBlocks(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) { cfg.Persona = "You are Niya." })

	facts := []core.Fact{
		fact("name", core.CategoryIdentity, "Sarah", 0.9, core.PriorityCritical),
		fact("job", core.CategoryIdentity, "Google", 0.9, core.PriorityCritical),
		fact("python", core.CategoryPreference, "likes", 0.8, core.PriorityMedium),
		fact("moved_to", core.CategoryEvent, "Lisbon", 0.75, core.PriorityMedium),
		fact("mood", core.CategoryOpinion, "tired", 0.7, core.PriorityMedium),
	}

	bundle := c.Compose(session(core.StageGreeting), facts, nil)

	var labels []string
	for _, b := range bundle.Blocks {
		labels = append(labels, b.Label)
	}
	assert.Equal(t, []string{
		core.BlockPersona,
		core.BlockUserEssence,
		core.BlockRelationshipState,
		core.BlockConversationContext,
		core.BlockEmotionalContext,
	}, labels)

	persona := bundle.Blocks[0]
	assert.True(t, persona.Immutable)
	assert.Equal(t, "You are Niya.", persona.Text)

	essence, _ := bundle.Block(core.BlockUserEssence)
	assert.Equal(t, "job: Google | name: Sarah | python: likes", essence.Text)

	rel, _ := bundle.Block(core.BlockRelationshipState)
	assert.Equal(t, "stage: greeting | trust: 0.30 | messages: 4 | resets: 0", rel.Text)

	conv, _ := bundle.Block(core.BlockConversationContext)
	assert.Equal(t, "moved_to: Lisbon", conv.Text)

	emo, _ := bundle.Block(core.BlockEmotionalContext)
	assert.Equal(t, "mood: tired", emo.Text)

	assert.True(t, bundle.Includes("name"))
	assert.True(t, bundle.Includes("mood"))
	assert.LessOrEqual(t, bundle.Len(), bundle.Budget)
}

func TestComposeOmitsEmptyBlocksAndPersona(t *testing.T) {
	c := newTestComposer(t, nil)

	bundle := c.Compose(session(core.StageGreeting), nil, nil)
	require.Len(t, bundle.Blocks, 1)
	assert.Equal(t, core.BlockRelationshipState, bundle.Blocks[0].Label)
}

func TestComposeEssentialFactsSurviveTightBudget(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) {
		cfg.Blocks.UserEssence = 30
	})

	facts := []core.Fact{
		fact("python", core.CategoryPreference, "likes", 0.99, core.PriorityMedium),
		fact("dog_name", core.CategoryIdentity, "Luna", 0.85, core.PriorityMedium),
		fact("name", core.CategoryIdentity, "Sarah", 0.9, core.PriorityCritical),
		fact("job", core.CategoryIdentity, "Google", 0.9, core.PriorityCritical),
	}

	bundle := c.Compose(session(core.StageGreeting), facts, nil)
	essence, ok := bundle.Block(core.BlockUserEssence)
	require.True(t, ok)

	assert.Equal(t, "job: Google | name: Sarah", essence.Text)
	assert.True(t, bundle.Includes("name"))
	assert.True(t, bundle.Includes("job"))
	assert.False(t, bundle.Includes("python"))
}

func TestComposeTruncatesEssentialAtWordBoundary(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) {
		cfg.Blocks.UserEssence = 25
	})

	facts := []core.Fact{
		fact("job", core.CategoryIdentity, "Senior engineer at a large search company", 0.9, core.PriorityCritical),
	}

	bundle := c.Compose(session(core.StageGreeting), facts, nil)
	essence, ok := bundle.Block(core.BlockUserEssence)
	require.True(t, ok)

	assert.Equal(t, "job: Senior engineer at", essence.Text)
	assert.LessOrEqual(t, essence.Len(), 25)
	require.Len(t, bundle.Facts, 1)
	assert.True(t, bundle.Facts[0].Partial)
	assert.False(t, bundle.Includes("job"))
}

func TestComposeStageEmphasis(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) {
		cfg.Blocks.ConversationContext = 45
	})

	facts := []core.Fact{
		fact("opinion_remote_work", core.CategoryOpinion, "underrated", 0.65, core.PriorityLow),
		fact("moved_to", core.CategoryEvent, "Lisbon", 0.75, core.PriorityMedium),
		fact("started", core.CategoryEvent, "pottery classes", 0.75, core.PriorityMedium),
	}

	topic := c.Compose(session(core.StageTopicContinuation), facts, nil)
	conv, _ := topic.Block(core.BlockConversationContext)
	assert.Equal(t, "moved_to: Lisbon | started: pottery classes", conv.Text)

	deep := c.Compose(session(core.StageDeepConversation), facts, nil)
	conv, _ = deep.Block(core.BlockConversationContext)
	assert.True(t, strings.HasPrefix(conv.Text, "opinion_remote_work: underrated"), conv.Text)
}

func TestComposeDeepStageAllocatesEmotionsBeforeConversation(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) {
		cfg.BundleBudget = 60
		cfg.Blocks.UserEssence = 20
	})

	facts := []core.Fact{
		fact("name", core.CategoryIdentity, "Sarah", 0.9, core.PriorityCritical),
		fact("mood", core.CategoryOpinion, "hopeful", 0.7, core.PriorityMedium),
		fact("moved_to", core.CategoryEvent, "Lisbon after a long winter", 0.75, core.PriorityMedium),
	}

	bundle := c.Compose(session(core.StageDeepConversation), facts, nil)
	_, hasEmotion := bundle.Block(core.BlockEmotionalContext)
	assert.True(t, hasEmotion)
	assert.LessOrEqual(t, bundle.Len(), 60)
}

func timeline() []core.MessageSignal {
	return []core.MessageSignal{
		{Topics: []string{"work"}, Sentiment: core.SentimentNegative, Emotion: "anxious", Intensity: 0.6},
		{Topics: []string{"music", "work"}, Sentiment: core.SentimentPositive, Emotion: "happy", Intensity: 0.4},
		{Topics: []string{"food"}, Sentiment: core.SentimentNegative, Intensity: 0.5},
		{Topics: []string{"travel"}, Sentiment: core.SentimentPositive, Intensity: 1},
		{Sentiment: core.SentimentNeutral, Intensity: 0.5},
		{Topics: []string{"sports"}, Sentiment: core.SentimentPositive, Intensity: 1},
	}
}

func TestComposeRendersSignalSummaries(t *testing.T) {
	c := newTestComposer(t, nil)

	t.Run("without facts", func(t *testing.T) {
		bundle := c.Compose(session(core.StageTopicContinuation), nil, timeline())

		conv, ok := bundle.Block(core.BlockConversationContext)
		require.True(t, ok)
		assert.Equal(t, "Recent topics: work, music, food | User mood: negative", conv.Text)

		emo, ok := bundle.Block(core.BlockEmotionalContext)
		require.True(t, ok)
		assert.Equal(t, "Current emotion: anxious | Intensity: 0.5/1.0", emo.Text)
		assert.Empty(t, bundle.Facts)
	})

	t.Run("summary leads the facts", func(t *testing.T) {
		facts := []core.Fact{
			fact("moved_to", core.CategoryEvent, "Lisbon", 0.75, core.PriorityMedium),
			fact("mood", core.CategoryOpinion, "tired", 0.7, core.PriorityMedium),
		}
		bundle := c.Compose(session(core.StageTopicContinuation), facts, timeline())

		conv, _ := bundle.Block(core.BlockConversationContext)
		assert.Equal(t, "Recent topics: work, music, food | User mood: negative | moved_to: Lisbon", conv.Text)

		emo, _ := bundle.Block(core.BlockEmotionalContext)
		assert.Equal(t, "Current emotion: anxious | Intensity: 0.5/1.0 | mood: tired", emo.Text)

		assert.True(t, bundle.Includes("moved_to"))
		assert.True(t, bundle.Includes("mood"))
	})

	t.Run("quiet latest message", func(t *testing.T) {
		signals := append([]core.MessageSignal{{Sentiment: core.SentimentNeutral, Intensity: 0.2}}, timeline()...)
		bundle := c.Compose(session(core.StageTopicContinuation), nil, signals)

		emo, _ := bundle.Block(core.BlockEmotionalContext)
		assert.Equal(t, "Current emotion: neutral | Intensity: 0.4/1.0", emo.Text)
	})
}

func TestComposeSignalSummariesRespectBlockLimits(t *testing.T) {
	c := newTestComposer(t, func(cfg *config.MemoryConfig) {
		cfg.Blocks.ConversationContext = 80
		cfg.Blocks.EmotionalContext = 30
	})

	facts := []core.Fact{
		fact("moved_to", core.CategoryEvent, "Lisbon", 0.75, core.PriorityMedium),
		fact("started", core.CategoryEvent, "pottery classes", 0.75, core.PriorityMedium),
	}
	bundle := c.Compose(session(core.StageTopicContinuation), facts, timeline())

	conv, _ := bundle.Block(core.BlockConversationContext)
	assert.Equal(t, "Recent topics: work, music, food | moved_to: Lisbon | started: pottery classes", conv.Text)
	assert.LessOrEqual(t, conv.Len(), 80)

	emo, _ := bundle.Block(core.BlockEmotionalContext)
	assert.Equal(t, "Current emotion: anxious", emo.Text)
	assert.LessOrEqual(t, emo.Len(), 30)
}

func TestComposeNeverExceedsBudget(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	categories := []core.Category{core.CategoryIdentity, core.CategoryPreference, core.CategoryEvent, core.CategoryOpinion}
	priorities := []core.Priority{core.PriorityCritical, core.PriorityHigh, core.PriorityMedium, core.PriorityLow}
	stages := []core.Stage{core.StageGreeting, core.StageTopicContinuation, core.StageDeepConversation, core.StageClosing}

	for i := 0; i < 200; i++ {
		budget := 40 + rnd.Intn(900)
		persona := strings.Repeat("p", rnd.Intn(budget/2))
		c := newTestComposer(t, func(cfg *config.MemoryConfig) {
			cfg.BundleBudget = budget
			cfg.Persona = persona
		})

		var facts []core.Fact
		for j := 0; j < rnd.Intn(30); j++ {
			facts = append(facts, fact(
				fmt.Sprintf("fact_%d", j),
				categories[rnd.Intn(len(categories))],
				strings.Repeat("wörd ", 1+rnd.Intn(20)),
				rnd.Float64(),
				priorities[rnd.Intn(len(priorities))],
			))
		}

		var signals []core.MessageSignal
		for j := 0; j < rnd.Intn(8); j++ {
			signals = append(signals, core.MessageSignal{
				Topics:    []string{"music", "work", "technology", "education"}[:rnd.Intn(5)],
				Sentiment: []core.Sentiment{core.SentimentPositive, core.SentimentNegative, core.SentimentNeutral}[rnd.Intn(3)],
				Emotion:   []string{"", "happy", "anxious"}[rnd.Intn(3)],
				Intensity: rnd.Float64(),
			})
		}

		bundle := c.Compose(session(stages[rnd.Intn(len(stages))]), facts, signals)
		require.LessOrEqual(t, bundle.Len(), budget)
		for _, b := range bundle.Blocks {
			if !b.Immutable {
				require.LessOrEqual(t, b.Len(), b.MaxLength)
			}
		}
		if persona != "" {
			require.Equal(t, persona, bundle.Blocks[0].Text)
		}
	}
}

func TestTruncateWords(t *testing.T) {
	assert.Equal(t, "short", truncateWords("short", 10))
	assert.Equal(t, "hello", truncateWords("hello world", 8))
	assert.Equal(t, "abcdefgh", truncateWords("abcdefghij", 8))
	assert.Equal(t, "", truncateWords("anything", 0))
	assert.Equal(t, 4, utf8.RuneCountInString(truncateWords("ééééé", 4)))
}
