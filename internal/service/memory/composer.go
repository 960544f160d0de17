package memory

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
)

const delimiter = " | "

// blockOrder is the order blocks appear in a rendered bundle.
var blockOrder = []string{
	core.BlockPersona,
	core.BlockUserEssence,
	core.BlockRelationshipState,
	core.BlockConversationContext,
	core.BlockEmotionalContext,
}

// allocationOrder decides which block gets space first when the budget is tight.
var allocationOrder = map[core.Stage][]string{
	core.StageGreeting:          {core.BlockUserEssence, core.BlockRelationshipState, core.BlockConversationContext, core.BlockEmotionalContext},
	core.StageTopicContinuation: {core.BlockUserEssence, core.BlockConversationContext, core.BlockRelationshipState, core.BlockEmotionalContext},
	core.StageDeepConversation:  {core.BlockUserEssence, core.BlockEmotionalContext, core.BlockConversationContext, core.BlockRelationshipState},
	core.StageClosing:           {core.BlockUserEssence, core.BlockRelationshipState, core.BlockEmotionalContext, core.BlockConversationContext},
}

var stageEmphasis = map[core.Stage][]core.Category{
	core.StageGreeting:          {core.CategoryIdentity, core.CategoryPreference, core.CategoryEvent, core.CategoryOpinion},
	core.StageTopicContinuation: {core.CategoryEvent, core.CategoryOpinion, core.CategoryPreference, core.CategoryIdentity},
	core.StageDeepConversation:  {core.CategoryOpinion, core.CategoryEvent, core.CategoryPreference, core.CategoryIdentity},
	core.StageClosing:           {core.CategoryIdentity, core.CategoryPreference, core.CategoryEvent, core.CategoryOpinion},
}

// Composer renders memory bundles within a fixed character budget.
type Composer struct {
	budget  int
	persona string
	limits  map[string]int
	now     func() time.Time
}

func NewComposer(cfg *config.MemoryConfig) (*Composer, error) {
	persona := cfg.Persona
	if n := utf8.RuneCountInString(persona); n > cfg.BundleBudget {
		return nil, fmt.Errorf("%w: persona is %d characters, budget is %d", core.ErrBudgetExceeded, n, cfg.BundleBudget)
	}

	return &Composer{
		budget:  cfg.BundleBudget,
		persona: persona,
		limits: map[string]int{
			core.BlockUserEssence:         cfg.Blocks.UserEssence,
			core.BlockRelationshipState:   cfg.Blocks.RelationshipState,
			core.BlockConversationContext: cfg.Blocks.ConversationContext,
			core.BlockEmotionalContext:    cfg.Blocks.EmotionalContext,
		},
		now: time.Now,
	}, nil
}

func blockFor(f core.Fact) string {
	if f.FactType == "mood" {
		return core.BlockEmotionalContext
	}
	switch f.Category {
	case core.CategoryIdentity, core.CategoryPreference:
		return core.BlockUserEssence
	default:
		return core.BlockConversationContext
	}
}

const (
	moodWindow    = 5
	emotionWindow = 3
	maxTopics     = 3
)

// Compose is deterministic for a given session, fact set and signal timeline.
// signals are ordered newest first.
func (c *Composer) Compose(sess core.Session, facts []core.Fact, signals []core.MessageSignal) core.MemoryBundle {
	stage := sess.Stage
	if _, ok := allocationOrder[stage]; !ok {
		stage = core.StageTopicContinuation
	}

	bundle := core.MemoryBundle{
		Budget:     c.budget,
		Stage:      sess.Stage,
		ComposedAt: c.now(),
	}

	routed := make(map[string][]core.Fact)
	for _, f := range facts {
		label := blockFor(f)
		routed[label] = append(routed[label], f)
	}

	rendered := make(map[string]core.MemoryBlock)
	remaining := c.budget
	if c.persona != "" {
		rendered[core.BlockPersona] = core.MemoryBlock{
			Label:     core.BlockPersona,
			Text:      c.persona,
			MaxLength: utf8.RuneCountInString(c.persona),
			Immutable: true,
		}
		remaining -= utf8.RuneCountInString(c.persona)
	}

	for _, label := range allocationOrder[stage] {
		limit := min(c.limits[label], remaining)
		if limit <= 0 {
			continue
		}

		var (
			text     string
			included []core.BundleFact
		)
		switch label {
		case core.BlockRelationshipState:
			text = truncateWords(relationshipText(sess), limit)
		case core.BlockConversationContext:
			text, included = renderWithSummary(conversationSummary(signals), label, orderFacts(routed[label], stage), limit)
		case core.BlockEmotionalContext:
			text, included = renderWithSummary(emotionalSummary(signals), label, orderFacts(routed[label], stage), limit)
		default:
			text, included = renderFacts(label, orderFacts(routed[label], stage), limit)
		}
		if text == "" {
			continue
		}

		rendered[label] = core.MemoryBlock{Label: label, Text: text, MaxLength: c.limits[label]}
		bundle.Facts = append(bundle.Facts, included...)
		remaining -= utf8.RuneCountInString(text)
	}

	for _, label := range blockOrder {
		if block, ok := rendered[label]; ok {
			bundle.Blocks = append(bundle.Blocks, block)
		}
	}
	return bundle
}

// orderFacts puts critical and high facts first, then the rest by stage emphasis and confidence.
func orderFacts(facts []core.Fact, stage core.Stage) []core.Fact {
	emphasis := make(map[core.Category]int)
	for i, cat := range stageEmphasis[stage] {
		emphasis[cat] = i
	}

	ordered := append([]core.Fact(nil), facts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority.Essential() != b.Priority.Essential() {
			return a.Priority.Essential()
		}
		if a.Priority.Essential() && a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if emphasis[a.Category] != emphasis[b.Category] {
			return emphasis[a.Category] < emphasis[b.Category]
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.FactType < b.FactType
	})
	return ordered
}

// renderFacts joins facts until limit is reached. An essential fact that does not
// fit is truncated at a word boundary and ends the block; others are skipped.
func renderFacts(label string, facts []core.Fact, limit int) (string, []core.BundleFact) {
	var (
		sb       strings.Builder
		used     int
		included []core.BundleFact
	)
	for _, f := range facts {
		entry := f.FactType + ": " + f.Value
		sep := 0
		if used > 0 {
			sep = utf8.RuneCountInString(delimiter)
		}
		size := utf8.RuneCountInString(entry)

		if used+sep+size <= limit {
			if sep > 0 {
				sb.WriteString(delimiter)
			}
			sb.WriteString(entry)
			used += sep + size
			included = append(included, bundleFact(f, label, false))
			continue
		}

		if !f.Priority.Essential() {
			continue
		}
		room := limit - used - sep
		if partial := truncateWords(entry, room); partial != "" {
			if sep > 0 {
				sb.WriteString(delimiter)
			}
			sb.WriteString(partial)
			included = append(included, bundleFact(f, label, true))
		}
		break
	}
	return sb.String(), included
}

// renderWithSummary puts the signal summary ahead of the facts. Summary parts are
// kept whole. When facts are present the summary is held to half the limit.
func renderWithSummary(parts []string, label string, facts []core.Fact, limit int) (string, []core.BundleFact) {
	if len(parts) == 0 {
		return renderFacts(label, facts, limit)
	}
	if len(facts) == 0 {
		if summary := joinWithin(parts, limit); summary != "" {
			return summary, nil
		}
		return truncateWords(parts[0], limit), nil
	}

	summary := joinWithin(parts, limit/2)
	if summary == "" {
		return renderFacts(label, facts, limit)
	}
	room := limit - utf8.RuneCountInString(summary) - utf8.RuneCountInString(delimiter)
	text, included := renderFacts(label, facts, room)
	if text == "" {
		return summary, nil
	}
	return summary + delimiter + text, included
}

// joinWithin joins leading parts while the result stays within limit.
func joinWithin(parts []string, limit int) string {
	var out string
	for _, p := range parts {
		next := p
		if out != "" {
			next = out + delimiter + p
		}
		if utf8.RuneCountInString(next) > limit {
			break
		}
		out = next
	}
	return out
}

// conversationSummary names the recent topics and the dominant sentiment of the
// last few messages.
func conversationSummary(signals []core.MessageSignal) []string {
	window := signals[:min(len(signals), moodWindow)]
	if len(window) == 0 {
		return nil
	}

	var (
		topics []string
		seen   = make(map[string]struct{})
		counts = make(map[core.Sentiment]int)
		mood   core.Sentiment
	)
	for _, sig := range window {
		for _, topic := range sig.Topics {
			if _, ok := seen[topic]; ok || len(topics) == maxTopics {
				continue
			}
			seen[topic] = struct{}{}
			topics = append(topics, topic)
		}
		counts[sig.Sentiment]++
		if counts[sig.Sentiment] > counts[mood] {
			mood = sig.Sentiment
		}
	}

	var parts []string
	if len(topics) > 0 {
		parts = append(parts, "Recent topics: "+strings.Join(topics, ", "))
	}
	if mood != "" {
		parts = append(parts, "User mood: "+string(mood))
	}
	return parts
}

// emotionalSummary reports the latest emotion and the mean intensity of the last
// few messages.
func emotionalSummary(signals []core.MessageSignal) []string {
	window := signals[:min(len(signals), emotionWindow)]
	if len(window) == 0 {
		return nil
	}

	emotion := window[0].Emotion
	if emotion == "" {
		emotion = string(core.SentimentNeutral)
	}
	var sum float64
	for _, sig := range window {
		sum += sig.Intensity
	}
	return []string{
		"Current emotion: " + emotion,
		fmt.Sprintf("Intensity: %.1f/1.0", sum/float64(len(window))),
	}
}

func bundleFact(f core.Fact, label string, partial bool) core.BundleFact {
	return core.BundleFact{
		FactType: f.FactType,
		Value:    f.Value,
		Priority: f.Priority,
		Block:    label,
		Partial:  partial,
	}
}

func relationshipText(sess core.Session) string {
	return strings.Join([]string{
		"stage: " + string(sess.Stage),
		fmt.Sprintf("trust: %.2f", sess.TrustLevel),
		fmt.Sprintf("messages: %d", sess.TotalMessages),
		fmt.Sprintf("resets: %d", sess.ResetCount),
	}, delimiter)
}

// truncateWords shortens s to at most limit characters, cutting at a space when one
// exists in the second half of the allowed range.
func truncateWords(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > 0 && utf8.RuneCountInString(cut[:i]) >= limit/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " |:,")
}
