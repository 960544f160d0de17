package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	AppName          = "recall"
	AppVersion       = "0.2.0"
	AppRepositoryURL = "https://github.com/sandevgo/recall"
)

type Stage string

const (
	StageGreeting          Stage = "greeting"
	StageTopicContinuation Stage = "topic_continuation"
	StageDeepConversation  Stage = "deep_conversation"
	StageClosing           Stage = "closing"
)

// ContextState tracks the lifecycle of a session's execution context.
type ContextState string

const (
	ContextActive        ContextState = "ACTIVE"
	ContextResetting     ContextState = "RESETTING"
	ContextReinitialized ContextState = "REINITIALIZED"
	ContextNeedsInit     ContextState = "NEEDS_REINITIALIZATION"
)

type Session struct {
	ID                     string       `json:"session_id"`
	Stage                  Stage        `json:"stage"`
	TrustLevel             float64      `json:"trust_level"`
	MessageCountSinceReset int          `json:"message_count_since_reset"`
	TotalMessages          int          `json:"total_messages"`
	ResetCount             int          `json:"reset_count"`
	ContextHandle          string       `json:"context_handle,omitempty"`
	ContextState           ContextState `json:"context_state"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
	LastResetAt            *time.Time   `json:"last_reset_at,omitempty"`
}

// NewSession returns a session that has not been bound to an execution context yet.
func NewSession(id string, now time.Time) Session {
	return Session{
		ID:           id,
		Stage:        StageGreeting,
		TrustLevel:   InitialTrust,
		ContextState: ContextNeedsInit,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

const InitialTrust = 0.3

type Category string

const (
	CategoryIdentity   Category = "identity"
	CategoryPreference Category = "preference"
	CategoryEvent      Category = "event"
	CategoryOpinion    Category = "opinion"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryIdentity, CategoryPreference, CategoryEvent, CategoryOpinion:
		return true
	}
	return false
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities, higher is more important.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Essential reports whether facts of this priority must survive every reset.
func (p Priority) Essential() bool {
	return p == PriorityCritical || p == PriorityHigh
}

type Contradiction struct {
	Value      string    `json:"value"`
	Confidence float64   `json:"confidence"`
	RecordedAt time.Time `json:"recorded_at"`
}

type Fact struct {
	SessionID         string          `json:"session_id"`
	FactType          string          `json:"fact_type"`
	Category          Category        `json:"category"`
	Value             string          `json:"value"`
	Confidence        float64         `json:"confidence"`
	Priority          Priority        `json:"priority"`
	ConfirmationCount int             `json:"confirmation_count"`
	ContradictionLog  []Contradiction `json:"contradiction_log,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Candidate is a fact observation produced by an Extractor.
type Candidate struct {
	FactType   string   `json:"fact_type"`
	Category   Category `json:"category"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Priority   Priority `json:"priority"`
}

type UpdateOutcome string

const (
	OutcomeCreated    UpdateOutcome = "created"
	OutcomeReinforced UpdateOutcome = "reinforced"
	OutcomeReplaced   UpdateOutcome = "contradicted_and_replaced"
	OutcomeKept       UpdateOutcome = "contradicted_and_kept"
)

type FactUpdateResult struct {
	Outcome       UpdateOutcome `json:"outcome"`
	Fact          Fact          `json:"fact"`
	NewConfidence float64       `json:"new_confidence,omitempty"`
	OldValue      string        `json:"old_value,omitempty"`
	Reason        string        `json:"reason,omitempty"`
}

// Learned reports whether the update added or strengthened knowledge.
func (r FactUpdateResult) Learned() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeReinforced || r.Outcome == OutcomeReplaced
}

type MaintenanceRules struct {
	PruneBelow      float64
	BoostAfter      int
	BoostAmount     float64
	PrunePriorities []Priority
}

type MaintenanceResult struct {
	Pruned  int `json:"pruned"`
	Boosted int `json:"boosted"`
}

const (
	BlockPersona             = "persona"
	BlockUserEssence         = "user_essence"
	BlockRelationshipState   = "relationship_state"
	BlockConversationContext = "conversation_context"
	BlockEmotionalContext    = "emotional_context"
)

type MemoryBlock struct {
	Label     string `json:"label"`
	Text      string `json:"text"`
	MaxLength int    `json:"max_length"`
	Immutable bool   `json:"immutable"`
}

// Len is the rendered size of the block in characters.
func (b MemoryBlock) Len() int {
	return utf8.RuneCountInString(b.Text)
}

// BundleFact records which fact made it into a bundle.
type BundleFact struct {
	FactType string   `json:"fact_type"`
	Value    string   `json:"value"`
	Priority Priority `json:"priority"`
	Block    string   `json:"block"`
	Partial  bool     `json:"partial,omitempty"`
}

type MemoryBundle struct {
	Blocks     []MemoryBlock `json:"blocks"`
	Budget     int           `json:"budget"`
	Stage      Stage         `json:"stage"`
	Facts      []BundleFact  `json:"facts,omitempty"`
	ComposedAt time.Time     `json:"composed_at"`
}

func (b MemoryBundle) Len() int {
	total := 0
	for _, block := range b.Blocks {
		total += block.Len()
	}
	return total
}

func (b MemoryBundle) Block(label string) (MemoryBlock, bool) {
	for _, block := range b.Blocks {
		if block.Label == label {
			return block, true
		}
	}
	return MemoryBlock{}, false
}

// Render formats the bundle as a system prompt. The persona comes first,
// verbatim; every other block is introduced by its label.
func (b MemoryBundle) Render() string {
	parts := make([]string, 0, len(b.Blocks))
	for _, block := range b.Blocks {
		if block.Label == BlockPersona {
			parts = append(parts, block.Text)
			continue
		}
		parts = append(parts, "["+block.Label+"]\n"+block.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Includes reports whether the fact type was rendered in full.
func (b MemoryBundle) Includes(factType string) bool {
	for _, f := range b.Facts {
		if f.FactType == factType && !f.Partial {
			return true
		}
	}
	return false
}

type HealthRecord struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	RetentionScore   float64   `json:"retention_score"`
	ConsistencyScore float64   `json:"consistency_score"`
	LearningVelocity float64   `json:"learning_velocity"`
	ContextRelevance float64   `json:"context_relevance"`
	ComputedAt       time.Time `json:"computed_at"`
}

const NeutralScore = 0.5

// NeutralHealth is reported for sessions without any history.
func NeutralHealth(sessionID string, now time.Time) HealthRecord {
	return HealthRecord{
		SessionID:        sessionID,
		RetentionScore:   NeutralScore,
		ConsistencyScore: NeutralScore,
		LearningVelocity: NeutralScore,
		ContextRelevance: NeutralScore,
		ComputedAt:       now,
	}
}

func (h HealthRecord) Overall() float64 {
	return (h.RetentionScore + h.ConsistencyScore + h.LearningVelocity + h.ContextRelevance) / 4
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// MessageSignal is the tone and subject matter of one user message.
type MessageSignal struct {
	SessionID  string    `json:"session_id"`
	Topics     []string  `json:"topics,omitempty"`
	Sentiment  Sentiment `json:"sentiment"`
	Emotion    string    `json:"emotion,omitempty"`
	Intensity  float64   `json:"intensity"`
	RecordedAt time.Time `json:"recorded_at"`
}

type ResetReason string

const (
	ReasonNone     ResetReason = ""
	ReasonInitial  ResetReason = "initial"
	ReasonRecovery ResetReason = "reinitialization"
	ReasonLimit    ResetReason = "hard_limit"
	ReasonHealth   ResetReason = "health"
	ReasonManual   ResetReason = "manual"
)

type ProcessResult struct {
	SessionID     string             `json:"session_id"`
	ResetOccurred bool               `json:"reset_occurred"`
	Reason        ResetReason        `json:"reason,omitempty"`
	BundleUsed    *MemoryBundle      `json:"bundle_used"`
	Handle        string             `json:"context_handle"`
	Outcomes      []FactUpdateResult `json:"outcomes,omitempty"`
	Health        HealthRecord       `json:"health"`
}

type Role = string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
