package core

import (
	"context"
	"time"
)

// FactStore is the only mutation path for facts. Upsert applies the merge
// policy atomically per (session, fact type).
type FactStore interface {
	Upsert(ctx context.Context, sessionID string, cand Candidate, now time.Time) (FactUpdateResult, error)
	// Get returns nil, nil when the fact does not exist.
	Get(ctx context.Context, sessionID, factType string) (*Fact, error)
	List(ctx context.Context, sessionID string, categories ...Category) ([]Fact, error)
	Maintain(ctx context.Context, sessionID string, rules MaintenanceRules, now time.Time) (MaintenanceResult, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s Session) error
	// GetSession returns ErrUnknownSession when the session does not exist.
	GetSession(ctx context.Context, id string) (Session, error)
	SaveSession(ctx context.Context, s Session) error
	ListSessions(ctx context.Context) ([]Session, error)
}

type HealthRepository interface {
	AppendHealth(ctx context.Context, rec HealthRecord) error
	// LatestHealth returns nil, nil when no record exists.
	LatestHealth(ctx context.Context, sessionID string) (*HealthRecord, error)
	HealthHistory(ctx context.Context, sessionID string, limit int) ([]HealthRecord, error)
}

// SignalRepository keeps the per-message tone and topic timeline.
type SignalRepository interface {
	AppendSignal(ctx context.Context, sig MessageSignal) error
	// RecentSignals returns the newest signals first. limit <= 0 returns everything.
	RecentSignals(ctx context.Context, sessionID string, limit int) ([]MessageSignal, error)
}

// TranscriptRepository keeps the message history of a live execution context.
type TranscriptRepository interface {
	AddMessage(ctx context.Context, handle string, msg Message) error
	GetMessages(ctx context.Context, handle string, limit int) ([]Message, error)
	DeleteTranscript(ctx context.Context, handle string) error
}

type Repository interface {
	FactStore
	SessionRepository
	HealthRepository
	SignalRepository
	TranscriptRepository
	Close() error
}
