package core

import "context"

type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length,omitempty"`
}

// AIProvider completes a chat. A leading system message carries the memory bundle.
type AIProvider interface {
	Chat(ctx context.Context, history []Message) (Message, error)
	Models(ctx context.Context) ([]Model, error)
}

// ExecutionEngine hosts conversation contexts seeded from a memory bundle.
type ExecutionEngine interface {
	Initialize(ctx context.Context, bundle MemoryBundle) (string, error)
	Send(ctx context.Context, handle, input string) (string, error)
	Release(ctx context.Context, handle string) error
}

type Extractor interface {
	Extract(text string) []Candidate
}

// Analyzer reads the tone and topics of a message. SessionID and
// RecordedAt are left for the caller.
type Analyzer interface {
	Analyze(text string) MessageSignal
}
