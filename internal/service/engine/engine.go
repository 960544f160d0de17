package engine

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// Engine hosts execution contexts on top of a chat model. A context is a
// transcript seeded with the rendered memory bundle as its system prompt;
// a context whose transcript is gone is unknown.
type Engine struct {
	ai     core.AIProvider
	repo   core.TranscriptRepository
	window int
}

var _ core.ExecutionEngine = (*Engine)(nil)

func New(ai core.AIProvider, repo core.TranscriptRepository, window int) *Engine {
	return &Engine{
		ai:     ai,
		repo:   repo,
		window: window,
	}
}

func (e *Engine) Initialize(ctx context.Context, bundle core.MemoryBundle) (string, error) {
	handle := ulid.Make().String()

	seed := core.Message{Role: core.RoleSystem, Content: bundle.Render()}
	if err := e.repo.AddMessage(ctx, handle, seed); err != nil {
		return "", fmt.Errorf("failed to seed context: %w", err)
	}

	log.FromCtx(ctx).Debug().
		Str("handle", handle).
		Int("prompt_chars", bundle.Len()).
		Msg("execution context created")
	return handle, nil
}

func (e *Engine) Send(ctx context.Context, handle, input string) (string, error) {
	logger := log.FromCtx(ctx)

	existing, err := e.repo.GetMessages(ctx, handle, 1)
	if err != nil {
		return "", fmt.Errorf("failed to fetch context: %w", err)
	}
	if len(existing) == 0 {
		return "", fmt.Errorf("%w: %s", core.ErrUnknownContext, handle)
	}

	userMsg := core.Message{Role: core.RoleUser, Content: input}
	if err := e.repo.AddMessage(ctx, handle, userMsg); err != nil {
		return "", fmt.Errorf("failed to save user message: %w", err)
	}

	history, err := e.repo.GetMessages(ctx, handle, e.window)
	if err != nil {
		return "", fmt.Errorf("failed to fetch history: %w", err)
	}

	reply, err := e.ai.Chat(ctx, withoutEmptySystem(history))
	if err != nil {
		return "", fmt.Errorf("ai chat error: %w", err)
	}
	reply.Role = core.RoleAssistant

	if err := e.repo.AddMessage(ctx, handle, reply); err != nil {
		logger.Error().Err(err).Msg("failed to save assistant message")
	}
	return reply.Content, nil
}

func (e *Engine) Release(ctx context.Context, handle string) error {
	if err := e.repo.DeleteTranscript(ctx, handle); err != nil {
		return fmt.Errorf("failed to delete context: %w", err)
	}
	return nil
}

// withoutEmptySystem drops the seed of a context created from an empty bundle.
func withoutEmptySystem(history []core.Message) []core.Message {
	out := make([]core.Message, 0, len(history))
	for _, m := range history {
		if m.Role == core.RoleSystem && m.Content == "" {
			continue
		}
		out = append(out, m)
	}
	return out
}
