package command

import (
	"context"

	"github.com/sandevgo/recall/internal/core"
)

// Memory is the read side of the memory core plus manual resets.
type Memory interface {
	Session(ctx context.Context, sessionID string) (core.Session, error)
	ListFacts(ctx context.Context, sessionID string, categories ...core.Category) ([]core.Fact, error)
	GetHealth(ctx context.Context, sessionID string) (core.HealthRecord, error)
	PreviewBundle(ctx context.Context, sessionID string) (core.MemoryBundle, error)
	ForceReset(ctx context.Context, sessionID string, reason core.ResetReason) (core.ProcessResult, error)
}

type ModelSwitcher interface {
	GetProvider() string
	GetModel() string
	SetModel(ctx context.Context, model string) error
}

// NewCommands builds the chat commands. models may be nil.
func NewCommands(memory Memory, models ModelSwitcher) []core.Command {
	commands := []core.Command{
		NewFactsCommand(memory),
		NewHealthCommand(memory),
		NewBundleCommand(memory),
		NewResetCommand(memory),
	}
	if models != nil {
		commands = append(commands, NewModelCommand(models))
	}
	return commands
}
