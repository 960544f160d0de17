package core

import "context"

// CmdRouter dispatches slash commands typed into a chat session.
type CmdRouter interface {
	// Execute runs input as a command. The bool is false when input is not a command.
	Execute(ctx context.Context, sessionID, input string) (string, bool)
	ListCommands() []Command
}

// Command is one slash command. Execute receives the words after the command name.
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, sessionID string, args []string) (string, error)
}
