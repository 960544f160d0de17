package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

type Memory interface {
	Process(ctx context.Context, sessionID, text string) (core.ProcessResult, error)
	ForceReset(ctx context.Context, sessionID string, reason core.ResetReason) (core.ProcessResult, error)
	RecordReply(ctx context.Context, sessionID, reply string)
}

// Agent runs one conversational turn: slash commands go to the router,
// everything else through memory into the session's execution context.
type Agent struct {
	memory Memory
	engine core.ExecutionEngine
	router core.CmdRouter
}

func NewAgent(memory Memory, engine core.ExecutionEngine, router core.CmdRouter) *Agent {
	return &Agent{
		memory: memory,
		engine: engine,
		router: router,
	}
}

func (a *Agent) Run(ctx context.Context, sessionID string, input string) (string, error) {
	ctx = log.WithSession(ctx, sessionID)
	logger := log.FromCtx(ctx)

	if a.router != nil {
		if reply, ok := a.router.Execute(ctx, sessionID, input); ok {
			return reply, nil
		}
	}

	res, err := a.memory.Process(ctx, sessionID, input)
	if err != nil {
		return "", fmt.Errorf("memory: %w", err)
	}
	if res.ResetOccurred {
		logger.Debug().Str("reason", string(res.Reason)).Str("handle", res.Handle).Msg("turn runs in a fresh context")
	}

	reply, err := a.engine.Send(ctx, res.Handle, input)
	if errors.Is(err, core.ErrUnknownContext) {
		logger.Warn().Str("handle", res.Handle).Msg("execution context lost, recovering")

		res, err = a.memory.ForceReset(ctx, sessionID, core.ReasonRecovery)
		if err != nil {
			return "", fmt.Errorf("recover context: %w", err)
		}
		reply, err = a.engine.Send(ctx, res.Handle, input)
	}
	if err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}

	a.memory.RecordReply(ctx, sessionID, reply)
	return reply, nil
}
