package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/pkg/log"
)

const DefaultSessionID = "cli-local"

type Runner interface {
	Run(ctx context.Context, sessionID, input string) (string, error)
}

type ReadLine struct {
	cfg       *config.AppConfig
	agent     Runner
	rl        *readline.Instance
	sessionID string
}

func NewReadLine(agent Runner, cfg *config.AppConfig, sessionID string) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     cfg.GetHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	return &ReadLine{
		cfg:       cfg,
		agent:     agent,
		rl:        rl,
		sessionID: sessionID,
	}, nil
}

func (r *ReadLine) Name() string {
	return "readline"
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Str("session", r.sessionID).Msg("ReadLine chat started. Type 'exit' to quit, '/help' for commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(line) == 0 {
					return nil // Exit on Ctrl+C
				}
				continue
			} else if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if done := r.turn(ctx, r.rl.Stdout(), line); done {
			return nil
		}
	}
}

// turn handles one input line and reports whether the chat should end.
func (r *ReadLine) turn(ctx context.Context, out io.Writer, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "exit":
		return true
	case "":
		return false
	}

	reply, err := r.agent.Run(ctx, r.sessionID, line)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("agent run failed")
		fmt.Fprintf(out, "Error: %v\n", err)
		return false
	}
	fmt.Fprintf(out, "%s\n", reply)
	return false
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
