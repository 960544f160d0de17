package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/providers/llm"
	"github.com/sandevgo/recall/internal/service/agent"
	"github.com/sandevgo/recall/internal/service/command"
	"github.com/sandevgo/recall/internal/service/engine"
	"github.com/sandevgo/recall/internal/service/memory"
	"github.com/sandevgo/recall/internal/service/ui"
	"github.com/sandevgo/recall/internal/storage/inmem"
	"github.com/sandevgo/recall/internal/telemetry"
	"github.com/sandevgo/recall/pkg/log"
)

var (
	replayParallel int
	replayLive     bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <script>...",
	Short: "Replay scripted conversations against an in-memory store",
	Long: `Each script is a text file with one user message per line. Blank lines and
lines starting with # are skipped. Scripts run in parallel, each as its own
session, and a summary of facts, resets and health is printed per session.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		loadEnv(ctx)
		appCfg := config.NewAppConfig(ctx)
		memCfg := config.NewMemoryConfig(ctx, appCfg)

		var ai core.AIProvider = offlineAI{}
		if replayLive {
			provider, err := llm.NewDynamicProvider(ctx, *appCfg)
			if err != nil {
				return fmt.Errorf("init provider: %w", err)
			}
			ai = provider
		}

		scripts := make([][]string, len(args))
		for i, path := range args {
			lines, err := readScript(path)
			if err != nil {
				return err
			}
			scripts[i] = lines
		}

		reports := make([]replayReport, len(args))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(replayParallel, 1))
		for i, path := range args {
			g.Go(func() error {
				report, err := replayScript(gctx, memCfg, ai, scriptSessionID(path), scripts[i])
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				reports[i] = report
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, r := range reports {
			printReport(cmd.OutOrStdout(), r, memCfg.HealthThreshold)
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().IntVarP(&replayParallel, "parallel", "p", 4, "scripts replayed at once")
	replayCmd.Flags().BoolVar(&replayLive, "live", false, "send messages to the configured LLM provider instead of the offline stub")
	rootCmd.AddCommand(replayCmd)
}

type replayReport struct {
	Session  core.Session
	Facts    []core.Fact
	Health   core.HealthRecord
	Records  int
	Failures int
}

// replayScript runs every line through a fresh agent and summarizes the session.
func replayScript(ctx context.Context, cfg *config.MemoryConfig, ai core.AIProvider, sessionID string, lines []string) (replayReport, error) {
	ctx = log.WithComponent(ctx, "replay")
	store := inmem.New(cfg.Policy())
	eng := engine.New(ai, store, 30)

	mem, err := memory.NewMemory(cfg, store, eng, memory.NewPatternExtractor(), memory.NewKeywordAnalyzer(), telemetry.NewMetrics())
	if err != nil {
		return replayReport{}, err
	}
	ag := agent.NewAgent(mem, eng, command.New(command.NewCommands(mem, nil)))

	var report replayReport
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return replayReport{}, err
		}
		if _, err := ag.Run(ctx, sessionID, line); err != nil {
			// facts are committed even when the context could not be initialized
			log.FromCtx(ctx).Warn().Err(err).Str("session", sessionID).Msg("replay turn failed")
			report.Failures++
		}
	}

	if report.Session, err = mem.Session(ctx, sessionID); err != nil {
		return replayReport{}, err
	}
	if report.Facts, err = mem.ListFacts(ctx, sessionID); err != nil {
		return replayReport{}, err
	}
	if report.Health, err = mem.GetHealth(ctx, sessionID); err != nil {
		return replayReport{}, err
	}
	history, err := mem.HealthHistory(ctx, sessionID, 0)
	if err != nil {
		return replayReport{}, err
	}
	report.Records = len(history)
	return report, nil
}

func readScript(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer f.Close()
	return parseScript(f)
}

func parseScript(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return lines, nil
}

func scriptSessionID(path string) string {
	base := filepath.Base(path)
	return "replay-" + strings.TrimSuffix(base, filepath.Ext(base))
}

func printReport(w io.Writer, r replayReport, threshold float64) {
	s := r.Session
	fmt.Fprintln(w, ui.TitleStyle.Render(strings.ToUpper(s.ID)))
	fmt.Fprintln(w, ui.Row("messages", fmt.Sprint(s.TotalMessages)))
	fmt.Fprintln(w, ui.Row("resets", fmt.Sprint(s.ResetCount)))
	fmt.Fprintln(w, ui.Row("state", string(s.ContextState)))
	fmt.Fprintln(w, ui.Row("stage / trust", fmt.Sprintf("%s / %.2f", s.Stage, s.TrustLevel)))
	fmt.Fprintln(w, ui.Row("health records", fmt.Sprint(r.Records)))
	fmt.Fprintln(w, ui.Row("health", ui.Score(r.Health.Overall(), threshold)))
	if r.Failures > 0 {
		fmt.Fprintln(w, ui.Row("failed turns", fmt.Sprint(r.Failures)))
	}
	printFacts(w, r.Facts)
	fmt.Fprintln(w)
}

// offlineAI acknowledges every message so replays run without a provider.
type offlineAI struct{}

func (offlineAI) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return core.Message{Role: core.RoleAssistant, Content: "noted"}, nil
}

func (offlineAI) Models(ctx context.Context) ([]core.Model, error) {
	return []core.Model{{ID: "offline", Name: "offline"}}, nil
}
