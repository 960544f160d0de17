package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/service/ui"
	"github.com/sandevgo/recall/internal/storage/sqlite"
)

var (
	factCategories []string
	historyLimit   int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *sqlite.Store, _ *config.MemoryConfig) error {
			sessions, err := store.ListSessions(ctx)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		})
	},
}

var factsCmd = &cobra.Command{
	Use:   "facts <session>",
	Short: "Show the facts remembered for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		categories := make([]core.Category, 0, len(factCategories))
		for _, raw := range factCategories {
			c := core.Category(raw)
			if !c.Valid() {
				return fmt.Errorf("unknown category %q", raw)
			}
			categories = append(categories, c)
		}

		return withStore(cmd, func(ctx context.Context, store *sqlite.Store, _ *config.MemoryConfig) error {
			if _, err := store.GetSession(ctx, args[0]); err != nil {
				return err
			}
			facts, err := store.List(ctx, args[0], categories...)
			if err != nil {
				return err
			}
			printFacts(cmd.OutOrStdout(), facts)
			return nil
		})
	},
}

var healthCmd = &cobra.Command{
	Use:   "health <session>",
	Short: "Show the memory health history of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(ctx context.Context, store *sqlite.Store, cfg *config.MemoryConfig) error {
			sess, err := store.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			history, err := store.HealthHistory(ctx, args[0], historyLimit)
			if err != nil {
				return err
			}
			printHealth(cmd.OutOrStdout(), sess, history, cfg.HealthThreshold)
			return nil
		})
	},
}

func init() {
	factsCmd.Flags().StringSliceVarP(&factCategories, "category", "c", nil, "filter by category (identity, preference, event, opinion)")
	healthCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of records to show")

	rootCmd.AddCommand(sessionsCmd, factsCmd, healthCmd)
}

// withStore opens the configured SQLite database for offline inspection.
func withStore(cmd *cobra.Command, fn func(context.Context, *sqlite.Store, *config.MemoryConfig) error) error {
	ctx, flushLog := setupLogger(cmd.Context())
	defer flushLog()

	loadEnv(ctx)
	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx, appCfg)

	store, err := sqlite.NewStore(ctx, appCfg.GetDatabasePath(), memCfg.Policy())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	return fn(ctx, store, memCfg)
}

func printSessions(w io.Writer, sessions []core.Session) {
	fmt.Fprintln(w, ui.TitleStyle.Render("SESSIONS"))
	if len(sessions) == 0 {
		fmt.Fprintln(w, ui.DescStyle.Render("  no sessions yet"))
		return
	}
	for _, s := range sessions {
		fmt.Fprintln(w, ui.Row(s.ID, fmt.Sprintf("%s, %d messages, %d resets, stage %s",
			s.ContextState, s.TotalMessages, s.ResetCount, s.Stage)))
	}
}

func printFacts(w io.Writer, facts []core.Fact) {
	fmt.Fprintln(w, ui.TitleStyle.Render("FACTS"))
	if len(facts) == 0 {
		fmt.Fprintln(w, ui.DescStyle.Render("  nothing remembered yet"))
		return
	}
	for _, f := range facts {
		meta := fmt.Sprintf("%s/%s conf %.2f x%d", f.Category, f.Priority, f.Confidence, f.ConfirmationCount)
		if n := len(f.ContradictionLog); n > 0 {
			meta += fmt.Sprintf(", %d contradictions", n)
		}
		fmt.Fprintln(w, ui.Row(f.FactType, f.Value+" "+ui.DescStyle.Render(meta)))
	}
}

func printHealth(w io.Writer, sess core.Session, history []core.HealthRecord, threshold float64) {
	fmt.Fprintln(w, ui.TitleStyle.Render("HEALTH "+strings.ToUpper(sess.ID)))
	fmt.Fprintln(w, ui.Row("state", string(sess.ContextState)))
	fmt.Fprintln(w, ui.Row("since reset", fmt.Sprintf("%d messages", sess.MessageCountSinceReset)))
	fmt.Fprintln(w, ui.Row("resets", fmt.Sprint(sess.ResetCount)))
	fmt.Fprintln(w, ui.Row("trust", fmt.Sprintf("%.2f", sess.TrustLevel)))
	fmt.Fprintln(w)

	if len(history) == 0 {
		fmt.Fprintln(w, ui.DescStyle.Render("  no health records yet"))
		return
	}
	fmt.Fprintln(w, ui.DescStyle.Render("  computed at           overall  ret   cons  vel   rel"))
	for _, h := range history {
		fmt.Fprintf(w, "  %s  %s     %s  %s  %s  %s\n",
			h.ComputedAt.Format("2006-01-02 15:04:05"),
			ui.Score(h.Overall(), threshold),
			ui.Score(h.RetentionScore, threshold),
			ui.Score(h.ConsistencyScore, threshold),
			ui.Score(h.LearningVelocity, threshold),
			ui.Score(h.ContextRelevance, threshold),
		)
	}
}
