package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/pkg/env"
)

var revealSecrets bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as .env",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		loadEnv(ctx)
		appCfg := config.NewAppConfig(ctx)
		configs := []any{appCfg, config.NewMemoryConfig(ctx, appCfg), config.NewMonitorConfig(ctx)}
		if appCfg.EnableTelegram {
			configs = append(configs, config.NewTelegramConfig(ctx))
		}

		out, err := env.MarshalEnv(revealSecrets, configs...)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&revealSecrets, "reveal", false, "print secrets unmasked")
	rootCmd.AddCommand(configCmd)
}
