package main

import (
	"context"
	"fmt"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/internal/providers/llm"
	"github.com/sandevgo/recall/internal/service/agent"
	"github.com/sandevgo/recall/internal/service/command"
	"github.com/sandevgo/recall/internal/service/engine"
	"github.com/sandevgo/recall/internal/service/memory"
	"github.com/sandevgo/recall/internal/storage/inmem"
	"github.com/sandevgo/recall/internal/storage/sqlite"
	"github.com/sandevgo/recall/internal/telemetry"
	"github.com/sandevgo/recall/internal/transport/cli"
	"github.com/sandevgo/recall/internal/transport/monitor"
	"github.com/sandevgo/recall/internal/transport/telegram"
	"github.com/sandevgo/recall/pkg/log"
	"github.com/sandevgo/recall/pkg/srv"
)

func NewServices(ctx context.Context) []srv.Service {
	logger := log.FromCtx(ctx)
	services := make([]srv.Service, 0)

	loadEnv(ctx)

	// 1. Configuration
	appCfg := config.NewAppConfig(ctx)
	memCfg := config.NewMemoryConfig(ctx, appCfg)

	// 2. Storage
	store, err := initStorage(ctx, appCfg, memCfg.Policy())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}
	services = append(services, srv.NewCleanup("storage", store.Close))

	// 3. AI Provider
	aiProvider, err := llm.NewDynamicProvider(ctx, *appCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize LLM provider")
	}

	// 4. Memory core
	metrics := telemetry.NewMetrics()
	eng := engine.New(aiProvider, store, appCfg.ContextWindowSize)
	mem, err := memory.NewMemory(memCfg, store, eng, memory.NewPatternExtractor(), memory.NewKeywordAnalyzer(), metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize memory")
	}

	// 5. Agent
	router := command.New(command.NewCommands(mem, aiProvider))
	ag := agent.NewAgent(mem, eng, router)

	// 6. Transports
	transports, err := initTransports(ctx, appCfg, ag, mem, metrics)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize transports")
	}
	if len(transports) == 0 {
		logger.Warn().Msg("no transports enabled, set ENABLE_CLI, ENABLE_TELEGRAM or ENABLE_MONITOR")
	}
	services = append(services, transports...)

	return services
}

func initStorage(ctx context.Context, cfg *config.AppConfig, policy core.MergePolicy) (core.Repository, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.GetDatabasePath(), policy)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageMemory:
		log.FromCtx(ctx).Warn().Msg("using in-memory storage, facts are lost on shutdown")
		return inmem.New(policy), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func initTransports(
	ctx context.Context,
	cfg *config.AppConfig,
	ag *agent.Agent,
	mem *memory.Memory,
	metrics *telemetry.Metrics,
) ([]srv.Service, error) {
	var services []srv.Service

	if cfg.EnableMonitor {
		services = append(services, monitor.NewServer(config.NewMonitorConfig(ctx), mem, metrics))
	}

	if cfg.EnableTelegram {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, ag)
		if err != nil {
			return nil, err
		}
		services = append(services, bot)
	}

	if cfg.EnableCLI {
		rl, err := cli.NewReadLine(ag, cfg, cli.DefaultSessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize readline: %w", err)
		}
		services = append(services, rl)
	}

	return services, nil
}
