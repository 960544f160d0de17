package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

type BlockLimits struct {
	UserEssence         int `env:"RECALL_BLOCK_USER_ESSENCE" envDefault:"200"`
	RelationshipState   int `env:"RECALL_BLOCK_RELATIONSHIP" envDefault:"150"`
	ConversationContext int `env:"RECALL_BLOCK_CONVERSATION" envDefault:"150"`
	EmotionalContext    int `env:"RECALL_BLOCK_EMOTIONAL" envDefault:"100"`
}

type MemoryConfig struct {
	// Reset scheduling
	HardLimit         int     `env:"RECALL_HARD_LIMIT" envDefault:"4"`
	HealthThreshold   float64 `env:"RECALL_HEALTH_THRESHOLD" envDefault:"0.6"`
	HealthMinMessages int     `env:"RECALL_HEALTH_MIN_MESSAGES" envDefault:"2"`

	// Bundle composition, lengths in characters
	BundleBudget int `env:"RECALL_BUNDLE_BUDGET" envDefault:"900"`
	Blocks       BlockLimits

	// Health windows, in messages
	VelocityWindow  int `env:"RECALL_VELOCITY_WINDOW" envDefault:"5"`
	RelevanceWindow int `env:"RECALL_RELEVANCE_WINDOW" envDefault:"3"`

	// Merge policy
	ReinforceBonus    float64 `env:"RECALL_REINFORCE_BONUS" envDefault:"0.1"`
	ReplaceMargin     float64 `env:"RECALL_REPLACE_MARGIN" envDefault:"0.2"`
	MaxContradictions int     `env:"RECALL_MAX_CONTRADICTIONS" envDefault:"20"`

	// Optimization pass before health resets
	PruneBelow  float64 `env:"RECALL_PRUNE_BELOW" envDefault:"0.3"`
	BoostAfter  int     `env:"RECALL_BOOST_AFTER" envDefault:"2"`
	BoostAmount float64 `env:"RECALL_BOOST_AMOUNT" envDefault:"0.1"`

	EngineTimeout time.Duration `env:"RECALL_ENGINE_TIMEOUT" envDefault:"30s"`
	InitRetries   int           `env:"RECALL_INIT_RETRIES" envDefault:"1"`

	PersonaPath string `env:"RECALL_PERSONA_PATH"`
	// Persona is the immutable block text, loaded from PersonaPath.
	Persona string
}

func NewMemoryConfig(ctx context.Context, app *AppConfig) *MemoryConfig {
	logger := log.FromCtx(ctx)

	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse Memory config")
	}
	if c.PersonaPath == "" {
		c.PersonaPath = app.GetPersonaPath()
	}
	if err := c.LoadPersona(); err != nil {
		logger.Fatal().Err(err).Str("path", c.PersonaPath).Msg("failed to load persona")
	}
	if err := c.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid Memory config")
	}
	return c
}

// DefaultMemoryConfig returns the built-in defaults without reading the environment.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		HardLimit:         4,
		HealthThreshold:   0.6,
		HealthMinMessages: 2,
		BundleBudget:      900,
		Blocks: BlockLimits{
			UserEssence:         200,
			RelationshipState:   150,
			ConversationContext: 150,
			EmotionalContext:    100,
		},
		VelocityWindow:    5,
		RelevanceWindow:   3,
		ReinforceBonus:    0.1,
		ReplaceMargin:     0.2,
		MaxContradictions: 20,
		PruneBelow:        0.3,
		BoostAfter:        2,
		BoostAmount:       0.1,
		EngineTimeout:     30 * time.Second,
		InitRetries:       1,
	}
}

// LoadPersona reads the persona file. A missing file leaves the persona empty.
func (c *MemoryConfig) LoadPersona() error {
	if c.PersonaPath == "" {
		return nil
	}
	data, err := os.ReadFile(c.PersonaPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read persona: %w", err)
	}
	c.Persona = strings.TrimSpace(string(data))
	return nil
}

func (c *MemoryConfig) Validate() error {
	var errs []error
	if c.HardLimit < 1 {
		errs = append(errs, fmt.Errorf("hard limit must be positive, got %d", c.HardLimit))
	}
	if c.HealthThreshold < 0 || c.HealthThreshold > 1 {
		errs = append(errs, fmt.Errorf("health threshold must be within [0, 1], got %v", c.HealthThreshold))
	}
	if c.BundleBudget < 1 {
		errs = append(errs, fmt.Errorf("bundle budget must be positive, got %d", c.BundleBudget))
	}
	if c.VelocityWindow < 1 || c.RelevanceWindow < 1 {
		errs = append(errs, errors.New("health windows must be positive"))
	}
	if c.InitRetries < 0 {
		errs = append(errs, errors.New("init retries must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *MemoryConfig) Policy() core.MergePolicy {
	return core.MergePolicy{
		ReinforceBonus:    c.ReinforceBonus,
		ReplaceMargin:     c.ReplaceMargin,
		MaxContradictions: c.MaxContradictions,
	}
}

func (c *MemoryConfig) Maintenance() core.MaintenanceRules {
	return core.MaintenanceRules{
		PruneBelow:  c.PruneBelow,
		BoostAfter:  c.BoostAfter,
		BoostAmount: c.BoostAmount,
	}
}
