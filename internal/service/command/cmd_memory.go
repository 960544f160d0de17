package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sandevgo/recall/internal/core"
)

func nothingYet(f *ResponseFormatter, title string) string {
	return f.Combine(
		f.Info(title),
		f.Label("Status", "Nothing remembered yet"),
		f.Tip("Tell me something about yourself first"),
	)
}

type FactsCommand struct {
	memory    Memory
	formatter *ResponseFormatter
}

func NewFactsCommand(memory Memory) *FactsCommand {
	return &FactsCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *FactsCommand) Name() string {
	return "facts"
}

func (c *FactsCommand) Description() string {
	return "List what is remembered about you"
}

func (c *FactsCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	var categories []core.Category
	for _, arg := range args {
		cat := core.Category(strings.ToLower(arg))
		if !cat.Valid() {
			return c.formatter.Combine(
				c.formatter.Error("facts", fmt.Errorf("%w: %s", core.ErrInvalidCategory, arg)),
				c.formatter.Usage("/facts [identity|preference|event|opinion]"),
			), nil
		}
		categories = append(categories, cat)
	}

	facts, err := c.memory.ListFacts(ctx, sessionID, categories...)
	if errors.Is(err, core.ErrUnknownSession) {
		return nothingYet(c.formatter, "Facts"), nil
	}
	if err != nil {
		return "", err
	}
	if len(facts) == 0 {
		return nothingYet(c.formatter, "Facts"), nil
	}

	items := make([]string, len(facts))
	for i, f := range facts {
		items[i] = c.formatter.Fact(f)
	}
	return c.formatter.Combine(
		c.formatter.Info("Facts"),
		c.formatter.List(items),
	), nil
}

type HealthCommand struct {
	memory    Memory
	formatter *ResponseFormatter
}

func NewHealthCommand(memory Memory) *HealthCommand {
	return &HealthCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *HealthCommand) Name() string {
	return "health"
}

func (c *HealthCommand) Description() string {
	return "Show memory health scores"
}

func (c *HealthCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	sess, err := c.memory.Session(ctx, sessionID)
	if errors.Is(err, core.ErrUnknownSession) {
		return nothingYet(c.formatter, "Memory Health"), nil
	}
	if err != nil {
		return "", err
	}
	rec, err := c.memory.GetHealth(ctx, sessionID)
	if err != nil {
		return "", err
	}

	return c.formatter.Combine(
		c.formatter.Info("Memory Health"),
		c.formatter.Score("Overall", rec.Overall()),
		c.formatter.Score("Retention", rec.RetentionScore),
		c.formatter.Score("Consistency", rec.ConsistencyScore),
		c.formatter.Score("Learning velocity", rec.LearningVelocity),
		c.formatter.Score("Context relevance", rec.ContextRelevance),
		c.formatter.Label("Messages since reset", fmt.Sprintf("%d", sess.MessageCountSinceReset)),
		c.formatter.Label("Resets", fmt.Sprintf("%d", sess.ResetCount)),
	), nil
}

type BundleCommand struct {
	memory    Memory
	formatter *ResponseFormatter
}

func NewBundleCommand(memory Memory) *BundleCommand {
	return &BundleCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *BundleCommand) Name() string {
	return "bundle"
}

func (c *BundleCommand) Description() string {
	return "Preview the memory a fresh context would start with"
}

func (c *BundleCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	bundle, err := c.memory.PreviewBundle(ctx, sessionID)
	if errors.Is(err, core.ErrUnknownSession) {
		return nothingYet(c.formatter, "Memory Bundle"), nil
	}
	if err != nil {
		return "", err
	}

	sections := []string{
		c.formatter.Info("Memory Bundle"),
		c.formatter.Label("Size", fmt.Sprintf("%d/%d", bundle.Len(), bundle.Budget)),
	}
	for _, block := range bundle.Blocks {
		sections = append(sections, c.formatter.Block(block))
	}
	return c.formatter.Combine(sections...), nil
}

type ResetCommand struct {
	memory    Memory
	formatter *ResponseFormatter
}

func NewResetCommand(memory Memory) *ResetCommand {
	return &ResetCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *ResetCommand) Name() string {
	return "reset"
}

func (c *ResetCommand) Description() string {
	return "Start a fresh context seeded from memory"
}

func (c *ResetCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	res, err := c.memory.ForceReset(ctx, sessionID, core.ReasonManual)
	if errors.Is(err, core.ErrUnknownSession) {
		return nothingYet(c.formatter, "Reset"), nil
	}
	if err != nil {
		return "", err
	}

	carried := 0
	if res.BundleUsed != nil {
		carried = len(res.BundleUsed.Facts)
	}
	return c.formatter.Combine(
		c.formatter.Success("Context reset"),
		c.formatter.Label("Facts carried over", fmt.Sprintf("%d", carried)),
	), nil
}
