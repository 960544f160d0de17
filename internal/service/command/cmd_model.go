package command

import (
	"context"
	"fmt"
)

type ModelCommand struct {
	models    ModelSwitcher
	formatter *ResponseFormatter
}

func NewModelCommand(models ModelSwitcher) *ModelCommand {
	return &ModelCommand{
		models:    models,
		formatter: NewResponseFormatter(),
	}
}

func (c *ModelCommand) Name() string {
	return "model"
}

func (c *ModelCommand) Description() string {
	return "Show or change current model"
}

func (c *ModelCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	if len(args) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Current Model"),
			c.formatter.Label("Provider", c.models.GetProvider()),
			c.formatter.Label("Model", c.models.GetModel()),
			c.formatter.Usage("/model [model]"),
			c.formatter.Examples([]string{
				"/model gpt-4o-mini",
				"/model anthropic/claude-3.5-sonnet",
			}),
			c.formatter.Tip("New contexts use the new model, the current one keeps its history"),
		), nil
	}

	if err := c.models.SetModel(ctx, args[0]); err != nil {
		return "", fmt.Errorf("failed to set model: %w", err)
	}

	return c.formatter.Success(fmt.Sprintf("Model changed to: `%s/%s`", c.models.GetProvider(), c.models.GetModel())), nil
}
