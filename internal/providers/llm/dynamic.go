package llm

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sandevgo/recall/internal/config"
	"github.com/sandevgo/recall/internal/core"
)

// DynamicProvider allows switching the model at runtime without
// interrupting requests already in flight.
type DynamicProvider struct {
	mu      sync.RWMutex
	config  config.AppConfig
	current atomic.Value
	factory func(context.Context, config.AppConfig) (core.AIProvider, error)
}

func NewDynamicProvider(ctx context.Context, cfg config.AppConfig) (*DynamicProvider, error) {
	return newDynamicProvider(ctx, cfg, NewProvider)
}

func newDynamicProvider(
	ctx context.Context,
	cfg config.AppConfig,
	factory func(context.Context, config.AppConfig) (core.AIProvider, error),
) (*DynamicProvider, error) {
	d := &DynamicProvider{
		config:  cfg,
		factory: factory,
	}

	provider, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create initial provider: %w", err)
	}

	d.current.Store(provider)
	return d, nil
}

func (d *DynamicProvider) provider() core.AIProvider {
	return d.current.Load().(core.AIProvider)
}

func (d *DynamicProvider) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return d.provider().Chat(ctx, history)
}

func (d *DynamicProvider) Models(ctx context.Context) ([]core.Model, error) {
	return d.provider().Models(ctx)
}

func (d *DynamicProvider) GetModel() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Model
}

func (d *DynamicProvider) GetProvider() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Provider
}

// SetModel swaps in a provider for the new model. Contexts created
// afterwards use it immediately.
func (d *DynamicProvider) SetModel(ctx context.Context, model string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	next := d.config
	next.Model = model

	provider, err := d.factory(ctx, next)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	d.config = next
	d.current.Store(provider)
	return nil
}
