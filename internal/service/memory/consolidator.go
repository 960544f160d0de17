package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/recall/internal/core"
	"github.com/sandevgo/recall/pkg/log"
)

// Consolidator turns user messages into fact updates.
type Consolidator struct {
	extractor core.Extractor
	store     core.FactStore
	rules     core.MaintenanceRules
	now       func() time.Time
}

func NewConsolidator(extractor core.Extractor, store core.FactStore, rules core.MaintenanceRules) *Consolidator {
	return &Consolidator{
		extractor: extractor,
		store:     store,
		rules:     rules,
		now:       time.Now,
	}
}

// Consolidate extracts candidates from text and merges each into the store.
// A message without candidates is not an error.
func (c *Consolidator) Consolidate(ctx context.Context, sessionID, text string) ([]core.FactUpdateResult, error) {
	logger := log.FromCtx(ctx)

	candidates := c.extractor.Extract(text)
	if len(candidates) == 0 {
		logger.Debug().Str("session", sessionID).Msg("extraction skipped, no candidates")
		return nil, nil
	}

	results := make([]core.FactUpdateResult, 0, len(candidates))
	for _, cand := range candidates {
		cand.Confidence = core.Clamp(cand.Confidence)

		res, err := c.store.Upsert(ctx, sessionID, cand, c.now())
		if err != nil {
			return results, fmt.Errorf("upsert %s: %w", cand.FactType, err)
		}

		logger.Debug().
			Str("session", sessionID).
			Str("fact", cand.FactType).
			Str("outcome", string(res.Outcome)).
			Float64("confidence", res.Fact.Confidence).
			Msg("fact consolidated")

		results = append(results, res)
	}
	return results, nil
}

// Optimize prunes weak facts and boosts well-confirmed ones.
func (c *Consolidator) Optimize(ctx context.Context, sessionID string) (core.MaintenanceResult, error) {
	res, err := c.store.Maintain(ctx, sessionID, c.rules, c.now())
	if err != nil {
		return res, fmt.Errorf("maintain facts: %w", err)
	}

	log.FromCtx(ctx).Info().
		Str("session", sessionID).
		Int("pruned", res.Pruned).
		Int("boosted", res.Boosted).
		Msg("memory optimized")
	return res, nil
}
