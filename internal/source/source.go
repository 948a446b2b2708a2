// Package source fetches one raw record per logical date, degrading through
// an ordered list of fallback tiers when the upstream API is unavailable.
package source

import (
	"context"
	"fmt"
	"log"

	"github.com/astrodata/apod-pipeline/internal/metrics"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// Source produces a raw record for a logical date.
type Source interface {
	Name() string
	Fetch(ctx context.Context, date string) (models.RawRecord, error)
}

// Chain tries each source in order and returns the first success. Adding a
// tier is appending a Source; the try/fallback contract stays uniform.
type Chain struct {
	sources []Source
}

// NewChain builds a fallback chain. Order matters: earlier sources are
// preferred.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// Fetch returns the first record any tier can produce, along with the name
// of the tier that produced it. It fails only when every tier fails, which
// with a placeholder tier configured indicates a configuration bug.
func (c *Chain) Fetch(ctx context.Context, date string) (models.RawRecord, string, error) {
	var lastErr error
	for i, src := range c.sources {
		rec, err := src.Fetch(ctx, date)
		if err == nil {
			if i > 0 {
				log.Printf("source: %s unavailable, served by fallback tier %q", c.sources[0].Name(), src.Name())
				metrics.Fallbacks.WithLabelValues(src.Name()).Inc()
			}
			return rec, src.Name(), nil
		}
		lastErr = err
		log.Printf("source: %s failed for %s: %v", src.Name(), date, err)
	}
	return nil, "", fmt.Errorf("all record sources failed for %s: %w", date, lastErr)
}
