package pipeline

import (
	"context"
	"log"
	"time"

	"github.com/astrodata/apod-pipeline/internal/models"
)

// Service triggers one pipeline run per interval, each for the current UTC
// date. External schedulers that invoke the binary per date can skip the
// service entirely and call Pipeline.Run directly.
type Service struct {
	pipeline *Pipeline
	interval time.Duration
}

// NewService wraps a pipeline in an interval trigger.
func NewService(p *Pipeline, interval time.Duration) *Service {
	return &Service{pipeline: p, interval: interval}
}

// Start performs an initial run and then runs once per interval until the
// context is cancelled. Failed runs are logged, not fatal: the next trigger
// retries the same date safely because runs are idempotent per date.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.pipeline.Run(ctx, today()); err != nil {
		log.Printf("service: initial run failed: %v", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.pipeline.Run(ctx, today()); err != nil {
				log.Printf("service: run failed: %v", err)
			}
		}
	}
}

func today() string {
	return time.Now().UTC().Format(models.DateLayout)
}
