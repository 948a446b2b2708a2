package source

import (
	"context"

	"github.com/astrodata/apod-pipeline/internal/models"
)

// PlaceholderSource is the last fallback tier: a fixed record that marks a
// run whose upstream data could not be retrieved at all. It never fails.
type PlaceholderSource struct{}

// NewPlaceholderSource builds the placeholder tier.
func NewPlaceholderSource() *PlaceholderSource {
	return &PlaceholderSource{}
}

func (p *PlaceholderSource) Name() string { return "placeholder" }

func (p *PlaceholderSource) Fetch(ctx context.Context, date string) (models.RawRecord, error) {
	return models.RawRecord{
		"date":        date,
		"title":       "APOD data unavailable",
		"url":         "",
		"media_type":  models.MediaTypeOther,
		"explanation": "The APOD API and local history were both unavailable for this date. This placeholder keeps the dataset contiguous; rerun the pipeline to replace it with real data.",
	}, nil
}
