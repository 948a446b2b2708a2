package source

import (
	"context"
	"fmt"

	"github.com/astrodata/apod-pipeline/internal/dataset"
	"github.com/astrodata/apod-pipeline/internal/models"
)

// HistorySource serves the most recent entry of the flat dataset when the
// upstream API is unreachable. Content fields are reused from history but
// the date field carries the requested logical date, so the run still
// persists under its own key with a fresh retrieval timestamp.
type HistorySource struct {
	ds *dataset.Dataset
}

// NewHistorySource builds the history tier over the given dataset.
func NewHistorySource(ds *dataset.Dataset) *HistorySource {
	return &HistorySource{ds: ds}
}

func (h *HistorySource) Name() string { return "history" }

func (h *HistorySource) Fetch(ctx context.Context, date string) (models.RawRecord, error) {
	latest, err := h.ds.Latest()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	if latest == nil {
		return nil, fmt.Errorf("no history available")
	}
	return models.RawRecord{
		"date":        date,
		"title":       latest.Title,
		"url":         latest.URL,
		"hdurl":       latest.HDURL,
		"media_type":  latest.MediaType,
		"explanation": latest.Explanation,
		"copyright":   latest.Copyright,
	}, nil
}
