// Package normalize turns raw upstream payloads into canonical records.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/astrodata/apod-pipeline/internal/models"
)

const (
	maxExplanationLen = 1000
	maxCopyrightLen   = 255

	defaultTitle     = "Untitled"
	defaultMediaType = models.MediaTypeImage
)

// ValidationError reports a record that cannot be normalized. It is the one
// fatal condition of this stage: without a usable date there is no dedup key
// for any downstream store.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// Normalizer validates and reshapes raw records.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer using the wall clock.
func New() *Normalizer {
	return NewWithClock(time.Now)
}

// NewWithClock creates a Normalizer with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize produces a canonical record. Explanation and copyright are
// truncated silently; title and media_type fall back to defaults. Only a
// missing or malformed date is an error.
func (n *Normalizer) Normalize(raw models.RawRecord) (models.Record, error) {
	date := strings.TrimSpace(stringField(raw, "date"))
	if date == "" {
		return models.Record{}, &ValidationError{Reason: "date field is missing"}
	}
	if _, err := time.Parse(models.DateLayout, date); err != nil {
		return models.Record{}, &ValidationError{Reason: fmt.Sprintf("malformed date %q", date)}
	}

	rec := models.Record{
		Date:        date,
		Title:       stringField(raw, "title"),
		URL:         stringField(raw, "url"),
		HDURL:       stringField(raw, "hdurl"),
		MediaType:   stringField(raw, "media_type"),
		Explanation: truncate(stringField(raw, "explanation"), maxExplanationLen),
		Copyright:   truncate(stringField(raw, "copyright"), maxCopyrightLen),
		RetrievedAt: n.now().UTC(),
	}
	if rec.Title == "" {
		rec.Title = defaultTitle
	}
	switch rec.MediaType {
	case models.MediaTypeImage, models.MediaTypeVideo:
	case "":
		rec.MediaType = defaultMediaType
	default:
		rec.MediaType = models.MediaTypeOther
	}
	return rec, nil
}

func stringField(raw models.RawRecord, key string) string {
	if v, ok := raw[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// truncate limits s to max runes, not bytes, so multibyte text is never cut
// mid-character.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
