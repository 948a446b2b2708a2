package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/astrodata/apod-pipeline/internal/config"
	"github.com/astrodata/apod-pipeline/internal/metrics"
	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/util"
)

// retryableError marks a failure worth retrying: rate limiting, service
// unavailability, or a transport-level error.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// APODSource fetches records from the NASA APOD API with exponential
// backoff. Each retry blocks the caller for the backoff delay.
type APODSource struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	backoffBase time.Duration
	client      *http.Client

	// sleep is context-aware and injectable so tests can record delays
	// instead of waiting out minutes of backoff.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewAPODSource builds the primary tier from configuration.
func NewAPODSource(cfg config.APIConfig) *APODSource {
	return &APODSource{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		client:      util.NewHTTPClient(cfg.Timeout),
		sleep:       sleepCtx,
	}
}

func (s *APODSource) Name() string { return "apod_api" }

// Fetch attempts the API up to the attempt ceiling, doubling the delay after
// each retryable failure. Non-retryable failures (unexpected status codes,
// unparsable bodies) abort the loop immediately so the chain can fall back.
func (s *APODSource) Fetch(ctx context.Context, date string) (models.RawRecord, error) {
	delay := s.backoffBase
	var lastErr error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		rec, err := s.fetchOnce(ctx, date)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues(s.Name(), "success").Inc()
			return rec, nil
		}
		metrics.FetchAttempts.WithLabelValues(s.Name(), "failure").Inc()
		lastErr = err

		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return nil, err
		}
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", s.maxAttempts, lastErr)
}

func (s *APODSource) fetchOnce(ctx context.Context, date string) (models.RawRecord, error) {
	u := fmt.Sprintf("%s?api_key=%s&date=%s", s.baseURL, url.QueryEscape(s.apiKey), url.QueryEscape(date))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, &retryableError{err: fmt.Errorf("API returned status %d", resp.StatusCode)}
	default:
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("failed to read response body: %w", err)}
	}

	var rec models.RawRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return rec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
