// Package metrics exposes Prometheus instrumentation for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed pipeline runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apod_pipeline_runs_total",
		Help: "Completed pipeline runs by outcome.",
	}, []string{"outcome"})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "apod_pipeline_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})

	// FetchAttempts counts upstream fetch attempts by source and outcome.
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apod_source_fetch_attempts_total",
		Help: "Record source fetch attempts by source and outcome.",
	}, []string{"source", "outcome"})

	// Fallbacks counts how often a fallback tier had to serve a record.
	Fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apod_source_fallbacks_total",
		Help: "Times a fallback tier served the record instead of the API.",
	}, []string{"tier"})

	// Pushes counts publish push attempts by outcome.
	Pushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apod_publish_pushes_total",
		Help: "Git push attempts by outcome.",
	}, []string{"outcome"})
)
