// Package pipeline chains the extract, normalize, persist, version and
// publish stages for one logical date per run.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/astrodata/apod-pipeline/internal/dataset"
	"github.com/astrodata/apod-pipeline/internal/metrics"
	"github.com/astrodata/apod-pipeline/internal/models"
	"github.com/astrodata/apod-pipeline/internal/normalize"
	"github.com/astrodata/apod-pipeline/internal/publish"
	"github.com/astrodata/apod-pipeline/internal/storage"
	"github.com/astrodata/apod-pipeline/internal/version"
)

// Fetcher produces a raw record for a date; the source chain implements it.
type Fetcher interface {
	Fetch(ctx context.Context, date string) (models.RawRecord, string, error)
}

// Publisher commits and pushes dataset changes.
type Publisher interface {
	Publish(ctx context.Context, date string, paths []string) (publish.Result, error)
}

// Pipeline wires the five stages together. Runs are strictly sequential
// within themselves; a run either completes the chain or stops at a stage
// boundary.
type Pipeline struct {
	fetcher    Fetcher
	normalizer *normalize.Normalizer
	store      storage.Storage
	ds         *dataset.Dataset
	versioner  version.Versioner
	publisher  Publisher
	now        func() time.Time
}

// New assembles a pipeline from its stages.
func New(fetcher Fetcher, normalizer *normalize.Normalizer, store storage.Storage,
	ds *dataset.Dataset, versioner version.Versioner, publisher Publisher) *Pipeline {
	return &Pipeline{
		fetcher:    fetcher,
		normalizer: normalizer,
		store:      store,
		ds:         ds,
		versioner:  versioner,
		publisher:  publisher,
		now:        time.Now,
	}
}

// Run executes the stage chain for one logical date. The returned error is
// non-nil only for fatal outcomes (validation, relational persistence);
// every other failure degrades to a warning in the report.
func (p *Pipeline) Run(ctx context.Context, date string) (models.RunReport, error) {
	report := models.RunReport{
		RunID:     uuid.NewString(),
		Date:      date,
		StartedAt: p.now().UTC(),
	}
	log.Printf("pipeline: run %s starting for %s", report.RunID, date)
	p.setStatus(ctx, models.RunStatus{
		LastAttempt: report.StartedAt,
		LastDate:    date,
		Status:      "running",
	})

	err := p.runStages(ctx, date, &report)

	report.FinishedAt = p.now().UTC()
	report.Success = err == nil
	outcome := "success"
	status := models.RunStatus{
		LastAttempt: report.StartedAt,
		LastDate:    date,
		Status:      "success",
		Warnings:    len(report.Warnings),
	}
	if err != nil {
		outcome = "failure"
		status.Status = "failure"
		status.ErrorMessage = err.Error()
		log.Printf("pipeline: run %s failed for %s: %v", report.RunID, date, err)
	} else {
		status.LastSuccessfulRun = report.FinishedAt
		log.Printf("pipeline: run %s finished for %s with %d warning(s)", report.RunID, date, len(report.Warnings))
	}
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	p.setStatus(ctx, status)

	return report, err
}

func (p *Pipeline) runStages(ctx context.Context, date string, report *models.RunReport) error {
	// Extract. The chain only fails when every fallback tier fails, which
	// means even the placeholder could not be built.
	var raw models.RawRecord
	err := p.stage(report, models.StageExtract, func() (string, error) {
		var tier string
		var err error
		raw, tier, err = p.fetcher.Fetch(ctx, date)
		if err != nil {
			return "", err
		}
		if tier != "" {
			log.Printf("pipeline: record for %s served by %q", date, tier)
		}
		return "", nil
	})
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}

	// Normalize. A dateless record aborts before any persistence.
	var rec models.Record
	err = p.stage(report, models.StageNormalize, func() (string, error) {
		var err error
		rec, err = p.normalizer.Normalize(raw)
		return "", err
	})
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}

	// Persist: relational write is fatal on error, the flat-file write is
	// independently best-effort and only warns.
	fileWritten := false
	err = p.stage(report, models.StagePersist, func() (string, error) {
		if err := p.store.UpsertRecord(ctx, rec); err != nil {
			return "", err
		}
		if err := p.ds.Upsert(rec); err != nil {
			return fmt.Sprintf("dataset write failed, relational write kept: %v", err), nil
		}
		fileWritten = true
		return "", nil
	})
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}

	// Verify both destinations; mismatches are warnings.
	p.stage(report, models.StageVerify, func() (string, error) {
		if row, err := p.store.GetRecordByDate(ctx, rec.Date); err != nil {
			return fmt.Sprintf("relational verification failed: %v", err), nil
		} else if row == nil {
			return "relational row missing after upsert", nil
		}
		if records, err := p.ds.Load(); err != nil {
			return fmt.Sprintf("dataset verification failed: %v", err), nil
		} else if fileWritten && len(records) == 0 {
			return "dataset empty after write", nil
		}
		return "", nil
	})

	// Version the dataset. Degradation inside the versioner is silent
	// here; only an unreadable artifact surfaces, and only as a warning.
	p.stage(report, models.StageVersion, func() (string, error) {
		manifest, err := p.versioner.Version(ctx, p.ds.Path())
		if err != nil {
			return fmt.Sprintf("versioning skipped: %v", err), nil
		}
		report.Manifest = &manifest
		return "", nil
	})

	// Publish. Commit errors stop further publish steps but never reverse
	// the earlier stages; push trouble is already a warning inside Publish.
	p.stage(report, models.StagePublish, func() (string, error) {
		base := filepath.Base(p.ds.Path())
		res, err := p.publisher.Publish(ctx, date, []string{base, base + version.ManifestExt})
		if err != nil {
			return fmt.Sprintf("publish failed: %v", err), nil
		}
		report.Commit = res.Commit
		if len(res.Warnings) > 0 {
			return res.Warnings[0], nil
		}
		return "", nil
	})

	return nil
}

// stage times fn, records its outcome and observes the duration metric.
// fn returns a warning string for degraded-but-successful outcomes.
func (p *Pipeline) stage(report *models.RunReport, name string, fn func() (string, error)) error {
	start := p.now()
	warning, err := fn()
	elapsed := p.now().Sub(start)
	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())

	result := models.StageResult{
		Stage:    name,
		OK:       err == nil,
		Warning:  warning,
		Duration: elapsed,
	}
	if err != nil {
		result.Error = err.Error()
	}
	report.AddStage(result)
	return err
}

func (p *Pipeline) setStatus(ctx context.Context, status models.RunStatus) {
	if prev, err := p.store.GetRunStatus(ctx); err == nil && status.LastSuccessfulRun.IsZero() {
		status.LastSuccessfulRun = prev.LastSuccessfulRun
	}
	if err := p.store.UpdateRunStatus(ctx, status); err != nil {
		log.Printf("pipeline: update run status: %v", err)
	}
}
