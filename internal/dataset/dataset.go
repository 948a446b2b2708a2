// Package dataset owns the flat CSV dataset: this process is its sole writer.
package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/astrodata/apod-pipeline/internal/models"
)

var header = []string{"date", "title", "url", "hdurl", "media_type", "explanation", "copyright", "retrieved_at"}

// Dataset reads and rewrites a single CSV file of canonical records, unique
// by date and ordered by date descending.
type Dataset struct {
	path string
}

// New returns a Dataset rooted at path. The file may not exist yet.
func New(path string) *Dataset {
	return &Dataset{path: path}
}

// Path returns the dataset file location.
func (d *Dataset) Path() string {
	return d.path
}

// Load reads all records. A missing file is an empty dataset, not an error.
func (d *Dataset) Load() ([]models.Record, error) {
	f, err := os.Open(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("dataset row has %d columns, want %d", len(row), len(header))
		}
		rec := models.Record{
			Date:        row[0],
			Title:       row[1],
			URL:         row[2],
			HDURL:       row[3],
			MediaType:   row[4],
			Explanation: row[5],
			Copyright:   row[6],
		}
		if row[7] != "" {
			ts, err := time.Parse(time.RFC3339, row[7])
			if err != nil {
				return nil, fmt.Errorf("dataset row for %s: bad retrieved_at: %w", rec.Date, err)
			}
			rec.RetrievedAt = ts
		}
		records = append(records, rec)
	}
	return records, nil
}

// Latest returns the most recent record by date, or nil for an empty dataset.
func (d *Dataset) Latest() (*models.Record, error) {
	records, err := d.Load()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	latest := records[0]
	for _, rec := range records[1:] {
		if rec.Date > latest.Date {
			latest = rec
		}
	}
	return &latest, nil
}

// Upsert merges rec into the dataset and rewrites the file atomically. Any
// existing entry with the same date is replaced.
func (d *Dataset) Upsert(rec models.Record) error {
	existing, err := d.Load()
	if err != nil {
		return err
	}
	return d.write(Merge(existing, rec))
}

// Merge replaces any same-date entry with rec and returns the result sorted
// by date descending. The input slice is not modified.
func Merge(records []models.Record, rec models.Record) []models.Record {
	merged := make([]models.Record, 0, len(records)+1)
	for _, r := range records {
		if r.Date != rec.Date {
			merged = append(merged, r)
		}
	}
	merged = append(merged, rec)
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Date > merged[j].Date
	})
	return merged
}

// write replaces the dataset file via write-to-temp-then-rename so a crash
// mid-write never leaves a truncated file behind.
func (d *Dataset) write(records []models.Record) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dataset dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp dataset: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		tmp.Close()
		if !committed {
			os.Remove(tmpName)
		}
	}()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write dataset header: %w", err)
	}
	for _, rec := range records {
		retrieved := ""
		if !rec.RetrievedAt.IsZero() {
			retrieved = rec.RetrievedAt.UTC().Format(time.RFC3339)
		}
		row := []string{rec.Date, rec.Title, rec.URL, rec.HDURL, rec.MediaType, rec.Explanation, rec.Copyright, retrieved}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write dataset row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush dataset: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		return fmt.Errorf("replace dataset: %w", err)
	}
	committed = true
	return nil
}
