package models

import "time"

// DateLayout is the wire and storage format for logical dates.
const DateLayout = "2006-01-02"

// Media types recognized in canonical records.
const (
	MediaTypeImage = "image"
	MediaTypeVideo = "video"
	MediaTypeOther = "other"
)

// RawRecord is the unstructured payload returned by the APOD API or by a
// fallback source. No field is guaranteed to be present.
type RawRecord map[string]any

// Record is the canonical APOD record produced by the normalizer.
type Record struct {
	Date        string    `json:"date"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	HDURL       string    `json:"hdurl,omitempty"`
	MediaType   string    `json:"media_type"`
	Explanation string    `json:"explanation"`
	Copyright   string    `json:"copyright,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// PersistedRecord is a Record as stored in the relational table, with the
// surrogate key and row timestamps.
type PersistedRecord struct {
	ID        int64 `json:"id"`
	Record    `json:",inline"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Manifest producers.
const (
	ProducedByRealTool  = "real_tool"
	ProducedBySimulated = "simulated"
)

// VersionManifest describes one versioned state of the flat dataset.
type VersionManifest struct {
	ArtifactPath string `json:"artifact_path"`
	Checksum     string `json:"content_checksum"`
	SizeBytes    int64  `json:"size_bytes"`
	ProducedBy   string `json:"produced_by"` // real_tool or simulated
}

// CommitRecord describes a commit created by the publisher. It exists only
// when at least one staged path differed from the repository's last state.
type CommitRecord struct {
	Hash        string    `json:"hash"`
	Message     string    `json:"message"`
	Author      string    `json:"author"`
	Timestamp   time.Time `json:"timestamp"`
	StagedPaths []string  `json:"staged_paths"`
}

// Stage names reported in run output.
const (
	StageExtract   = "extract"
	StageNormalize = "normalize"
	StagePersist   = "persist"
	StageVerify    = "verify"
	StageVersion   = "version"
	StagePublish   = "publish"
)

// StageResult records the outcome of one pipeline stage.
type StageResult struct {
	Stage    string        `json:"stage"`
	OK       bool          `json:"ok"`
	Warning  string        `json:"warning,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunReport is the exit contract handed back to the invoking scheduler:
// per-stage outcomes plus the overall verdict. Warnings do not fail a run.
type RunReport struct {
	RunID      string           `json:"run_id"`
	Date       string           `json:"date"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Stages     []StageResult    `json:"stages"`
	Warnings   []string         `json:"warnings,omitempty"`
	Commit     *CommitRecord    `json:"commit,omitempty"`
	Manifest   *VersionManifest `json:"manifest,omitempty"`
	Success    bool             `json:"success"`
}

// AddStage appends a stage result and folds its warning into the report.
func (r *RunReport) AddStage(s StageResult) {
	r.Stages = append(r.Stages, s)
	if s.Warning != "" {
		r.Warnings = append(r.Warnings, s.Stage+": "+s.Warning)
	}
}

// RunStatus tracks the most recent pipeline run for the status endpoint.
type RunStatus struct {
	LastSuccessfulRun time.Time `json:"last_successful_run"`
	LastAttempt       time.Time `json:"last_attempt"`
	LastDate          string    `json:"last_date,omitempty"`
	Status            string    `json:"status"` // "success", "failure", "running", "never_run"
	ErrorMessage      string    `json:"error_message,omitempty"`
	Warnings          int       `json:"warnings"`
}
