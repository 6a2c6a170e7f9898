package model

import "time"

// RunStatus tracks a pipeline run through its stages.
type RunStatus string

const (
	RunStatusQueued        RunStatus = "queued"
	RunStatusFetching      RunStatus = "fetching"
	RunStatusNormalizing   RunStatus = "normalizing"
	RunStatusDeduplicating RunStatus = "deduplicating"
	RunStatusSplitting     RunStatus = "splitting"
	RunStatusComplete      RunStatus = "complete"
	RunStatusFailed        RunStatus = "failed"
)

// StageStatus is the outcome of one pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// Run is one pipeline invocation. Manifests are versioned by Run.ID so a
// later stage can be re-run against a previous run's persisted output.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// StageResult records the outcome of one stage within a run.
type StageResult struct {
	ID        string         `json:"id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Name      string         `json:"name"`
	Status    StageStatus    `json:"status"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	StartedAt time.Time      `json:"started_at,omitempty"`
}

// RunSummary is the end-of-run count report, produced regardless of partial
// failures so a partially successful run is still actionable.
type RunSummary struct {
	FetchedSources    int `json:"fetched_sources"`
	FailedSources     int `json:"failed_sources"`
	Normalized        int `json:"normalized"`
	ExcludedDuplicate int `json:"excluded_duplicate"`
	ExcludedCorrupt   int `json:"excluded_corrupt"`
	Groups            int `json:"groups"`

	// SplitCounts is split -> class -> record count.
	SplitCounts map[string]map[ClassLabel]int `json:"split_counts,omitempty"`
}

// Survivors is the number of records retained after deduplication.
func (s *RunSummary) Survivors() int {
	return s.Normalized - s.ExcludedDuplicate - s.ExcludedCorrupt
}
