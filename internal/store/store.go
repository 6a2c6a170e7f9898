package store

import (
	"context"
	"time"

	"github.com/sells-group/plantset-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline runs. Manifests hold
// the stage payloads on disk; the store holds run and stage bookkeeping plus
// the queryable split assignment table.
type Store interface {
	// Runs
	CreateRun(ctx context.Context) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Stages
	CreateStage(ctx context.Context, runID, name string) (*model.StageResult, error)
	CompleteStage(ctx context.Context, stageID string, status model.StageStatus, stageErr string, duration time.Duration, metadata map[string]any) error
	ListStages(ctx context.Context, runID string) ([]model.StageResult, error)

	// Split assignments
	SaveSplitAssignments(ctx context.Context, runID string, assignments []model.SplitAssignment) error
	CountSplitAssignments(ctx context.Context, runID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
