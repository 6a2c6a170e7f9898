package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plantset-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunStatusQueued, run.Status)

	require.NoError(t, st.UpdateRunStatus(ctx, run.ID, model.RunStatusFetching))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFetching, got.Status)
	assert.Nil(t, got.Summary)

	summary := &model.RunSummary{
		FetchedSources:    3,
		Normalized:        150,
		ExcludedDuplicate: 10,
		ExcludedCorrupt:   2,
		Groups:            138,
		SplitCounts: map[string]map[model.ClassLabel]int{
			"train": {model.ClassHealthy: 80, model.ClassUnhealthy: 40},
		},
	}
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusComplete, summary))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary, got.Summary)
	assert.Equal(t, 138, got.Summary.Survivors())
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetRun(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_UpdateRunStatus_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.UpdateRunStatus(context.Background(), "nonexistent", model.RunStatusFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestSQLite_ListRuns_FilterAndOrder(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx)
	require.NoError(t, err)
	second, err := st.CreateRun(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunStatus(ctx, second.ID, model.RunStatusFailed))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	ids := []string{all[0].ID, all[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, second.ID, failed[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_StageLifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	stage, err := st.CreateStage(ctx, run.ID, "fetch")
	require.NoError(t, err)
	assert.Equal(t, model.StageStatusRunning, stage.Status)

	meta := map[string]any{"sources": float64(4), "failed": float64(1)}
	require.NoError(t, st.CompleteStage(ctx, stage.ID, model.StageStatusComplete, "", 1500*time.Millisecond, meta))

	dedup, err := st.CreateStage(ctx, run.ID, "dedup")
	require.NoError(t, err)
	require.NoError(t, st.CompleteStage(ctx, dedup.ID, model.StageStatusFailed, "corrupt index", 10*time.Millisecond, nil))

	stages, err := st.ListStages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, stages, 2)

	assert.Equal(t, "fetch", stages[0].Name)
	assert.Equal(t, model.StageStatusComplete, stages[0].Status)
	assert.Equal(t, int64(1500), stages[0].Duration)
	assert.Equal(t, meta, stages[0].Metadata)

	assert.Equal(t, "dedup", stages[1].Name)
	assert.Equal(t, model.StageStatusFailed, stages[1].Status)
	assert.Equal(t, "corrupt index", stages[1].Error)
}

func TestSQLite_SplitAssignments(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx)
	require.NoError(t, err)

	assignments := []model.SplitAssignment{
		{CanonicalPath: "healthy/pv_000000.jpg", Class: model.ClassHealthy, GroupID: 1, Split: "train"},
		{CanonicalPath: "healthy/pv_000001.jpg", Class: model.ClassHealthy, GroupID: 2, Split: "val"},
		{CanonicalPath: "unhealthy/pd_000000.jpg", Class: model.ClassUnhealthy, GroupID: 3, Split: "train"},
	}
	require.NoError(t, st.SaveSplitAssignments(ctx, run.ID, assignments))

	n, err := st.CountSplitAssignments(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Saving again replaces rather than duplicates.
	require.NoError(t, st.SaveSplitAssignments(ctx, run.ID, assignments))
	n, err = st.CountSplitAssignments(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
