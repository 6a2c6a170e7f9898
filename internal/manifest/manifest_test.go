package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plantset-cli/internal/dedup"
	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/splitter"
)

func sampleRecords() []model.ImageRecord {
	return []model.ImageRecord{
		{
			Source:        "plantvillage",
			OriginalPath:  "color/Tomato_healthy/a.jpg",
			CanonicalPath: "healthy/plantvillage_000000.jpg",
			Class:         model.ClassHealthy,
			ByteSize:      100,
		},
		{
			Source:        "plantdoc",
			OriginalPath:  "Tomato leaf bacterial spot/b.jpg",
			CanonicalPath: "unhealthy/plantdoc_000000.jpg",
			Class:         model.ClassUnhealthy,
			Symptom:       "spot",
			ByteSize:      80,
		},
	}
}

func TestNormalizedRoundTrip(t *testing.T) {
	dir := NewDir(t.TempDir(), "run-1")
	records := sampleRecords()

	require.NoError(t, dir.WriteNormalized(records))
	assert.True(t, dir.Exists(NormalizedFile))

	loaded, err := dir.ReadNormalized()
	require.NoError(t, err)
	assert.Equal(t, records, loaded)
}

func TestDedupRoundTrip(t *testing.T) {
	dir := NewDir(t.TempDir(), "run-1")
	records := sampleRecords()
	records[0].ContentHash = "aaaa"
	records[0].PerceptualHash = "00000000000000ff"
	records[1].ContentHash = "bbbb"
	records[1].PerceptualHash = "00000000000000fe"

	res := &dedup.Result{
		Records: records,
		Groups: []model.DuplicateGroup{
			{
				ID:   1,
				Kind: model.GroupNear,
				Members: []string{
					"healthy/plantvillage_000000.jpg",
					"unhealthy/plantdoc_000000.jpg",
				},
				Survivor: "healthy/plantvillage_000000.jpg",
			},
		},
		Corrupt: []dedup.CorruptFile{
			{CanonicalPath: "healthy/plantvillage_000099.jpg", Reason: "truncated jpeg"},
		},
	}
	require.NoError(t, dir.WriteDedup(res))

	loaded, err := dir.ReadDedup()
	require.NoError(t, err)
	assert.ElementsMatch(t, res.Records, loaded.Records)
	assert.Equal(t, res.Groups, loaded.Groups)
	assert.Equal(t, res.Corrupt, loaded.Corrupt)
}

func TestSplitManifestIsStableOnDisk(t *testing.T) {
	root := t.TempDir()
	dir := NewDir(root, "run-1")
	m := &splitter.Manifest{
		Assignments: []model.SplitAssignment{
			{CanonicalPath: "healthy/plantvillage_000000.jpg", Class: model.ClassHealthy, GroupID: 1, Split: "train"},
			{CanonicalPath: "unhealthy/plantdoc_000000.jpg", Class: model.ClassUnhealthy, GroupID: 2, Split: "val"},
		},
	}
	require.NoError(t, dir.WriteSplit(m))
	first, err := os.ReadFile(filepath.Join(dir.Path(), SplitFile))
	require.NoError(t, err)

	require.NoError(t, dir.WriteSplit(m))
	second, err := os.ReadFile(filepath.Join(dir.Path(), SplitFile))
	require.NoError(t, err)
	assert.Equal(t, first, second, "rewriting the same manifest must be byte-identical")

	loaded, err := dir.ReadSplit()
	require.NoError(t, err)
	assert.Equal(t, m.Assignments, loaded)
}

func TestWriteIsAtomic(t *testing.T) {
	dir := NewDir(t.TempDir(), "run-1")
	require.NoError(t, dir.WriteNormalized(sampleRecords()))

	entries, err := os.ReadDir(dir.Path())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"))
	}
}

func TestListRunIDs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, NewDir(root, "b-run").WriteNormalized(nil))
	require.NoError(t, NewDir(root, "a-run").WriteNormalized(nil))

	ids, err := ListRunIDs(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-run", "b-run"}, ids)

	none, err := ListRunIDs(filepath.Join(root, "missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
