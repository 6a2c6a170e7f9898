package pipeline

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plantset-cli/internal/config"
	"github.com/sells-group/plantset-cli/internal/manifest"
	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/store"
)

// testImage renders one of four visually distinct 90x80 patterns, chosen so
// their difference hashes land far apart and nothing groups as a near
// duplicate by accident.
func testImage(t *testing.T, pattern string) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 90, 80))
	for y := 0; y < 80; y++ {
		for x := 0; x < 90; x++ {
			var v uint8
			switch pattern {
			case "ramp-x":
				v = uint8(255 * x / 90)
			case "ramp-y":
				v = uint8(255 * y / 80)
			case "stripes":
				if (x/10)%2 == 0 {
					v = 230
				} else {
					v = 20
				}
			case "stripes-shifted":
				if (x/10)%2 == 1 {
					v = 230
				} else {
					v = 20
				}
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func buildZip(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Data: config.Data{Root: t.TempDir()},
		Fetch: config.Fetch{
			Workers:        2,
			MaxAttempts:    2,
			InitialBackoff: time.Millisecond,
			Timeout:        10 * time.Second,
			RatePerHost:    100,
		},
		Normalize: config.Normalize{Workers: 2},
		Dedup: config.Dedup{
			Workers:          2,
			HammingThreshold: 8,
			FileTimeout:      5 * time.Second,
		},
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func serveArchive(t *testing.T, archive []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineFullRun(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"healthy/h1.png":   testImage(t, "ramp-x"),
		"healthy/h2.png":   testImage(t, "stripes"),
		"unhealthy/u1.png": testImage(t, "ramp-y"),
		"unhealthy/u2.png": testImage(t, "stripes-shifted"),
	})
	srv := serveArchive(t, archive)

	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, []model.SourceDescriptor{{
		Name:     "megaplant",
		Origin:   srv.URL + "/megaplant.zip",
		Format:   model.ArchiveZip,
		Checksum: sha256hex(archive),
		Adapter:  "megaplant",
	}})

	run, err := p.Run(context.Background(), SplitOptions{
		Ratios:      []float64{0.5, 0.5},
		Seed:        42,
		Materialize: true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.FetchedSources)
	assert.Equal(t, 0, run.Summary.FailedSources)
	assert.Equal(t, 4, run.Summary.Normalized)
	assert.Equal(t, 4, run.Summary.Groups)
	assert.Equal(t, 0, run.Summary.ExcludedDuplicate)
	assert.Equal(t, 0, run.Summary.ExcludedCorrupt)
	assert.Equal(t, 4, run.Summary.Survivors())
	for _, split := range []string{"train", "test"} {
		assert.Equal(t, 1, run.Summary.SplitCounts[split][model.ClassHealthy])
		assert.Equal(t, 1, run.Summary.SplitCounts[split][model.ClassUnhealthy])
	}

	// Every stage checkpoint is on disk.
	dir := manifest.NewDir(cfg.Data.Root, run.ID)
	for _, name := range []string{manifest.NormalizedFile, manifest.DedupFile, manifest.CorruptFile, manifest.SplitFile} {
		assert.True(t, dir.Exists(name), "manifest %s must be persisted", name)
	}

	n, err := st.CountSplitAssignments(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	stages, err := st.ListStages(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	for _, stage := range stages {
		assert.Equal(t, model.StageStatusComplete, stage.Status)
	}

	// Materialized tree holds one file per survivor.
	var placed int
	require.NoError(t, filepath.Walk(splitsDir(cfg), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			placed++
		}
		return nil
	}))
	assert.Equal(t, 4, placed)
}

func TestPipelineIsolatesChecksumFailure(t *testing.T) {
	good := buildZip(t, map[string][]byte{
		"healthy/h1.png":   testImage(t, "ramp-x"),
		"healthy/h2.png":   testImage(t, "stripes"),
		"unhealthy/u1.png": testImage(t, "ramp-y"),
		"unhealthy/u2.png": testImage(t, "stripes-shifted"),
	})
	goodSrv := serveArchive(t, good)
	badSrv := serveArchive(t, []byte("tampered bytes"))

	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, []model.SourceDescriptor{
		{
			Name:     "megaplant",
			Origin:   goodSrv.URL + "/megaplant.zip",
			Format:   model.ArchiveZip,
			Checksum: sha256hex(good),
			Adapter:  "megaplant",
		},
		{
			Name:     "diamos",
			Origin:   badSrv.URL + "/diamos.zip",
			Format:   model.ArchiveZip,
			Checksum: sha256hex(good), // will not match the tampered body
			Adapter:  "diamos",
		},
	})

	run, err := p.Run(context.Background(), SplitOptions{Ratios: []float64{0.5, 0.5}, Seed: 1})
	require.NoError(t, err, "one bad source must not abort the run")
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 1, run.Summary.FetchedSources)
	assert.Equal(t, 1, run.Summary.FailedSources)
	assert.Equal(t, 4, run.Summary.Normalized)
}

func TestPipelineFailsWhenNoSourceStages(t *testing.T) {
	badSrv := serveArchive(t, []byte("junk"))

	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, []model.SourceDescriptor{{
		Name:     "megaplant",
		Origin:   badSrv.URL + "/megaplant.zip",
		Format:   model.ArchiveZip,
		Checksum: "deadbeef",
		Adapter:  "megaplant",
	}})

	run, err := p.Run(context.Background(), SplitOptions{Ratios: []float64{0.5, 0.5}, Seed: 1})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFetch, stageErr.Stage)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestPipelineRunUntilAndSplitFrom(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"healthy/h1.png":   testImage(t, "ramp-x"),
		"healthy/h2.png":   testImage(t, "stripes"),
		"unhealthy/u1.png": testImage(t, "ramp-y"),
		"unhealthy/u2.png": testImage(t, "stripes-shifted"),
	})
	srv := serveArchive(t, archive)

	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, []model.SourceDescriptor{{
		Name:     "megaplant",
		Origin:   srv.URL + "/megaplant.zip",
		Format:   model.ArchiveZip,
		Checksum: sha256hex(archive),
		Adapter:  "megaplant",
	}})

	base, err := p.RunUntil(context.Background(), StageDedup, SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, base.Status)
	assert.Nil(t, base.Summary.SplitCounts)

	resplit, err := p.SplitFrom(context.Background(), base.ID, SplitOptions{
		Ratios: []float64{0.5, 0.5},
		Seed:   7,
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, resplit.Status)
	assert.Equal(t, 4, resplit.Summary.Normalized)
	assert.NotEmpty(t, resplit.Summary.SplitCounts)

	stages, err := st.ListStages(context.Background(), resplit.ID)
	require.NoError(t, err)
	require.Len(t, stages, 4)
	skipped := 0
	for _, stage := range stages {
		if stage.Status == model.StageStatusSkipped {
			skipped++
		}
	}
	assert.Equal(t, 3, skipped)

	dir := manifest.NewDir(cfg.Data.Root, resplit.ID)
	assert.True(t, dir.Exists(manifest.SplitFile))
}

func TestPipelineDedupFrom(t *testing.T) {
	archive := buildZip(t, map[string][]byte{
		"healthy/h1.png":   testImage(t, "ramp-x"),
		"healthy/h2.png":   testImage(t, "stripes"),
		"unhealthy/u1.png": testImage(t, "ramp-y"),
		"unhealthy/u2.png": testImage(t, "stripes-shifted"),
	})
	srv := serveArchive(t, archive)

	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, []model.SourceDescriptor{{
		Name:     "megaplant",
		Origin:   srv.URL + "/megaplant.zip",
		Format:   model.ArchiveZip,
		Checksum: sha256hex(archive),
		Adapter:  "megaplant",
	}})

	base, err := p.RunUntil(context.Background(), StageNormalize, SplitOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, base.Status)
	assert.Equal(t, 4, base.Summary.Normalized)

	redo, err := p.DedupFrom(context.Background(), base.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, redo.Status)
	assert.Equal(t, 4, redo.Summary.Normalized)
	assert.Equal(t, 4, redo.Summary.Groups)

	stages, err := st.ListStages(context.Background(), redo.ID)
	require.NoError(t, err)
	require.Len(t, stages, 3)
	skipped := 0
	for _, stage := range stages {
		if stage.Status == model.StageStatusSkipped {
			skipped++
		}
	}
	assert.Equal(t, 2, skipped)

	dir := manifest.NewDir(cfg.Data.Root, redo.ID)
	assert.True(t, dir.Exists(manifest.DedupFile))
	assert.False(t, dir.Exists(manifest.SplitFile))
}

func TestPipelineDedupFromMissingManifest(t *testing.T) {
	cfg := testConfig(t)
	st := newTestStore(t)
	p := New(cfg, st, nil)

	_, err := p.DedupFrom(context.Background(), "no-such-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no normalized manifest")
}
