// Package pipeline orchestrates the curation stages in fixed order:
// fetch, normalize, dedup, split. Each stage's manifest is persisted before
// the next stage starts, so any stage can be re-run against a previous
// run's checkpoint without redoing earlier work.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/plantset-cli/internal/config"
	"github.com/sells-group/plantset-cli/internal/dedup"
	"github.com/sells-group/plantset-cli/internal/fetcher"
	"github.com/sells-group/plantset-cli/internal/manifest"
	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/normalizer"
	"github.com/sells-group/plantset-cli/internal/resilience"
	"github.com/sells-group/plantset-cli/internal/splitter"
	"github.com/sells-group/plantset-cli/internal/store"
)

// Stage names as persisted in the store and surfaced on failure.
const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageDedup     = "dedup"
	StageSplit     = "split"
)

func processedDir(cfg *config.Config) string {
	return filepath.Join(cfg.Data.Root, "processed")
}

func splitsDir(cfg *config.Config) string {
	return filepath.Join(cfg.Data.Root, "splits")
}

// SplitOptions configures the final stage.
type SplitOptions struct {
	Ratios      []float64
	Seed        int64
	Materialize bool
}

// Pipeline wires the stages over one store and one data root.
type Pipeline struct {
	cfg     *config.Config
	store   store.Store
	sources []model.SourceDescriptor
	stager  *fetcher.Stager
}

// New creates a Pipeline with downloaders built from the fetch config.
func New(cfg *config.Config, st store.Store, sources []model.SourceDescriptor) *Pipeline {
	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		InitialBackoff: cfg.Fetch.InitialBackoff,
	}
	httpDL := fetcher.NewHTTPDownloader(fetcher.HTTPOptions{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.Fetch.Timeout,
		Retry:       retry,
		RatePerHost: rate.Limit(cfg.Fetch.RatePerHost),
		Progress:    cfg.Fetch.ProgressBar,
	})
	ftpDL := fetcher.NewFTPDownloader(fetcher.FTPOptions{Retry: retry})

	return &Pipeline{
		cfg:     cfg,
		store:   st,
		sources: sources,
		stager:  fetcher.NewStager(cfg.Data.Root, httpDL, ftpDL, cfg.Fetch.Workers),
	}
}

// StageError marks which stage a run died in, for stage-identifying exit
// codes at the CLI surface.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return "stage " + e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }

// Run executes the full pipeline as a new run. The returned summary is
// populated as far as the run got, even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, opts SplitOptions) (*model.Run, error) {
	return p.RunUntil(ctx, StageSplit, opts)
}

// RunUntil executes stages in order up to and including last. Earlier
// stages always run; they are idempotent against existing staging and
// canonical trees, so re-running them converges quickly.
func (p *Pipeline) RunUntil(ctx context.Context, last string, opts SplitOptions) (*model.Run, error) {
	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	run.Summary = &model.RunSummary{}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run", zap.String("until", last))

	dir := manifest.NewDir(p.cfg.Data.Root, run.ID)

	staged, err := p.runFetch(ctx, run)
	if err != nil {
		return p.fail(ctx, run, err)
	}
	if last == StageFetch {
		return p.complete(ctx, run)
	}

	records, err := p.runNormalize(ctx, run, dir, staged)
	if err != nil {
		return p.fail(ctx, run, err)
	}
	if last == StageNormalize {
		return p.complete(ctx, run)
	}

	dedupRes, err := p.runDedup(ctx, run, dir, records)
	if err != nil {
		return p.fail(ctx, run, err)
	}
	if last == StageDedup {
		return p.complete(ctx, run)
	}

	if err := p.runSplit(ctx, run, dir, dedupRes, opts); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.complete(ctx, run)
}

// SplitFrom re-runs only the split stage against a previous run's persisted
// dedup manifest, recording the earlier stages as skipped in the new run.
func (p *Pipeline) SplitFrom(ctx context.Context, fromRunID string, opts SplitOptions) (*model.Run, error) {
	fromDir := manifest.NewDir(p.cfg.Data.Root, fromRunID)
	if !fromDir.Exists(manifest.DedupFile) {
		available, _ := manifest.ListRunIDs(p.cfg.Data.Root)
		return nil, eris.Errorf("pipeline: run %s has no dedup manifest to split from (runs with manifests: %v)", fromRunID, available)
	}
	res, err := fromDir.ReadDedup()
	if err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	run.Summary = &model.RunSummary{
		Normalized:        len(res.Records) + len(res.Corrupt),
		Groups:            len(res.Groups),
		ExcludedDuplicate: res.Excluded(),
		ExcludedCorrupt:   len(res.Corrupt),
	}
	zap.L().Info("pipeline: splitting from checkpoint",
		zap.String("run_id", run.ID),
		zap.String("from_run_id", fromRunID))

	for _, name := range []string{StageFetch, StageNormalize, StageDedup} {
		p.skipStage(ctx, run, name, fromRunID)
	}

	dir := manifest.NewDir(p.cfg.Data.Root, run.ID)
	if err := p.runSplit(ctx, run, dir, res, opts); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.complete(ctx, run)
}

// DedupFrom re-runs deduplication against a previous run's persisted
// normalized manifest, recording fetch and normalize as skipped in the new
// run. The canonical tree the manifest describes must still be on disk.
func (p *Pipeline) DedupFrom(ctx context.Context, fromRunID string) (*model.Run, error) {
	fromDir := manifest.NewDir(p.cfg.Data.Root, fromRunID)
	if !fromDir.Exists(manifest.NormalizedFile) {
		available, _ := manifest.ListRunIDs(p.cfg.Data.Root)
		return nil, eris.Errorf("pipeline: run %s has no normalized manifest to dedup from (runs with manifests: %v)", fromRunID, available)
	}
	records, err := fromDir.ReadNormalized()
	if err != nil {
		return nil, err
	}

	run, err := p.store.CreateRun(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	run.Summary = &model.RunSummary{Normalized: len(records)}
	zap.L().Info("pipeline: deduplicating from checkpoint",
		zap.String("run_id", run.ID),
		zap.String("from_run_id", fromRunID))

	for _, name := range []string{StageFetch, StageNormalize} {
		p.skipStage(ctx, run, name, fromRunID)
	}

	dir := manifest.NewDir(p.cfg.Data.Root, run.ID)
	if _, err := p.runDedup(ctx, run, dir, records); err != nil {
		return p.fail(ctx, run, err)
	}
	return p.complete(ctx, run)
}

func (p *Pipeline) complete(ctx context.Context, run *model.Run) (*model.Run, error) {
	run.Status = model.RunStatusComplete
	if err := p.store.CompleteRun(ctx, run.ID, run.Status, run.Summary); err != nil {
		return run, eris.Wrap(err, "pipeline: complete run")
	}
	zap.L().Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("normalized", run.Summary.Normalized),
		zap.Int("groups", run.Summary.Groups),
		zap.Int("excluded_duplicate", run.Summary.ExcludedDuplicate),
		zap.Int("excluded_corrupt", run.Summary.ExcludedCorrupt))
	return run, nil
}

func (p *Pipeline) skipStage(ctx context.Context, run *model.Run, name, fromRunID string) {
	stage, err := p.store.CreateStage(ctx, run.ID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(err))
		return
	}
	meta := map[string]any{"from_run_id": fromRunID}
	if err := p.store.CompleteStage(ctx, stage.ID, model.StageStatusSkipped, "", 0, meta); err != nil {
		zap.L().Warn("pipeline: failed to mark stage skipped", zap.String("stage", name), zap.Error(err))
	}
}

// fail persists the failed status and partial summary; the summary is
// reported even for a partially successful run.
func (p *Pipeline) fail(ctx context.Context, run *model.Run, err error) (*model.Run, error) {
	run.Status = model.RunStatusFailed
	if storeErr := p.store.CompleteRun(ctx, run.ID, run.Status, run.Summary); storeErr != nil {
		zap.L().Warn("pipeline: failed to persist failure", zap.Error(storeErr))
	}
	return run, err
}

// trackStage persists stage bookkeeping around fn. fn's error is returned
// wrapped as a StageError.
func (p *Pipeline) trackStage(ctx context.Context, run *model.Run, name string, status model.RunStatus, fn func() (map[string]any, error)) error {
	if err := p.store.UpdateRunStatus(ctx, run.ID, status); err != nil {
		zap.L().Warn("pipeline: failed to update status", zap.Error(err))
	}
	run.Status = status

	stage, err := p.store.CreateStage(ctx, run.ID, name)
	if err != nil {
		zap.L().Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(err))
	}

	start := time.Now()
	metadata, fnErr := fn()
	duration := time.Since(start)

	stageStatus := model.StageStatusComplete
	errMsg := ""
	if fnErr != nil {
		stageStatus = model.StageStatusFailed
		errMsg = fnErr.Error()
		zap.L().Error("pipeline: stage failed",
			zap.String("run_id", run.ID),
			zap.String("stage", name),
			zap.Duration("duration", duration),
			zap.Error(fnErr))
	} else {
		zap.L().Info("pipeline: stage complete",
			zap.String("run_id", run.ID),
			zap.String("stage", name),
			zap.Duration("duration", duration))
	}

	if stage != nil {
		if err := p.store.CompleteStage(ctx, stage.ID, stageStatus, errMsg, duration, metadata); err != nil {
			zap.L().Warn("pipeline: failed to complete stage", zap.String("stage", name), zap.Error(err))
		}
	}
	if fnErr != nil {
		return &StageError{Stage: name, Err: fnErr}
	}
	return nil
}

// runFetch stages every configured source. A single source failing with a
// DownloadError or NetworkError is excluded and counted; the stage only
// fails when no source could be staged.
func (p *Pipeline) runFetch(ctx context.Context, run *model.Run) ([]normalizer.StagedSource, error) {
	var staged []normalizer.StagedSource

	err := p.trackStage(ctx, run, StageFetch, model.RunStatusFetching, func() (map[string]any, error) {
		results := p.stager.FetchAll(ctx, p.sources)

		byName := make(map[string]model.SourceDescriptor, len(p.sources))
		for _, sd := range p.sources {
			byName[sd.Name] = sd
		}
		var failed []string
		for _, res := range results {
			if res.Err != nil {
				failed = append(failed, res.Source)
				run.Summary.FailedSources++
				zap.L().Error("pipeline: source failed",
					zap.String("source", res.Source),
					zap.Error(res.Err))
				continue
			}
			run.Summary.FetchedSources++
			staged = append(staged, normalizer.StagedSource{
				Descriptor: byName[res.Source],
				Root:       res.StagingPath,
			})
		}

		metadata := map[string]any{
			"fetched": run.Summary.FetchedSources,
			"failed":  failed,
		}
		if len(staged) == 0 {
			return metadata, eris.Errorf("no source could be staged (%d failed)", len(failed))
		}
		return metadata, nil
	})
	return staged, err
}

func (p *Pipeline) runNormalize(ctx context.Context, run *model.Run, dir *manifest.Dir, staged []normalizer.StagedSource) ([]model.ImageRecord, error) {
	var records []model.ImageRecord

	err := p.trackStage(ctx, run, StageNormalize, model.RunStatusNormalizing, func() (map[string]any, error) {
		n := normalizer.New(p.cfg.Data.Root, p.cfg.Normalize.Workers)
		var err error
		records, err = n.NormalizeAll(ctx, staged)
		if err != nil {
			return nil, err
		}
		run.Summary.Normalized = len(records)
		if err := dir.WriteNormalized(records); err != nil {
			return nil, err
		}
		return map[string]any{"records": len(records)}, nil
	})
	return records, err
}

func (p *Pipeline) runDedup(ctx context.Context, run *model.Run, dir *manifest.Dir, records []model.ImageRecord) (*dedup.Result, error) {
	var res *dedup.Result

	err := p.trackStage(ctx, run, StageDedup, model.RunStatusDeduplicating, func() (map[string]any, error) {
		d := dedup.New(processedDir(p.cfg), dedup.Options{
			Workers:          p.cfg.Dedup.Workers,
			HammingThreshold: p.cfg.Dedup.HammingThreshold,
			FileTimeout:      p.cfg.Dedup.FileTimeout,
		})
		var err error
		res, err = d.Dedup(ctx, records)
		if err != nil {
			return nil, err
		}
		run.Summary.Groups = len(res.Groups)
		run.Summary.ExcludedDuplicate = res.Excluded()
		run.Summary.ExcludedCorrupt = len(res.Corrupt)
		if err := dir.WriteDedup(res); err != nil {
			return nil, err
		}
		return map[string]any{
			"groups":             len(res.Groups),
			"excluded_duplicate": res.Excluded(),
			"excluded_corrupt":   len(res.Corrupt),
		}, nil
	})
	return res, err
}

func (p *Pipeline) runSplit(ctx context.Context, run *model.Run, dir *manifest.Dir, res *dedup.Result, opts SplitOptions) error {
	return p.trackStage(ctx, run, StageSplit, model.RunStatusSplitting, func() (map[string]any, error) {
		m, err := splitter.Split(res.Records, res.Groups, opts.Ratios, opts.Seed)
		if err != nil {
			return nil, err
		}
		run.Summary.SplitCounts = m.Counts
		if err := dir.WriteSplit(m); err != nil {
			return nil, err
		}
		if err := p.store.SaveSplitAssignments(ctx, run.ID, m.Assignments); err != nil {
			return nil, err
		}

		metadata := map[string]any{
			"seed":    opts.Seed,
			"ratios":  opts.Ratios,
			"records": len(m.Assignments),
		}
		if opts.Materialize {
			placed, err := splitter.Materialize(m, res.Groups, processedDir(p.cfg), splitsDir(p.cfg))
			if err != nil {
				return metadata, err
			}
			metadata["materialized"] = placed
		}
		return metadata, nil
	})
}
