// Package normalizer rewrites enumerated source files into the canonical
// processed/{class}/{source}_{id}.{ext} layout and emits one ImageRecord per
// retained file.
package normalizer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/source"
)

// Normalizer copies staged source trees into the canonical layout rooted at
// {dataRoot}/processed.
type Normalizer struct {
	dataRoot string
	workers  int
}

// New creates a Normalizer writing under dataRoot. workers bounds concurrent
// file copies; values below 1 are treated as 1.
func New(dataRoot string, workers int) *Normalizer {
	if workers < 1 {
		workers = 1
	}
	return &Normalizer{dataRoot: dataRoot, workers: workers}
}

// ProcessedDir returns the canonical layout root.
func (n *Normalizer) ProcessedDir() string {
	return filepath.Join(n.dataRoot, "processed")
}

// Normalize enumerates the staged tree through the source's adapter and
// materializes every entry into the canonical layout. Records are returned
// in enumeration order, which is deterministic for a given staged tree.
//
// An UnmappableLabelError from the adapter aborts the whole source: a file
// with no classification rule must surface rather than silently skew class
// balance.
func (n *Normalizer) Normalize(ctx context.Context, sd model.SourceDescriptor, stagedRoot string) ([]model.ImageRecord, error) {
	adapter, err := source.ForDescriptor(sd)
	if err != nil {
		return nil, err
	}

	// Enumerate serially first so sequence ids follow walk order and stay
	// stable across runs, then copy in parallel.
	var entries []source.Entry
	err = adapter.Enumerate(stagedRoot, func(e source.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "normalizer: enumerate source %s", sd.Name)
	}

	records := make([]model.ImageRecord, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n.workers)
	for i, entry := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := n.materialize(sd.Name, i, stagedRoot, entry)
			if err != nil {
				return err
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("source normalized",
		zap.String("source", sd.Name),
		zap.Int("records", len(records)))
	return records, nil
}

// StagedSource pairs a descriptor with its unpacked staging tree.
type StagedSource struct {
	Descriptor model.SourceDescriptor
	Root       string
}

// NormalizeAll runs Normalize for each staged source in order and returns the
// combined corpus. Sources are processed sequentially so canonical ids never
// depend on scheduling; the per-source copy fan-out supplies the parallelism.
func (n *Normalizer) NormalizeAll(ctx context.Context, staged []StagedSource) ([]model.ImageRecord, error) {
	var corpus []model.ImageRecord
	for _, s := range staged {
		records, err := n.Normalize(ctx, s.Descriptor, s.Root)
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, records...)
	}
	return corpus, nil
}

// materialize links or copies one staged file into the canonical layout and
// builds its record.
func (n *Normalizer) materialize(sourceName string, seq int, stagedRoot string, entry source.Entry) (model.ImageRecord, error) {
	srcPath := filepath.Join(stagedRoot, entry.RawPath)
	info, err := os.Stat(srcPath)
	if err != nil {
		return model.ImageRecord{}, eris.Wrapf(err, "normalizer: stat %s", srcPath)
	}

	rel := filepath.Join(string(entry.Class), canonicalName(sourceName, seq, entry.RawPath))
	destPath := filepath.Join(n.ProcessedDir(), rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return model.ImageRecord{}, eris.Wrapf(err, "normalizer: create class dir for %s", rel)
	}
	if err := linkOrCopy(srcPath, destPath); err != nil {
		return model.ImageRecord{}, eris.Wrapf(err, "normalizer: place %s", rel)
	}

	return model.ImageRecord{
		Source:        sourceName,
		OriginalPath:  entry.RawPath,
		CanonicalPath: filepath.ToSlash(rel),
		Class:         entry.Class,
		Symptom:       entry.Symptom,
		ByteSize:      info.Size(),
	}, nil
}

// canonicalName builds {source}_{id}.{ext}. The id is the zero-padded
// enumeration sequence; the extension is the original one, lowercased.
func canonicalName(sourceName string, seq int, rawPath string) string {
	ext := strings.ToLower(filepath.Ext(rawPath))
	return fmt.Sprintf("%s_%06d%s", sourceName, seq, ext)
}

// linkOrCopy hard-links dest to src, falling back to a byte copy when the
// filesystem refuses links (cross-device staging, FAT exports). Existing
// destinations are replaced so re-runs converge.
func linkOrCopy(src, dest string) error {
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Link(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
