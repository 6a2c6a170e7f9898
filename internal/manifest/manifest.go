// Package manifest persists each pipeline stage's output as tabular CSV
// under manifests/{run_id}/, one directory per run. Manifests are the
// checkpoint contract between stages: a later stage re-runs against a saved
// manifest without redoing earlier work, and every exclusion stays
// auditable on disk.
package manifest

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/plantset-cli/internal/dedup"
	"github.com/sells-group/plantset-cli/internal/model"
	"github.com/sells-group/plantset-cli/internal/splitter"
)

const (
	NormalizedFile = "normalized.manifest"
	DedupFile      = "dedup.manifest"
	CorruptFile    = "corrupt.manifest"
	SplitFile      = "split.manifest"
)

// Dir is one run's manifest directory.
type Dir struct {
	root  string
	runID string
}

// NewDir addresses manifests/{runID} under dataRoot. Nothing is created
// until the first write.
func NewDir(dataRoot, runID string) *Dir {
	return &Dir{root: filepath.Join(dataRoot, "manifests"), runID: runID}
}

func (d *Dir) Path() string { return filepath.Join(d.root, d.runID) }

func (d *Dir) file(name string) string { return filepath.Join(d.Path(), name) }

// Exists reports whether the named manifest was already persisted, which is
// how a resumed run decides to skip a completed stage.
func (d *Dir) Exists(name string) bool {
	_, err := os.Stat(d.file(name))
	return err == nil
}

// WriteNormalized persists the normalizer's corpus.
func (d *Dir) WriteNormalized(records []model.ImageRecord) error {
	return writeCSV(d.file(NormalizedFile), records)
}

// ReadNormalized loads a previously persisted corpus.
func (d *Dir) ReadNormalized() ([]model.ImageRecord, error) {
	return readCSV[model.ImageRecord](d.file(NormalizedFile))
}

// dedupRow flattens a record and its group membership into one line.
type dedupRow struct {
	model.ImageRecord
	GroupID   int                      `csv:"group_id"`
	GroupKind model.DuplicateGroupKind `csv:"group_kind"`
	Survivor  bool                     `csv:"survivor"`
}

// WriteDedup persists the dedup partition: the enriched corpus with group
// and survivor columns, plus the corrupt exclusion list alongside.
func (d *Dir) WriteDedup(res *dedup.Result) error {
	byPath := make(map[string]model.ImageRecord, len(res.Records))
	for _, rec := range res.Records {
		byPath[rec.CanonicalPath] = rec
	}

	rows := make([]dedupRow, 0, len(res.Records))
	for _, g := range res.Groups {
		for _, member := range g.Members {
			rows = append(rows, dedupRow{
				ImageRecord: byPath[member],
				GroupID:     g.ID,
				GroupKind:   g.Kind,
				Survivor:    member == g.Survivor,
			})
		}
	}
	sort.Slice(rows, func(a, b int) bool {
		return rows[a].CanonicalPath < rows[b].CanonicalPath
	})

	if err := writeCSV(d.file(DedupFile), rows); err != nil {
		return err
	}
	return writeCSV(d.file(CorruptFile), res.Corrupt)
}

// ReadDedup reconstructs the dedup result from its manifests.
func (d *Dir) ReadDedup() (*dedup.Result, error) {
	rows, err := readCSV[dedupRow](d.file(DedupFile))
	if err != nil {
		return nil, err
	}
	corrupt, err := readCSV[dedup.CorruptFile](d.file(CorruptFile))
	if err != nil {
		return nil, err
	}

	res := &dedup.Result{Corrupt: corrupt}
	byGroup := make(map[int]*model.DuplicateGroup)
	for _, row := range rows {
		res.Records = append(res.Records, row.ImageRecord)
		g, ok := byGroup[row.GroupID]
		if !ok {
			g = &model.DuplicateGroup{ID: row.GroupID, Kind: row.GroupKind}
			byGroup[row.GroupID] = g
		}
		g.Members = append(g.Members, row.CanonicalPath)
		if row.Survivor {
			g.Survivor = row.CanonicalPath
		}
	}
	for _, g := range byGroup {
		sort.Strings(g.Members)
		res.Groups = append(res.Groups, *g)
	}
	sort.Slice(res.Groups, func(a, b int) bool {
		return res.Groups[a].ID < res.Groups[b].ID
	})
	return res, nil
}

// WriteSplit persists the split assignment table.
func (d *Dir) WriteSplit(m *splitter.Manifest) error {
	return writeCSV(d.file(SplitFile), m.Assignments)
}

// ReadSplit loads a previously persisted assignment table.
func (d *Dir) ReadSplit() ([]model.SplitAssignment, error) {
	return readCSV[model.SplitAssignment](d.file(SplitFile))
}

// ListRunIDs returns every run directory under dataRoot's manifest root,
// newest-name last (IDs sort lexicographically).
func ListRunIDs(dataRoot string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(dataRoot, "manifests"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "manifest: list runs")
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// writeCSV marshals rows and writes the file atomically: a torn write must
// never look like a completed stage checkpoint.
func writeCSV[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "manifest: create dir for %s", path)
	}
	data, err := csvutil.Marshal(rows)
	if err != nil {
		return eris.Wrapf(err, "manifest: marshal %s", filepath.Base(path))
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "manifest: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "manifest: commit %s", path)
	}
	return nil
}

func readCSV[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "manifest: read %s", path)
	}
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, eris.Wrapf(err, "manifest: parse %s", filepath.Base(path))
	}
	return rows, nil
}
