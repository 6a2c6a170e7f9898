package splitter

import (
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plantset-cli/internal/model"
)

// Materialize lays the split out on disk as splits/{split}/{class}/{file},
// linking each group's survivor from the canonical tree. Non-survivors stay
// only in the manifest; the materialized tree holds exactly one file per
// retained photograph. Returns the number of files placed.
func Materialize(m *Manifest, groups []model.DuplicateGroup, processedDir, splitsRoot string) (int, error) {
	bySurvivor := make(map[string]model.SplitAssignment, len(m.Assignments))
	for _, a := range m.Assignments {
		bySurvivor[a.CanonicalPath] = a
	}

	placed := 0
	for _, g := range groups {
		a, ok := bySurvivor[g.Survivor]
		if !ok {
			return placed, eris.Errorf("splitter: survivor %q has no split assignment", g.Survivor)
		}
		src := filepath.Join(processedDir, filepath.FromSlash(g.Survivor))
		dest := filepath.Join(splitsRoot, a.Split, string(a.Class), filepath.Base(g.Survivor))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return placed, eris.Wrapf(err, "splitter: create split dir for %s", g.Survivor)
		}
		if err := linkOrCopy(src, dest); err != nil {
			return placed, eris.Wrapf(err, "splitter: materialize %s", g.Survivor)
		}
		placed++
	}
	return placed, nil
}

// linkOrCopy hard-links dest to src, copying when the filesystem refuses
// links. Existing destinations are replaced so re-materializing converges.
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
