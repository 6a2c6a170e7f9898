// Package source maps heterogeneous dataset layouts onto the unified
// taxonomy. Each integrated dataset gets one Adapter; adding a source means
// adding an adapter, not touching shared logic.
package source

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plantset-cli/internal/model"
)

// Entry is one enumerated file: its path inside the staging tree plus the
// resolved class label.
type Entry struct {
	RawPath string
	Class   model.ClassLabel

	// Symptom is the matched unhealthy keyword, empty for healthy entries.
	Symptom string
}

// Adapter enumerates a staged source tree lazily, applying the source's
// layout rules. Enumeration stops at the first non-nil error from fn.
type Adapter interface {
	Name() string
	Enumerate(root string, fn func(Entry) error) error
}

// UnmappableLabelError means a file matched no classification rule and the
// adapter has no default. This is a configuration gap: it must abort the
// run rather than silently skew class balance.
type UnmappableLabelError struct {
	Source string
	Path   string
}

func (e *UnmappableLabelError) Error() string {
	return fmt.Sprintf("no class rule maps %q in source %q and no default is configured", e.Path, e.Source)
}

// ForDescriptor returns the adapter named by the descriptor.
func ForDescriptor(sd model.SourceDescriptor) (Adapter, error) {
	switch sd.Adapter {
	case "plantvillage":
		return NewPlantVillage(sd.Name), nil
	case "plantdoc":
		return NewPlantDoc(sd.Name), nil
	case "diamos":
		return NewDiaMOS(sd.Name), nil
	case "megaplant":
		return NewMegaPlant(sd.Name), nil
	}
	return nil, eris.Errorf("source: unknown adapter %q for source %q", sd.Adapter, sd.Name)
}

// imageExts are the file extensions treated as corpus input.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

func isImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// walkImages walks root depth-first and invokes fn for every image file,
// passing the path relative to root.
func walkImages(root string, fn func(rel string) error) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isImage(path) {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		return fn(rel)
	})
	if err != nil {
		return eris.Wrapf(err, "source: walk %s", root)
	}
	return nil
}

// hasPathComponent reports whether rel contains dir as an exact path
// component (case-insensitive).
func hasPathComponent(rel, dir string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.EqualFold(part, dir) {
			return true
		}
	}
	return false
}
