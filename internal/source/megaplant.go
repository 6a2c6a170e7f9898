package source

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/plantset-cli/internal/model"
)

// MegaPlant adapts a pre-labeled tree: top-level healthy/ and unhealthy/
// directories, the latter optionally subdivided by symptom. There is no
// keyword fallback; a file outside both trees surfaces as
// *UnmappableLabelError.
type MegaPlant struct {
	name string
}

// NewMegaPlant creates the adapter for a pre-labeled source.
func NewMegaPlant(name string) *MegaPlant {
	return &MegaPlant{name: name}
}

func (a *MegaPlant) Name() string { return a.name }

func (a *MegaPlant) Enumerate(root string, fn func(Entry) error) error {
	return walkImages(root, func(rel string) error {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		switch {
		case strings.EqualFold(parts[0], "healthy"):
			return fn(Entry{RawPath: rel, Class: model.ClassHealthy})
		case strings.EqualFold(parts[0], "unhealthy"):
			symptom := ""
			if len(parts) > 2 {
				symptom = strings.ToLower(parts[1])
			}
			return fn(Entry{RawPath: rel, Class: model.ClassUnhealthy, Symptom: symptom})
		}
		return &UnmappableLabelError{Source: a.name, Path: rel}
	})
}
