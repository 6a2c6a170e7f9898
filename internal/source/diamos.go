package source

import (
	"path/filepath"
	"strings"

	"github.com/sells-group/plantset-cli/internal/model"
)

// DiaMOS adapts the DiaMOS Plant layout. The archive carries leaf
// photographs under a leaves/ tree plus fruit images and annotation CSVs in
// sibling trees; only leaves/ contributes to the corpus.
//
// Leaf folders are named by condition ("healthy", "spot", "curl", "slug").
// The ones outside the shared symptom vocabulary are still diseased leaves,
// so anything that is not the healthy folder defaults to unhealthy.
type DiaMOS struct {
	name string
}

// NewDiaMOS creates the adapter for a DiaMOS-style source.
func NewDiaMOS(name string) *DiaMOS {
	return &DiaMOS{name: name}
}

func (a *DiaMOS) Name() string { return a.name }

func (a *DiaMOS) Enumerate(root string, fn func(Entry) error) error {
	return walkImages(root, func(rel string) error {
		if !hasPathComponent(filepath.Dir(rel), "leaves") {
			return nil
		}
		folder := filepath.Base(filepath.Dir(rel))
		if strings.EqualFold(folder, "healthy") {
			return fn(Entry{RawPath: rel, Class: model.ClassHealthy})
		}
		if kw := matchSymptom(folder); kw != "" {
			return fn(Entry{RawPath: rel, Class: model.ClassUnhealthy, Symptom: kw})
		}
		return fn(Entry{RawPath: rel, Class: model.ClassUnhealthy})
	})
}
