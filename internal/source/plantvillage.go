package source

import (
	"path/filepath"
)

// PlantVillage adapts the PlantVillage layout: three parallel variant trees
// (color/, grayscale/, segmented/) holding re-processed copies of the same
// photographs, with per-crop-disease class folders such as
// "Tomato_Late_blight" or "Tomato_healthy".
//
// Only the color/ tree is enumerated. The grayscale and segmented variants
// are derived from the same photographs and would otherwise flood the
// deduplicator with trivially detectable near-duplicates.
type PlantVillage struct {
	name string
}

// NewPlantVillage creates the adapter for a PlantVillage-style source.
func NewPlantVillage(name string) *PlantVillage {
	return &PlantVillage{name: name}
}

func (a *PlantVillage) Name() string { return a.name }

// Enumerate yields every image under a color/ component, classified by its
// parent folder name.
func (a *PlantVillage) Enumerate(root string, fn func(Entry) error) error {
	return walkImages(root, func(rel string) error {
		if !hasPathComponent(filepath.Dir(rel), "color") {
			return nil
		}
		class, symptom := classifyFolder(filepath.Base(filepath.Dir(rel)))
		return fn(Entry{RawPath: rel, Class: class, Symptom: symptom})
	})
}
