package source

import (
	"path/filepath"
)

// PlantDoc adapts the PlantDoc layout: one flat level of class folders
// ("Tomato leaf bacterial spot", "Apple leaf", ...) with field photographs
// inside. Classification is purely by folder-name keyword.
type PlantDoc struct {
	name string
}

// NewPlantDoc creates the adapter for a PlantDoc-style source.
func NewPlantDoc(name string) *PlantDoc {
	return &PlantDoc{name: name}
}

func (a *PlantDoc) Name() string { return a.name }

func (a *PlantDoc) Enumerate(root string, fn func(Entry) error) error {
	return walkImages(root, func(rel string) error {
		class, symptom := classifyFolder(filepath.Base(filepath.Dir(rel)))
		return fn(Entry{RawPath: rel, Class: class, Symptom: symptom})
	})
}
