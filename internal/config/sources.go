package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/plantset-cli/internal/model"
)

// sourcesFile is the on-disk shape of sources.yaml.
type sourcesFile struct {
	Sources []model.SourceDescriptor `yaml:"sources"`
}

// LoadSources reads and validates the source descriptor file. Descriptors
// are immutable for the rest of the run.
func LoadSources(path string) ([]model.SourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read sources file %s", path)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse sources file %s", path)
	}
	if len(f.Sources) == 0 {
		return nil, eris.Errorf("config: sources file %s declares no sources", path)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		sd := &f.Sources[i]
		if sd.Name == "" {
			return nil, eris.Errorf("config: source %d has no name", i)
		}
		if seen[sd.Name] {
			return nil, eris.Errorf("config: duplicate source name %q", sd.Name)
		}
		seen[sd.Name] = true
		if sd.Origin == "" {
			return nil, eris.Errorf("config: source %q has no origin", sd.Name)
		}
		if sd.Adapter == "" {
			return nil, eris.Errorf("config: source %q has no adapter", sd.Name)
		}
		if sd.Format == "" {
			sd.Format = inferFormat(sd.Origin)
			if sd.Format == "" {
				return nil, eris.Errorf("config: source %q: cannot infer archive format from origin %q", sd.Name, sd.Origin)
			}
		}
	}

	return f.Sources, nil
}

func inferFormat(origin string) model.ArchiveFormat {
	switch {
	case strings.HasSuffix(origin, ".zip"):
		return model.ArchiveZip
	case strings.HasSuffix(origin, ".tar.gz"), strings.HasSuffix(origin, ".tgz"):
		return model.ArchiveTarGz
	}
	return ""
}
