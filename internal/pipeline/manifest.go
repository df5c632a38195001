package pipeline

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/citypath/internal/model"
)

// Manifest describes one build for humans and for publishing.
type Manifest struct {
	Run     model.BuildRun           `yaml:"run"`
	City    string                   `yaml:"city"`
	BBox    []float64                `yaml:"bbox"`
	Grid    string                   `yaml:"grid"`
	Rings   int                      `yaml:"rings"`
	Stable  bool                     `yaml:"stable"`
	Cells   int                      `yaml:"cells"`
	Dropped int                      `yaml:"dropped"`
	Layers  map[string]ManifestLayer `yaml:"layers"`
}

// ManifestLayer lists the inputs of one layer.
type ManifestLayer struct {
	Files       []string `yaml:"files"`
	ValidPixels int      `yaml:"valid_pixels"`
	OutOfBounds int      `yaml:"out_of_bounds"`
}

// WriteManifest writes m as YAML to path, creating parent directories.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return eris.Wrap(err, "pipeline: marshal manifest")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "pipeline: create manifest dir")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write manifest %s", path)
	}
	return nil
}
