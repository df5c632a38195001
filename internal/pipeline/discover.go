package pipeline

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/model"
)

// MissingInputError reports a layer with no matching raster files.
type MissingInputError struct {
	Layer   model.Layer
	Pattern string
	Dir     string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("pipeline: no %s rasters matching %q under %s", e.Layer, e.Pattern, e.Dir)
}

// Discover walks dir and returns, per layer, the sorted paths whose base
// name matches the layer's glob. A layer with no match fails the whole
// discovery with *MissingInputError.
func Discover(dir string, patterns map[model.Layer]string) (map[model.Layer][]string, error) {
	for _, layer := range model.Layers {
		if _, err := filepath.Match(patterns[layer], ""); err != nil {
			return nil, eris.Wrapf(err, "pipeline: bad %s pattern %q", layer, patterns[layer])
		}
	}

	found := make(map[model.Layer][]string, len(model.Layers))
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, layer := range model.Layers {
			if ok, _ := filepath.Match(patterns[layer], d.Name()); ok {
				found[layer] = append(found[layer], path)
			}
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: walk %s", dir)
	}

	for _, layer := range model.Layers {
		if len(found[layer]) == 0 {
			return nil, &MissingInputError{Layer: layer, Pattern: patterns[layer], Dir: dir}
		}
		sort.Strings(found[layer])
	}
	return found, nil
}
