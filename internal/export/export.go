// Package export writes the feature table and theme scores to files for
// GIS tools, spreadsheets and quick-look images.
package export

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is an export file format.
type Format string

// Supported formats.
const (
	FormatShapefile Format = "shp"
	FormatXLSX      Format = "xlsx"
	FormatPNG       Format = "png"
)

// ParseFormat parses a format name. An empty name is inferred from the
// extension of path.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(path), ".")
	}
	switch f := Format(strings.ToLower(name)); f {
	case FormatShapefile, FormatXLSX, FormatPNG:
		return f, nil
	default:
		return "", eris.Errorf("export: unsupported format %q", name)
	}
}
