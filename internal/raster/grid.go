// Package raster loads single-band rasters, resamples them onto a shared
// reference grid and reduces time series to per-pixel means.
package raster

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

var (
	// ErrRotatedGrid is returned when a grid has non-zero rotation terms.
	ErrRotatedGrid = eris.New("raster: rotated grids are not supported")
	// ErrProjectionMismatch is returned when two grids use different
	// spatial references.
	ErrProjectionMismatch = eris.New("raster: spatial reference mismatch")
)

// Transform is a GDAL-ordered affine geotransform:
//
//	x = t[0] + col*t[1] + row*t[2]
//	y = t[3] + col*t[4] + row*t[5]
type Transform [6]float64

// Apply maps a (fractional) pixel position to world coordinates.
func (t Transform) Apply(col, row float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// Invert maps world coordinates back to a fractional pixel position.
// ok is false for a degenerate transform.
func (t Transform) Invert(x, y float64) (col, row float64, ok bool) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, false
	}
	dx, dy := x-t[0], y-t[3]
	col = (t[5]*dx - t[2]*dy) / det
	row = (-t[4]*dx + t[1]*dy) / det
	return col, row, true
}

// AxisAligned reports whether the transform has no rotation or shear.
func (t Transform) AxisAligned() bool {
	return t[2] == 0 && t[4] == 0
}

// Grid describes the pixel lattice of a raster.
type Grid struct {
	Transform Transform
	Width     int
	Height    int
	SRS       string // spatial reference as WKT; empty when unknown
}

// Equal reports whether g and o describe the same lattice.
func (g Grid) Equal(o Grid) bool {
	return g.Transform == o.Transform && g.Width == o.Width && g.Height == o.Height && g.SRS == o.SRS
}

// SameSRS reports whether g and o share a spatial reference. An unknown
// reference matches anything.
func (g Grid) SameSRS(o Grid) bool {
	return g.SRS == "" || o.SRS == "" || g.SRS == o.SRS
}

// Pixel returns the pixel nearest to (x, y), rounding the inverted
// transform to whole rows and columns. ok is false when the pixel falls
// outside the grid.
func (g Grid) Pixel(x, y float64) (row, col int, ok bool) {
	fc, fr, ok := g.Transform.Invert(x, y)
	if !ok {
		return 0, 0, false
	}
	row = int(math.RoundToEven(fr))
	col = int(math.RoundToEven(fc))
	if row < 0 || col < 0 || row >= g.Height || col >= g.Width {
		return row, col, false
	}
	return row, col, true
}

func (g Grid) String() string {
	t := g.Transform
	return fmt.Sprintf("%dx%d origin=(%g,%g) step=(%g,%g)", g.Width, g.Height, t[0], t[3], t[1], t[5])
}
