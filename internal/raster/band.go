package raster

import "math"

// Band is a row-major 2D array of values with an explicit validity mask.
// A pixel that is not valid is missing; its stored value is meaningless.
type Band struct {
	Rows  int
	Cols  int
	data  []float64
	valid []bool
}

// NewBand returns a band with every pixel missing.
func NewBand(rows, cols int) *Band {
	return &Band{
		Rows:  rows,
		Cols:  cols,
		data:  make([]float64, rows*cols),
		valid: make([]bool, rows*cols),
	}
}

// BandFromValues builds a band from row-major values. NaN and infinite
// values become missing.
func BandFromValues(rows, cols int, values []float64) *Band {
	b := NewBand(rows, cols)
	for i, v := range values[:rows*cols] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		b.data[i] = v
		b.valid[i] = true
	}
	return b
}

// At returns the value at (r, c) and whether it is present.
func (b *Band) At(r, c int) (float64, bool) {
	i := r*b.Cols + c
	return b.data[i], b.valid[i]
}

// Set stores v at (r, c) and marks it present.
func (b *Band) Set(r, c int, v float64) {
	i := r*b.Cols + c
	b.data[i] = v
	b.valid[i] = true
}

// ValidCount returns the number of present pixels.
func (b *Band) ValidCount() int {
	n := 0
	for _, ok := range b.valid {
		if ok {
			n++
		}
	}
	return n
}

// Values returns the band as row-major values with NaN for missing pixels.
func (b *Band) Values() []float64 {
	out := make([]float64, len(b.data))
	for i, v := range b.data {
		if b.valid[i] {
			out[i] = v
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Raster is a band positioned on a grid.
type Raster struct {
	Grid Grid
	Band *Band
}

// Sample returns the value of the pixel nearest to (x, y). Positions outside
// the grid are missing; nothing is clamped or extrapolated.
func (r *Raster) Sample(x, y float64) (float64, bool) {
	row, col, ok := r.Grid.Pixel(x, y)
	if !ok {
		return 0, false
	}
	return r.Band.At(row, col)
}
