package raster

import "github.com/rotisserie/eris"

// MeanStack reduces time slices that share one grid to their per-pixel
// mean, counting only present values. A pixel missing in every slice is
// missing in the result.
func MeanStack(slices []*Band) (*Band, error) {
	if len(slices) == 0 {
		return nil, eris.New("raster: mean of empty stack")
	}
	rows, cols := slices[0].Rows, slices[0].Cols
	for i, s := range slices[1:] {
		if s.Rows != rows || s.Cols != cols {
			return nil, eris.Errorf("raster: slice %d is %dx%d, want %dx%d", i+1, s.Cols, s.Rows, cols, rows)
		}
	}

	out := NewBand(rows, cols)
	for i := range out.data {
		var sum float64
		var n int
		for _, s := range slices {
			if s.valid[i] {
				sum += s.data[i]
				n++
			}
		}
		if n > 0 {
			out.data[i] = sum / float64(n)
			out.valid[i] = true
		}
	}
	return out, nil
}
