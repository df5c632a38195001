package raster

import "math"

// overlapEpsilon ignores slivers produced by floating point edges, in
// source pixel units.
const overlapEpsilon = 1e-9

type overlap struct {
	idx    int
	weight float64
}

// Align resamples src onto dst by area-weighted averaging of the present
// source pixels. Destination pixels without any present source coverage are
// missing. When src already lies on dst it is returned unchanged.
func Align(src *Raster, dst Grid) (*Raster, error) {
	if src.Grid.Equal(dst) {
		return src, nil
	}
	if !src.Grid.Transform.AxisAligned() || !dst.Transform.AxisAligned() {
		return nil, ErrRotatedGrid
	}
	if !src.Grid.SameSRS(dst) {
		return nil, ErrProjectionMismatch
	}

	st, dt := src.Grid.Transform, dst.Transform
	cols := axisOverlaps(st[0], st[1], src.Grid.Width, dt[0], dt[1], dst.Width)
	rows := axisOverlaps(st[3], st[5], src.Grid.Height, dt[3], dt[5], dst.Height)

	out := NewBand(dst.Height, dst.Width)
	for r, ry := range rows {
		if len(ry) == 0 {
			continue
		}
		for c, cx := range cols {
			var sum, wsum float64
			for _, oy := range ry {
				for _, ox := range cx {
					v, ok := src.Band.At(oy.idx, ox.idx)
					if !ok {
						continue
					}
					w := oy.weight * ox.weight
					sum += v * w
					wsum += w
				}
			}
			if wsum > 0 {
				out.Set(r, c, sum/wsum)
			}
		}
	}
	return &Raster{Grid: dst, Band: out}, nil
}

// axisOverlaps returns, for every destination index along one axis, the
// source indices it overlaps and the overlap length in world units.
func axisOverlaps(srcOrigin, srcStep float64, srcN int, dstOrigin, dstStep float64, dstN int) [][]overlap {
	out := make([][]overlap, dstN)
	if srcStep == 0 {
		return out
	}
	for i := range dstN {
		a := (dstOrigin + float64(i)*dstStep - srcOrigin) / srcStep
		b := (dstOrigin + float64(i+1)*dstStep - srcOrigin) / srcStep
		lo, hi := math.Min(a, b), math.Max(a, b)

		first := max(int(math.Floor(lo)), 0)
		last := min(int(math.Ceil(hi))-1, srcN-1)
		for j := first; j <= last; j++ {
			ov := math.Min(hi, float64(j+1)) - math.Max(lo, float64(j))
			if ov <= overlapEpsilon {
				continue
			}
			out[i] = append(out[i], overlap{idx: j, weight: ov * math.Abs(srcStep)})
		}
	}
	return out
}
