package hexgrid

import (
	"math"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/uber/h3-go/v4"
	"go.uber.org/zap"
)

// CoverageOptions tunes the ring expansion of Cover.
type CoverageOptions struct {
	Resolution int
	// MinRings is the number of expansion rounds always performed. Zero
	// derives it from the bbox diagonal and the average hex edge length.
	MinRings int
	// MaxRings caps the rounds spent waiting for the frontier to settle.
	MaxRings int
}

// Coverage is the result of Cover.
type Coverage struct {
	Cells []Cell // cells whose centroid lies in the bbox, sorted by id
	Rings int    // expansion rounds performed
	// Stable is true when the last round added no in-bbox cell.
	Stable bool
}

// Cover collects the cells whose centroid lies within bbox. The set is
// seeded with the cells under the four corners and the reference point.
// Round k adds every cell at grid distance exactly k from any cell already
// collected. After MinRings rounds, expansion continues while a round still
// adds in-bbox cells, up to MaxRings.
func Cover(bbox BBox, refLat, refLng float64, opts CoverageOptions) (*Coverage, error) {
	if err := bbox.Validate(); err != nil {
		return nil, err
	}
	if opts.Resolution < 0 || opts.Resolution > 15 {
		return nil, eris.Errorf("hexgrid: invalid resolution %d", opts.Resolution)
	}

	minRings := opts.MinRings
	if minRings <= 0 {
		k, err := DeriveRings(bbox, opts.Resolution)
		if err != nil {
			return nil, err
		}
		minRings = k
	}
	maxRings := max(opts.MaxRings, minRings)

	set := make(map[h3.Cell]struct{})
	inBox := make(map[h3.Cell]Cell)
	add := func(c h3.Cell) (bool, error) {
		if _, seen := set[c]; seen {
			return false, nil
		}
		set[c] = struct{}{}
		cell, err := Centroid(c)
		if err != nil {
			return false, err
		}
		if bbox.Contains(cell.Lat, cell.Lon) {
			inBox[c] = cell
			return true, nil
		}
		return false, nil
	}

	seeds := append(bbox.Corners(), h3.NewLatLng(refLat, refLng))
	for _, ll := range seeds {
		c, err := CellAt(ll.Lat, ll.Lng, opts.Resolution)
		if err != nil {
			return nil, err
		}
		if _, err := add(c); err != nil {
			return nil, err
		}
	}

	cov := &Coverage{}
	for k := 1; k <= maxRings; k++ {
		frontier := make([]h3.Cell, 0, len(set))
		for c := range set {
			frontier = append(frontier, c)
		}

		added := 0
		for _, c := range frontier {
			for _, r := range ringAt(c, k) {
				ok, err := add(r)
				if err != nil {
					return nil, err
				}
				if ok {
					added++
				}
			}
		}
		cov.Rings = k
		if k >= minRings && added == 0 {
			cov.Stable = true
			break
		}
	}

	if !cov.Stable {
		zap.L().Warn("hexgrid: coverage did not settle",
			zap.Int("rings", cov.Rings),
			zap.Int("resolution", opts.Resolution),
		)
	}

	cov.Cells = make([]Cell, 0, len(inBox))
	for _, cell := range inBox {
		cov.Cells = append(cov.Cells, cell)
	}
	slices.SortFunc(cov.Cells, func(a, b Cell) int { return strings.Compare(a.ID, b.ID) })
	return cov, nil
}

// DeriveRings returns the smallest K whose cumulative reach K(K+1)/2, in
// grid steps, spans half the bbox diagonal at resolution res.
func DeriveRings(bbox BBox, res int) (int, error) {
	if res < 0 || res > 15 {
		return 0, eris.Errorf("hexgrid: edge length res %d", res)
	}
	edge := h3.HexagonEdgeLengthAvgKm(res)
	step := math.Sqrt(3) * edge
	need := int(math.Ceil(bbox.DiagonalKm()/2/step)) + 1

	k := 1
	for k*(k+1)/2 < need {
		k++
	}
	return k, nil
}

// ringAt returns the cells at grid distance exactly k from c. Slots left
// empty near pentagons are skipped.
func ringAt(c h3.Cell, k int) []h3.Cell {
	rings := h3.GridDiskDistances(c, k)
	if len(rings) <= k {
		return nil
	}
	return slices.DeleteFunc(rings[k], func(r h3.Cell) bool { return r == 0 })
}
