// Package hexgrid covers a bounding box with H3 cells and resolves cell
// identifiers to centroids and boundaries.
package hexgrid

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/uber/h3-go/v4"
)

// Cell is one hex cell with its centroid.
type Cell struct {
	ID  string  `json:"hex_id"`
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// CellAt returns the cell containing (lat, lng) at resolution res.
func CellAt(lat, lng float64, res int) (h3.Cell, error) {
	if res < 0 || res > 15 || math.IsNaN(lat) || math.IsNaN(lng) {
		return 0, eris.Errorf("hexgrid: cell at (%f, %f) res %d", lat, lng, res)
	}
	c := h3.LatLngToCell(h3.NewLatLng(lat, lng), res)
	if !c.IsValid() {
		return 0, eris.Errorf("hexgrid: no cell at (%f, %f) res %d", lat, lng, res)
	}
	return c, nil
}

// Centroid resolves a cell to its centroid.
func Centroid(c h3.Cell) (Cell, error) {
	if !c.IsValid() {
		return Cell{}, eris.Errorf("hexgrid: centroid of invalid cell %s", c)
	}
	ll := h3.CellToLatLng(c)
	return Cell{ID: c.String(), Lat: ll.Lat, Lon: ll.Lng}, nil
}

// ParseID parses a hex cell identifier in its hexadecimal string form.
func ParseID(s string) (h3.Cell, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	u, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, false
	}
	c := h3.Cell(int64(u))
	if !c.IsValid() {
		return 0, false
	}
	return c, true
}

// CanonicalID normalizes an identifier read from storage: strings are
// trimmed and lower-cased, integer forms are rendered as hexadecimal. An
// integral float is accepted only when it still names a valid cell.
// Values that do not denote a valid cell are returned trimmed as-is so
// lookups stay exact.
func CanonicalID(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		if c, ok := ParseID(id); ok {
			return c.String(), true
		}
		id = strings.TrimSpace(id)
		return id, id != ""
	case []byte:
		return CanonicalID(string(id))
	case int64:
		return h3.Cell(id).String(), true
	case uint64:
		return h3.Cell(int64(id)).String(), true
	case int:
		return h3.Cell(int64(id)).String(), true
	case float64:
		if id < 0 || id != math.Trunc(id) || id >= math.MaxUint64 {
			return "", false
		}
		c := h3.Cell(int64(uint64(id)))
		if !c.IsValid() {
			return "", false
		}
		return c.String(), true
	default:
		return "", false
	}
}

// Boundary returns the cell outline as a closed polygon in lng/lat order.
func Boundary(c h3.Cell) (*geom.Polygon, error) {
	if !c.IsValid() {
		return nil, eris.Errorf("hexgrid: boundary of invalid cell %s", c)
	}
	cb := h3.CellToBoundary(c)
	flat := make([]float64, 0, 2*(len(cb)+1))
	for _, ll := range cb {
		flat = append(flat, ll.Lng, ll.Lat)
	}
	if len(cb) > 0 {
		flat = append(flat, cb[0].Lng, cb[0].Lat)
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(4326), nil
}
