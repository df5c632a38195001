package hexgrid

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/uber/h3-go/v4"
)

// BBox represents a geographic bounding box.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// BBoxFromSlice builds a BBox from [minLng, minLat, maxLng, maxLat].
func BBoxFromSlice(v []float64) (BBox, error) {
	if len(v) != 4 {
		return BBox{}, eris.Errorf("hexgrid: bbox needs 4 values, got %d", len(v))
	}
	b := BBox{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}
	return b, b.Validate()
}

// Validate checks that the box is non-empty and within lat/lng range.
func (b BBox) Validate() error {
	if b.MinLng > b.MaxLng || b.MinLat > b.MaxLat {
		return eris.Errorf("hexgrid: inverted bbox %v", b)
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180 {
		return eris.Errorf("hexgrid: bbox out of range %v", b)
	}
	return nil
}

func (b BBox) bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.MinLng, b.MinLat, b.MaxLng, b.MaxLat)
}

// Contains reports whether (lat, lng) lies in the box, edges included.
func (b BBox) Contains(lat, lng float64) bool {
	return b.bounds().OverlapsPoint(geom.XY, geom.Coord{lng, lat})
}

// Corners returns the SW, SE, NW and NE corners.
func (b BBox) Corners() []h3.LatLng {
	return []h3.LatLng{
		h3.NewLatLng(b.MinLat, b.MinLng),
		h3.NewLatLng(b.MinLat, b.MaxLng),
		h3.NewLatLng(b.MaxLat, b.MinLng),
		h3.NewLatLng(b.MaxLat, b.MaxLng),
	}
}

// DiagonalKm is the great circle distance between the SW and NE corners.
func (b BBox) DiagonalKm() float64 {
	return h3.GreatCircleDistanceKm(h3.NewLatLng(b.MinLat, b.MinLng), h3.NewLatLng(b.MaxLat, b.MaxLng))
}
