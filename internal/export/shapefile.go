package export

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/hexgrid"
	"github.com/sells-group/citypath/internal/model"
)

// DBF field names are limited to 10 characters.
var shpFields = []shp.Field{
	shp.StringField("HEX_ID", 16),
	shp.FloatField("LAT", 12, 6),
	shp.FloatField("LON", 12, 6),
	shp.FloatField("NDVI", 10, 4),
	shp.FloatField("LST_C", 10, 3),
	shp.FloatField("POP_KM2", 14, 2),
}

// ShapefileOptions configures WriteShapefile.
type ShapefileOptions struct {
	// Boundaries writes hex outlines as polygons instead of centroid points.
	// Rows whose id is not a valid cell are skipped.
	Boundaries bool
}

// WriteShapefile writes rows to path (.shp plus its .shx and .dbf). Missing
// metrics are written as blank attributes. Attributes are space padded to
// their field width.
func WriteShapefile(path string, rows []model.HexFeatureRow, opts ShapefileOptions) error {
	var kind shp.ShapeType = shp.POINT
	if opts.Boundaries {
		kind = shp.POLYGON
	}
	w, err := shp.Create(path, kind)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	err = writeShapes(w, rows, opts)
	w.Close()
	if err != nil {
		return err
	}

	// The writer names the attribute table <base>dbf without the dot.
	base := shapefileBase(path)
	if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
		return eris.Wrapf(err, "export: rename attribute table of %s", path)
	}
	return nil
}

func shapefileBase(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".shp") {
		return path[:len(path)-4]
	}
	return path
}

func writeShapes(w *shp.Writer, rows []model.HexFeatureRow, opts ShapefileOptions) error {
	if err := w.SetFields(shpFields); err != nil {
		return eris.Wrap(err, "export: set shapefile fields")
	}

	for _, r := range rows {
		var shape shp.Shape = &shp.Point{X: r.Lon, Y: r.Lat}
		if opts.Boundaries {
			poly, ok, err := hexPolygon(r.HexID)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			shape = poly
		}

		n := int(w.Write(shape))
		attrs := []*float64{&r.Lat, &r.Lon, r.VegetationIndex, r.Temperature, r.PopulationDensity}
		if err := w.WriteAttribute(n, 0, fmt.Sprintf("%-*s", int(shpFields[0].Size), r.HexID)); err != nil {
			return eris.Wrapf(err, "export: write attribute HEX_ID of %s", r.HexID)
		}
		for j, v := range attrs {
			i := j + 1
			if err := w.WriteAttribute(n, i, numeric(shpFields[i], v)); err != nil {
				return eris.Wrapf(err, "export: write attribute %s of %s", shpFields[i].String(), r.HexID)
			}
		}
	}
	return nil
}

// hexPolygon converts a hex outline to a clockwise shapefile ring.
func hexPolygon(id string) (*shp.Polygon, bool, error) {
	cell, ok := hexgrid.ParseID(id)
	if !ok {
		return nil, false, nil
	}
	poly, err := hexgrid.Boundary(cell)
	if err != nil {
		return nil, false, err
	}
	coords := poly.LinearRing(0).Coords()
	pts := make([]shp.Point, len(coords))
	for i, c := range coords {
		pts[i] = shp.Point{X: c.X(), Y: c.Y()}
	}
	slices.Reverse(pts)
	p := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
	return &p, true, nil
}

// numeric renders v right-aligned to the field width, or blank when missing.
func numeric(f shp.Field, v *float64) string {
	var s string
	if v != nil {
		s = strconv.FormatFloat(*v, 'f', int(f.Precision), 64)
	}
	return fmt.Sprintf("%*s", int(f.Size), s)
}
