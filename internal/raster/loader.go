package raster

import (
	"math"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/sells-group/citypath/internal/model"
)

// Reader reads the first band of a raster file with its grid. Values are
// raw digital numbers; declared nodata is already missing.
type Reader interface {
	Read(path string) (*Raster, error)
}

// Load reads path and applies the scaling of layer.
func Load(rd Reader, path string, layer model.Layer) (*Raster, error) {
	scale := ScalerFor(layer)
	if scale == nil {
		return nil, eris.Errorf("raster: unknown layer %q", layer)
	}
	r, err := rd.Read(path)
	if err != nil {
		return nil, err
	}
	return &Raster{Grid: r.Grid, Band: scale.Apply(r.Band)}, nil
}

var registerDrivers sync.Once

// GDALReader reads rasters through GDAL.
type GDALReader struct{}

// NewGDALReader registers the GDAL drivers on first use.
func NewGDALReader() *GDALReader {
	registerDrivers.Do(godal.RegisterAll)
	return &GDALReader{}
}

func (GDALReader) Read(path string) (*Raster, error) {
	ds, err := godal.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = ds.Close() }()

	bands := ds.Bands()
	if len(bands) == 0 {
		return nil, eris.Errorf("raster: %s has no bands", path)
	}
	gt, err := ds.GeoTransform()
	if err != nil {
		return nil, eris.Wrapf(err, "raster: geotransform %s", path)
	}

	st := ds.Structure()
	buf := make([]float64, st.SizeX*st.SizeY)
	if err := bands[0].Read(0, 0, buf, st.SizeX, st.SizeY); err != nil {
		return nil, eris.Wrapf(err, "raster: read band %s", path)
	}
	if nodata, ok := bands[0].NoData(); ok {
		for i, v := range buf {
			if v == nodata {
				buf[i] = math.NaN()
			}
		}
	}

	return &Raster{
		Grid: Grid{
			Transform: Transform(gt),
			Width:     st.SizeX,
			Height:    st.SizeY,
			SRS:       ds.Projection(),
		},
		Band: BandFromValues(st.SizeY, st.SizeX, buf),
	}, nil
}
