package pipeline

import (
	"sort"

	"github.com/sells-group/citypath/internal/hexgrid"
	"github.com/sells-group/citypath/internal/model"
	"github.com/sells-group/citypath/internal/raster"
)

// SampleStats counts what happened while sampling.
type SampleStats struct {
	OutOfBounds map[model.Layer]int // centroids outside the reference grid
	Dropped     int                 // cells with every metric missing
}

// SampleCell reads each layer at the cell centroid. A centroid outside a
// layer's grid yields a missing value and inBounds[layer] = false.
func SampleCell(c hexgrid.Cell, layers map[model.Layer]*raster.Raster) (row model.HexFeatureRow, inBounds map[model.Layer]bool) {
	row = model.HexFeatureRow{HexID: c.ID, Lat: c.Lat, Lon: c.Lon}
	inBounds = make(map[model.Layer]bool, len(layers))
	for layer, r := range layers {
		pr, pc, ok := r.Grid.Pixel(c.Lon, c.Lat)
		inBounds[layer] = ok
		if !ok {
			continue
		}
		v, valid := r.Band.At(pr, pc)
		if !valid {
			continue
		}
		val := v
		switch layer {
		case model.LayerTemperature:
			row.Temperature = &val
		case model.LayerVegetation:
			row.VegetationIndex = &val
		case model.LayerPopulation:
			row.PopulationDensity = &val
		}
	}
	return row, inBounds
}

// BuildTable samples every cell, drops rows with no metric and returns the
// rest sorted by hex id.
func BuildTable(cells []hexgrid.Cell, layers map[model.Layer]*raster.Raster) ([]model.HexFeatureRow, SampleStats) {
	stats := SampleStats{OutOfBounds: make(map[model.Layer]int, len(layers))}
	rows := make([]model.HexFeatureRow, 0, len(cells))
	seen := make(map[string]struct{}, len(cells))

	for _, c := range cells {
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}

		row, inBounds := SampleCell(c, layers)
		for layer, ok := range inBounds {
			if !ok {
				stats.OutOfBounds[layer]++
			}
		}
		if !row.HasMetric() {
			stats.Dropped++
			continue
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].HexID < rows[j].HexID })
	return rows, stats
}
