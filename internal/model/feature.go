// Package model defines the feature rows, score records and build runs
// shared across the pipeline, store and scoring packages.
package model

import "math"

// Feature table column names.
const (
	ColHexID       = "hex_id"
	ColLat         = "lat"
	ColLon         = "lon"
	ColVegetation  = "vegetation_index"
	ColTemperature = "temperature"
	ColPopulation  = "population_density"
)

// FeatureColumns is the canonical column order of the persisted table.
var FeatureColumns = []string{ColHexID, ColLat, ColLon, ColVegetation, ColTemperature, ColPopulation}

// HexFeatureRow holds the sampled metrics for one hex cell. Metric fields
// are nil when the value is missing.
type HexFeatureRow struct {
	HexID             string   `json:"hex_id"`
	Lat               float64  `json:"lat"`
	Lon               float64  `json:"lon"`
	VegetationIndex   *float64 `json:"vegetation_index"`
	Temperature       *float64 `json:"temperature"`
	PopulationDensity *float64 `json:"population_density"`
}

// HasMetric reports whether at least one metric is present.
func (r HexFeatureRow) HasMetric() bool {
	return r.VegetationIndex != nil || r.Temperature != nil || r.PopulationDensity != nil
}

// Metric returns the value of a metric column.
func (r HexFeatureRow) Metric(col string) *float64 {
	switch col {
	case ColVegetation:
		return r.VegetationIndex
	case ColTemperature:
		return r.Temperature
	case ColPopulation:
		return r.PopulationDensity
	default:
		return nil
	}
}

// Float returns a pointer to v, or nil when v is NaN or infinite.
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ValueOr dereferences p, returning def when p is nil.
func ValueOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
