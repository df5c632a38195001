package model

// ScoreRecord is one ranked hex with the raw metrics that produced its score.
// Rationale keys are feature column names; absent metrics map to nil.
type ScoreRecord struct {
	HexID     string              `json:"hex_id"`
	Lat       float64             `json:"lat"`
	Lon       float64             `json:"lon"`
	Score     float64             `json:"score"`
	Rationale map[string]*float64 `json:"why,omitempty"`
}

// HexStats is the rounded metric view of a single hex.
type HexStats struct {
	HexID             string   `json:"hex_id"`
	VegetationIndex   *float64 `json:"vegetation_index"`
	Temperature       *float64 `json:"temperature"`
	PopulationDensity *int64   `json:"population_density"`
}
