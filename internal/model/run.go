package model

import "time"

// BuildRun records one execution of the raster-to-hex pipeline.
type BuildRun struct {
	ID         string    `json:"id" yaml:"id"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
	RowCount   int       `json:"row_count" yaml:"row_count"`
	Resolution int       `json:"resolution" yaml:"resolution"`
	RefGrid    string    `json:"ref_grid" yaml:"ref_grid"`
}
