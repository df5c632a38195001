package model

// Layer names one of the fixed raster inputs of a build.
type Layer string

const (
	LayerTemperature Layer = "temperature"
	LayerVegetation  Layer = "vegetation"
	LayerPopulation  Layer = "population"
)

// Layers lists the build inputs in processing order. The first entry
// supplies the reference grid.
var Layers = []Layer{LayerTemperature, LayerVegetation, LayerPopulation}

// Column returns the feature table column fed by the layer.
func (l Layer) Column() string {
	switch l {
	case LayerTemperature:
		return ColTemperature
	case LayerVegetation:
		return ColVegetation
	case LayerPopulation:
		return ColPopulation
	default:
		return ""
	}
}

// Valid reports whether l is one of the known layers.
func (l Layer) Valid() bool {
	return l.Column() != ""
}
