package raster

import (
	"math"

	"github.com/sells-group/citypath/internal/model"
)

// Scaler converts a raw digital number to a physical value. ok is false
// when the input is fill or out of range; scalers never fail otherwise.
type Scaler func(raw float64) (v float64, ok bool)

// ScaleTemperature converts 8-day land surface temperature (Kelvin * 50)
// to degrees Celsius. Non-positive values are sensor fill.
func ScaleTemperature(raw float64) (float64, bool) {
	if !(raw > 0) || math.IsInf(raw, 0) {
		return 0, false
	}
	return raw*0.02 - 273.15, true
}

// ScaleVegetation converts 16-day NDVI to the [-1, 1] index range.
func ScaleVegetation(raw float64) (float64, bool) {
	if math.IsNaN(raw) || raw < -2000 || raw > 10000 {
		return 0, false
	}
	v := raw * 0.0001
	if v < -1 || v > 1 {
		return 0, false
	}
	return v, true
}

// ScalePopulation converts persons per hectare to persons per km².
func ScalePopulation(raw float64) (float64, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return 0, false
	}
	return raw * 100, true
}

// ScalerFor returns the scaler of a layer.
func ScalerFor(layer model.Layer) Scaler {
	switch layer {
	case model.LayerTemperature:
		return ScaleTemperature
	case model.LayerVegetation:
		return ScaleVegetation
	case model.LayerPopulation:
		return ScalePopulation
	default:
		return nil
	}
}

// Apply returns a copy of b with every present pixel passed through s.
func (s Scaler) Apply(b *Band) *Band {
	out := NewBand(b.Rows, b.Cols)
	for i, v := range b.data {
		if !b.valid[i] {
			continue
		}
		if sv, ok := s(v); ok {
			out.data[i] = sv
			out.valid[i] = true
		}
	}
	return out
}
