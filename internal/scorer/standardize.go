// Package scorer ranks hex cells for heat, greenspace and cooling themes
// and suggests sites for parks and clinics.
package scorer

import (
	"gonum.org/v1/gonum/stat"
)

// Standardize returns z-scores of the present values using the population
// mean and standard deviation. Missing values stay missing. A column with
// zero spread falls back to x - mean, which is 0 for every present value.
func Standardize(values []*float64) []*float64 {
	present := make([]float64, 0, len(values))
	for _, v := range values {
		if v != nil {
			present = append(present, *v)
		}
	}
	out := make([]*float64, len(values))
	if len(present) == 0 {
		return out
	}

	mean, std := stat.PopMeanStdDev(present, nil)
	if constant(present) {
		mean, std = present[0], 0
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		z := *v - mean
		if std != 0 {
			z /= std
		}
		out[i] = &z
	}
	return out
}

// constant reports whether every value is identical. Summation error can
// leave a tiny non-zero spread on such columns.
func constant(xs []float64) bool {
	for _, x := range xs[1:] {
		if x != xs[0] {
			return false
		}
	}
	return true
}
