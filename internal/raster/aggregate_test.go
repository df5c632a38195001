package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeanStack_IgnoresMissing(t *testing.T) {
	slices := []*Band{
		BandFromValues(1, 2, []float64{10, nan}),
		BandFromValues(1, 2, []float64{nan, nan}),
		BandFromValues(1, 2, []float64{20, nan}),
	}

	out, err := MeanStack(slices)
	require.NoError(t, err)

	v, ok := out.At(0, 0)
	assert.True(t, ok)
	assert.Equal(t, 15.0, v)

	_, ok = out.At(0, 1)
	assert.False(t, ok)
}

func TestMeanStack_SingleSlice(t *testing.T) {
	in := BandFromValues(1, 2, []float64{3, nan})
	out, err := MeanStack([]*Band{in})
	require.NoError(t, err)
	assert.Equal(t, 1, out.ValidCount())
}

func TestMeanStack_Errors(t *testing.T) {
	_, err := MeanStack(nil)
	assert.Error(t, err)

	_, err = MeanStack([]*Band{NewBand(2, 2), NewBand(2, 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slice 1")
}
