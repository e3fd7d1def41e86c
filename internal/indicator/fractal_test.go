package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arlenko/marketsentry/internal/models"
)

func TestFractalDimensionInsufficientData(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	_, err := FractalDimension(closes, DefaultFractalConfig())
	assert.True(t, errors.Is(err, models.ErrInsufficientData))
}

func TestFractalDimensionConstantSeries(t *testing.T) {
	// Prices whose log-mean does not round exactly still count as
	// zero variance, so the value must not matter.
	for _, price := range []float64{250, 123.45, 100, 0.37} {
		closes := make([]float64, 90)
		for i := range closes {
			closes[i] = price
		}
		dim, err := FractalDimension(closes, DefaultFractalConfig())
		require.NoError(t, err)
		assert.Equal(t, NeutralDimension, dim, "constant at %v falls back to neutral", price)
	}
}

func TestRescaledRangeConstantSegment(t *testing.T) {
	// log(123.45) has no exact float representation; the segment mean
	// picks up an ulp of error, so the guard must not rely on std == 0.
	seg := make([]float64, 15)
	for i := range seg {
		seg[i] = math.Log(123.45)
	}
	_, ok := rescaledRange(seg)
	assert.False(t, ok)
}

func TestFractalDimensionTrendingSeries(t *testing.T) {
	// A persistent exponential trend is maximally smooth: H near 1,
	// dimension near 1.
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 * math.Exp(0.01*float64(i))
	}
	dim, err := FractalDimension(closes, DefaultFractalConfig())
	require.NoError(t, err)
	assert.Less(t, dim, 1.2)
	assert.Greater(t, dim, 1.0)
}

func TestFractalDimensionAlternatingSeries(t *testing.T) {
	// A strictly mean-reverting series is maximally rough: H near 0,
	// dimension near 2.
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100
		if i%2 == 1 {
			closes[i] = 103
		}
	}
	dim, err := FractalDimension(closes, DefaultFractalConfig())
	require.NoError(t, err)
	assert.Greater(t, dim, 1.7)
	assert.Less(t, dim, 2.0)
}

func TestFractalDimensionStaysInsideOpenInterval(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 100 + 5*math.Sin(float64(i)*0.9) + 0.05*float64(i)
	}
	dim, err := FractalDimension(closes, DefaultFractalConfig())
	require.NoError(t, err)
	assert.Greater(t, dim, 1.0)
	assert.Less(t, dim, 2.0)
}

func TestRescaledRangeZeroVariance(t *testing.T) {
	_, ok := rescaledRange([]float64{3, 3, 3, 3})
	assert.False(t, ok)
}

func TestSlope(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	assert.InDelta(t, 2.0, slope(x, y), 1e-12)
}
