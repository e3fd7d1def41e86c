package series

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(closes ...float64) []Bar {
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Date:  start.AddDate(0, 0, i),
			Close: c,
			VIX:   15 + float64(i),
		}
	}
	return bars
}

func TestNewRejectsShortInput(t *testing.T) {
	_, err := New(makeBars(100))
	assert.Error(t, err)
}

func TestNewRejectsNonPositiveClose(t *testing.T) {
	bars := makeBars(100, 101)
	bars[1].Close = 0
	_, err := New(bars)
	assert.Error(t, err)
}

func TestNewRejectsUnorderedDates(t *testing.T) {
	bars := makeBars(100, 101, 102)
	bars[2].Date = bars[0].Date
	_, err := New(bars)
	assert.Error(t, err)
}

func TestAccessors(t *testing.T) {
	bars := makeBars(100, 102, 99)
	s, err := New(bars)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 99.0, s.LastClose())
	assert.Equal(t, 102.0, s.PrevClose())
	assert.Equal(t, bars[2].Date, s.LastDate())
	assert.Equal(t, 17.0, s.LastVIX())
}

func TestReturns(t *testing.T) {
	s, err := New(makeBars(100, 110, 99))
	require.NoError(t, err)

	returns := s.Returns()
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)
}

func TestAvgReturn(t *testing.T) {
	s, err := New(makeBars(100, 110, 99))
	require.NoError(t, err)

	avg, err := s.AvgReturn(2)
	require.NoError(t, err)
	assert.InDelta(t, 0, avg, 1e-12)

	_, err = s.AvgReturn(5)
	assert.Error(t, err, "window beyond history must fail")
}

func TestTailCloses(t *testing.T) {
	s, err := New(makeBars(100, 101, 102, 103))
	require.NoError(t, err)

	tail, err := s.TailCloses(2)
	require.NoError(t, err)
	assert.Equal(t, []float64{102, 103}, tail)

	_, err = s.TailCloses(5)
	assert.Error(t, err)
}

func TestMeanAndStd(t *testing.T) {
	values := []float64{1, 2, 3, 4}
	assert.InDelta(t, 2.5, Mean(values), 1e-12)
	assert.InDelta(t, 1.2909944487, Std(values), 1e-9)
	assert.Zero(t, Std([]float64{7}), "sample std undefined below two values")
}

func TestRollingStd(t *testing.T) {
	out := RollingStd([]float64{1, 2, 3, 4, 5}, 3)
	require.Len(t, out, 5)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	for i := 2; i < 5; i++ {
		assert.InDelta(t, 1.0, out[i], 1e-12)
	}
}
