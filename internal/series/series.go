// Package series wraps the fetched price and volatility history and exposes
// windowed views over it. The series is immutable once constructed; all
// computation over it lives in the indicator and regime packages.
package series

import (
	"errors"
	"math"
	"time"

	"github.com/arlenko/marketsentry/internal/models"
)

// Bar is one daily observation with its aligned volatility index value.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	VIX    float64
}

// PriceSeries is an ordered, date-aligned price and volatility history.
type PriceSeries struct {
	dates   []time.Time
	closes  []float64
	vix     []float64
	returns []float64
}

// New builds a PriceSeries from ascending daily bars.
func New(bars []Bar) (*PriceSeries, error) {
	if len(bars) < 2 {
		return nil, errors.New("price series requires at least two bars")
	}
	s := &PriceSeries{
		dates:  make([]time.Time, len(bars)),
		closes: make([]float64, len(bars)),
		vix:    make([]float64, len(bars)),
	}
	for i, b := range bars {
		if b.Close <= 0 {
			return nil, errors.New("close prices must be positive")
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return nil, errors.New("bars must be in strictly ascending date order")
		}
		s.dates[i] = b.Date
		s.closes[i] = b.Close
		s.vix[i] = b.VIX
	}
	s.returns = make([]float64, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		s.returns[i-1] = (s.closes[i] - s.closes[i-1]) / s.closes[i-1]
	}
	return s, nil
}

// Len reports the number of observations.
func (s *PriceSeries) Len() int { return len(s.closes) }

// LastDate returns the date of the most recent observation.
func (s *PriceSeries) LastDate() time.Time { return s.dates[len(s.dates)-1] }

// LastClose returns the most recent closing price.
func (s *PriceSeries) LastClose() float64 { return s.closes[len(s.closes)-1] }

// PrevClose returns the closing price of the observation before the last.
func (s *PriceSeries) PrevClose() float64 { return s.closes[len(s.closes)-2] }

// LastVIX returns the most recent volatility index level.
func (s *PriceSeries) LastVIX() float64 { return s.vix[len(s.vix)-1] }

// TailCloses returns a copy of the last n closing prices.
func (s *PriceSeries) TailCloses(n int) ([]float64, error) {
	if n < 1 || n > len(s.closes) {
		return nil, models.ErrInsufficientData
	}
	out := make([]float64, n)
	copy(out, s.closes[len(s.closes)-n:])
	return out, nil
}

// Returns returns a copy of the daily return series (length Len()-1).
func (s *PriceSeries) Returns() []float64 {
	out := make([]float64, len(s.returns))
	copy(out, s.returns)
	return out
}

// AvgReturn returns the mean of the last n daily returns.
func (s *PriceSeries) AvgReturn(n int) (float64, error) {
	if n < 1 || n > len(s.returns) {
		return 0, models.ErrInsufficientData
	}
	return Mean(s.returns[len(s.returns)-n:]), nil
}

// Mean computes the arithmetic mean of values.
func Mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Std computes the sample standard deviation of values. Returns 0 for
// fewer than two values.
func Std(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var m2 float64
	for _, v := range values {
		d := v - mean
		m2 += d * d
	}
	return math.Sqrt(m2 / float64(len(values)-1))
}

// RollingStd computes the trailing sample standard deviation of values over
// the given window. Positions before the window has filled are NaN.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = Std(values[i+1-window : i+1])
	}
	return out
}
