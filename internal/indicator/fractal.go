// Package indicator computes the per-run statistical indicators: the
// rescaled-range fractal dimension and the put/call sentiment proxy.
package indicator

import (
	"math"

	"github.com/arlenko/marketsentry/internal/models"
)

// NeutralDimension is reported when the R/S regression is degenerate
// (constant prices, or fewer than two usable lags).
const NeutralDimension = 1.5

// FractalConfig holds the rescaled-range estimator parameters.
type FractalConfig struct {
	MaxLag    int // lags 2..MaxLag-1 enter the regression
	MinPoints int // minimum closes required
}

// DefaultFractalConfig returns the estimator defaults.
func DefaultFractalConfig() FractalConfig {
	return FractalConfig{
		MaxLag:    20,
		MinPoints: 60,
	}
}

// FractalDimension estimates the fractal dimension of a closing-price
// window via rescaled-range analysis: the Hurst exponent is the regression
// slope of log(R/S) against log(lag), and the dimension is 2−H with H
// clipped into (0, 1). Zero-variance segments are excluded from the
// regression; if fewer than two lags survive, the neutral dimension 1.5 is
// returned instead of failing.
func FractalDimension(closes []float64, cfg FractalConfig) (float64, error) {
	if len(closes) < cfg.MinPoints || len(closes) < 2*cfg.MaxLag {
		return 0, models.ErrInsufficientData
	}

	logPrices := make([]float64, len(closes))
	for i, p := range closes {
		logPrices[i] = math.Log(p)
	}

	var logLags, logRS []float64
	for lag := 2; lag < cfg.MaxLag; lag++ {
		segments := len(logPrices) / lag
		if segments < 2 {
			continue
		}

		var rsSum float64
		var rsCount int
		for s := 0; s < segments; s++ {
			seg := logPrices[s*lag : (s+1)*lag]
			rs, ok := rescaledRange(seg)
			if !ok {
				continue
			}
			rsSum += rs
			rsCount++
		}
		if rsCount == 0 {
			continue
		}

		avg := rsSum / float64(rsCount)
		if avg <= 0 {
			continue
		}
		logLags = append(logLags, math.Log(float64(lag)))
		logRS = append(logRS, math.Log(avg))
	}

	if len(logLags) < 2 {
		return NeutralDimension, nil
	}

	hurst := slope(logLags, logRS)
	if math.IsNaN(hurst) || math.IsInf(hurst, 0) {
		return NeutralDimension, nil
	}

	// Keep H strictly inside (0, 1) so the dimension stays inside (1, 2).
	hurst = math.Max(0.001, math.Min(0.999, hurst))
	return 2 - hurst, nil
}

// rescaledRange computes R/S for one segment: the range of the
// mean-adjusted cumulative deviation series over the segment's standard
// deviation. Reports ok=false for zero-variance segments.
func rescaledRange(seg []float64) (float64, bool) {
	if len(seg) < 2 {
		return 0, false
	}
	var mean float64
	lo, hi := seg[0], seg[0]
	for _, v := range seg {
		mean += v
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	// A constant segment must be caught before the deviation loop: the
	// computed mean can differ from the shared value by an ulp, leaving a
	// tiny nonzero std that would pass a plain == 0 check.
	if lo == hi {
		return 0, false
	}
	mean /= float64(len(seg))

	var cum, minDev, maxDev, variance float64
	for _, v := range seg {
		d := v - mean
		cum += d
		if cum < minDev {
			minDev = cum
		}
		if cum > maxDev {
			maxDev = cum
		}
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(seg)))
	if std == 0 {
		return 0, false
	}
	return (maxDev - minDev) / std, true
}

// slope returns the least-squares slope of y against x.
func slope(x, y []float64) float64 {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumXX float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumXX += x[i] * x[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return math.NaN()
	}
	return (n*sumXY - sumX*sumY) / denom
}
