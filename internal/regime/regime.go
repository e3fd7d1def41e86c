// Package regime classifies the current market regime with a four-state
// Gaussian hidden Markov model fitted fresh on every invocation. The
// classifier is a stateless function of the return series and the seed, so
// repeated runs over the same window produce identical labels.
package regime

import (
	"fmt"
	"math"

	"github.com/arlenko/marketsentry/internal/models"
	"github.com/arlenko/marketsentry/internal/series"
)

// Labeling thresholds on per-state daily return statistics.
const (
	crisisStd   = 0.015
	volatileStd = 0.012
)

// Feature windows: each observation is (return, 5-day rolling std, 20-day
// rolling std).
const (
	shortVolWindow = 5
	longVolWindow  = 20
)

// Config holds the classifier parameters.
type Config struct {
	States          int
	Seed            int64
	MaxIterations   int
	MinObservations int
	Tolerance       float64
}

// DefaultConfig returns the classifier defaults.
func DefaultConfig() Config {
	return Config{
		States:          4,
		Seed:            42,
		MaxIterations:   100,
		MinObservations: 30,
		Tolerance:       1e-4,
	}
}

// Classify fits the model on the daily return series and returns the regime
// label of the most recent observation. Fails with ErrRegimeUnavailable
// when too few feature rows are available or training degenerates
// numerically; callers must treat that as "regime unknown", not abort.
func Classify(returns []float64, cfg Config) (models.RegimeLabel, error) {
	features, aligned := buildFeatures(returns)
	if len(features) < cfg.MinObservations {
		return models.RegimeUnknown, fmt.Errorf("%w: %d feature rows, need %d",
			models.ErrRegimeUnavailable, len(features), cfg.MinObservations)
	}

	hmm, err := fitHMM(features, cfg.States, cfg.Seed, cfg.MaxIterations, cfg.Tolerance)
	if err != nil {
		return models.RegimeUnknown, fmt.Errorf("%w: %v", models.ErrRegimeUnavailable, err)
	}

	states := hmm.viterbi(features)
	labels := labelStates(states, aligned, cfg.States)
	return labels[states[len(states)-1]], nil
}

// buildFeatures assembles the T x 3 feature matrix and the return values
// aligned with its rows. Rows exist only where both rolling windows have
// filled.
func buildFeatures(returns []float64) ([][]float64, []float64) {
	std5 := series.RollingStd(returns, shortVolWindow)
	std20 := series.RollingStd(returns, longVolWindow)

	var features [][]float64
	var aligned []float64
	for i := range returns {
		if math.IsNaN(std5[i]) || math.IsNaN(std20[i]) {
			continue
		}
		features = append(features, []float64{returns[i], std5[i], std20[i]})
		aligned = append(aligned, returns[i])
	}
	return features, aligned
}

// labelStates names each latent state from the mean and standard deviation
// of the returns assigned to it. Priority order, first match wins:
// Crisis (negative mean, high vol), Volatile (high vol), Bull (positive
// mean, contained vol), Normal otherwise.
func labelStates(states []int, returns []float64, n int) []models.RegimeLabel {
	labels := make([]models.RegimeLabel, n)
	for s := 0; s < n; s++ {
		var assigned []float64
		for i, st := range states {
			if st == s {
				assigned = append(assigned, returns[i])
			}
		}
		if len(assigned) == 0 {
			labels[s] = models.RegimeNormal
			continue
		}
		mean := series.Mean(assigned)
		std := series.Std(assigned)
		switch {
		case mean < 0 && std > crisisStd:
			labels[s] = models.RegimeCrisis
		case std > volatileStd:
			labels[s] = models.RegimeVolatile
		case mean > 0 && std <= volatileStd:
			labels[s] = models.RegimeBull
		default:
			labels[s] = models.RegimeNormal
		}
	}
	return labels
}
