// Package signal applies a threshold policy to an indicator snapshot and
// emits directional trade signals with a recommended trade plan.
//
// Every enabled condition of a direction must hold for that direction to
// fire (strict comparisons, conjunction). Directions are evaluated
// independently; if the configured LONG and SHORT ranges overlap and both
// fire, both signals are reported. The engine does not arbitrate between
// them; keeping the ranges disjoint is the policy author's job.
package signal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arlenko/marketsentry/internal/models"
)

// DirectionPolicy enumerates the threshold conditions for one direction.
// A nil cutoff disables that condition. Min cutoffs require the indicator
// to be strictly above the value, max cutoffs strictly below.
type DirectionPolicy struct {
	FractalMax     *float64
	FractalMin     *float64
	PutCallMin     *float64
	PutCallMax     *float64
	VIXMin         *float64
	VIXMax         *float64
	RequiredRegime models.RegimeLabel
	UseRegime      bool
}

// Policy is the full signal configuration: per-direction thresholds plus
// the shared trade plan parameters.
type Policy struct {
	Long  DirectionPolicy
	Short DirectionPolicy

	StopLossPct     float64 // fraction of entry, e.g. 0.015
	TargetPct       float64 // fraction of entry, e.g. 0.04
	PositionSizePct float64 // percent of portfolio
	LongSymbol      string
	ShortSymbol     string
}

// Float returns a pointer to v, for building policies in code.
func Float(v float64) *float64 { return &v }

// DefaultPolicy returns the severe-setup policy the original strategy runs:
// a crisis short (compressed fractal, elevated put/call, VIX above 30,
// Crisis regime) and a complacent-market long.
func DefaultPolicy() Policy {
	return Policy{
		Short: DirectionPolicy{
			FractalMax:     Float(1.15),
			PutCallMin:     Float(1.2),
			VIXMin:         Float(30),
			RequiredRegime: models.RegimeCrisis,
			UseRegime:      true,
		},
		Long: DirectionPolicy{
			FractalMax:     Float(1.45),
			PutCallMax:     Float(0.8),
			VIXMax:         Float(20),
			RequiredRegime: models.RegimeBull,
			UseRegime:      true,
		},
		StopLossPct:     0.015,
		TargetPct:       0.04,
		PositionSizePct: 2.0,
		LongSymbol:      "SPY",
		ShortSymbol:     "SPXS",
	}
}

// Evaluate checks both directions against the snapshot and returns a signal
// for every direction whose enabled conditions all hold. An empty result is
// the steady state, not an error.
func Evaluate(snap models.IndicatorSnapshot, price float64, p Policy) []models.Signal {
	var fired []models.Signal
	if pass, rationale := evalDirection(snap, p.Long); pass {
		fired = append(fired, buildSignal(models.DirectionLong, snap, price, p, rationale))
	}
	if pass, rationale := evalDirection(snap, p.Short); pass {
		fired = append(fired, buildSignal(models.DirectionShort, snap, price, p, rationale))
	}
	return fired
}

// None returns the terminal no-signal record for a run where neither
// direction fired.
func None(snap models.IndicatorSnapshot) models.Signal {
	return models.Signal{
		ID:         uuid.New().String(),
		Direction:  models.DirectionNone,
		Indicators: snap,
		Rationale:  "no direction met all enabled conditions",
		CreatedAt:  time.Now(),
	}
}

func evalDirection(snap models.IndicatorSnapshot, dp DirectionPolicy) (bool, string) {
	var met []string

	check := func(enabled *float64, value float64, above bool, name string) bool {
		if enabled == nil {
			return true
		}
		op, pass := "<", value < *enabled
		if above {
			op, pass = ">", value > *enabled
		}
		if pass {
			met = append(met, fmt.Sprintf("%s %.3f %s %.3f", name, value, op, *enabled))
		}
		return pass
	}

	ok := check(dp.FractalMax, snap.FractalDimension, false, "fractal dimension")
	ok = check(dp.FractalMin, snap.FractalDimension, true, "fractal dimension") && ok
	ok = check(dp.PutCallMin, snap.SentimentProxy, true, "put/call proxy") && ok
	ok = check(dp.PutCallMax, snap.SentimentProxy, false, "put/call proxy") && ok
	ok = check(dp.VIXMin, snap.VolatilityIndex, true, "volatility index") && ok
	ok = check(dp.VIXMax, snap.VolatilityIndex, false, "volatility index") && ok

	// Regime condition is skipped outright when the classifier was
	// unavailable: a missing regime degrades the policy, never vetoes it.
	if dp.UseRegime && snap.Regime != models.RegimeUnknown {
		if snap.Regime != dp.RequiredRegime {
			ok = false
		} else {
			met = append(met, fmt.Sprintf("regime %s", snap.Regime))
		}
	}

	return ok, strings.Join(met, "; ")
}

func buildSignal(dir models.Direction, snap models.IndicatorSnapshot, price float64, p Policy, rationale string) models.Signal {
	sig := models.Signal{
		ID:              uuid.New().String(),
		Direction:       dir,
		Indicators:      snap,
		Entry:           price,
		PositionSizePct: p.PositionSizePct,
		Rationale:       rationale,
		CreatedAt:       time.Now(),
	}
	switch dir {
	case models.DirectionLong:
		sig.Symbol = p.LongSymbol
		sig.StopLoss = price * (1 - p.StopLossPct)
		sig.Target = price * (1 + p.TargetPct)
	case models.DirectionShort:
		sig.Symbol = p.ShortSymbol
		sig.StopLoss = price * (1 + p.StopLossPct)
		sig.Target = price * (1 - p.TargetPct)
	}
	return sig
}
